package subscription

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// Status is the local subscription status.
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusPaused     Status = "paused"
	StatusUnpaid     Status = "unpaid"
	StatusIncomplete Status = "incomplete"
)

// LiveStatuses are the statuses counted as a current member.
var LiveStatuses = []Status{StatusActive, StatusTrialing, StatusPastDue, StatusPaused}

func (s Status) Live() bool { return slices.Contains(LiveStatuses, s) }

func (s Status) Terminal() bool { return s == StatusCanceled }

// StatusOf maps a processor snapshot to the local status. A subscription
// with paused collection is "paused" until it is canceled.
func StatusOf(sub *stripeconnect.Subscription) Status {
	switch sub.Status {
	case stripeconnect.StatusCanceled, stripeconnect.StatusIncompleteExpired:
		return StatusCanceled
	}
	if sub.Paused() {
		return StatusPaused
	}
	switch sub.Status {
	case stripeconnect.StatusActive:
		return StatusActive
	case stripeconnect.StatusTrialing:
		return StatusTrialing
	case stripeconnect.StatusPastDue:
		return StatusPastDue
	case stripeconnect.StatusUnpaid:
		return StatusUnpaid
	case stripeconnect.StatusPaused:
		return StatusPaused
	default:
		return StatusIncomplete
	}
}

// PlanSubscription is the local mirror of a processor subscription.
// StripeSubscriptionID is unique. Rows are never deleted.
type PlanSubscription struct {
	ID                   uuid.UUID  `json:"id"`
	BusinessID           uuid.UUID  `json:"businessId"`
	PlanID               uuid.UUID  `json:"planId"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId"`
	StripeCustomerID     string     `json:"stripeCustomerId"`
	CustomerEmail        string     `json:"customerEmail,omitempty"`
	Status               Status     `json:"status"`
	PauseCollection      string     `json:"pauseCollection,omitempty"`
	CurrentPeriodStart   time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time  `json:"currentPeriodEnd"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd"`
	TrialEnd             *time.Time `json:"trialEnd,omitempty"`
	PausedAt             *time.Time `json:"pausedAt,omitempty"`
	CanceledAt           *time.Time `json:"canceledAt,omitempty"`
	LastSyncedAt         time.Time  `json:"lastSyncedAt"`
	// SnapshotAt is when the last applied processor snapshot was observed.
	SnapshotAt time.Time `json:"snapshotAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (p *PlanSubscription) IsPaused() bool { return p.Status == StatusPaused }

// Snapshot field names reported in Result.Changes.
const (
	FieldStatus             = "status"
	FieldPauseCollection    = "pauseCollection"
	FieldCurrentPeriodStart = "currentPeriodStart"
	FieldCurrentPeriodEnd   = "currentPeriodEnd"
	FieldCancelAtPeriodEnd  = "cancelAtPeriodEnd"
	FieldTrialEnd           = "trialEnd"
	FieldCanceledAt         = "canceledAt"
)

// merge copies the differing snapshot fields onto p and returns their
// names. It does not touch the sync timestamps.
func (p *PlanSubscription) merge(sub *stripeconnect.Subscription, now time.Time) []string {
	var changed []string

	status := StatusOf(sub)
	if p.Status != status {
		if status == StatusPaused {
			at := now.UTC()
			p.PausedAt = &at
		} else if p.Status == StatusPaused {
			p.PausedAt = nil
		}
		p.Status = status
		changed = append(changed, FieldStatus)
	}
	if p.PauseCollection != sub.PauseCollection {
		p.PauseCollection = sub.PauseCollection
		changed = append(changed, FieldPauseCollection)
	}
	if !p.CurrentPeriodStart.Equal(sub.CurrentPeriodStart) {
		p.CurrentPeriodStart = sub.CurrentPeriodStart.UTC()
		changed = append(changed, FieldCurrentPeriodStart)
	}
	if !p.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd) {
		p.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC()
		changed = append(changed, FieldCurrentPeriodEnd)
	}
	if p.CancelAtPeriodEnd != sub.CancelAtPeriodEnd {
		p.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		changed = append(changed, FieldCancelAtPeriodEnd)
	}
	if !sameTime(p.TrialEnd, sub.TrialEnd) {
		p.TrialEnd = optTime(sub.TrialEnd)
		changed = append(changed, FieldTrialEnd)
	}
	if !sameTime(p.CanceledAt, sub.CanceledAt) {
		p.CanceledAt = optTime(sub.CanceledAt)
		changed = append(changed, FieldCanceledAt)
	}
	return changed
}

func sameTime(a *time.Time, b time.Time) bool {
	if a == nil {
		return b.IsZero()
	}
	return a.Equal(b)
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func (p *PlanSubscription) clone() *PlanSubscription {
	cp := *p
	return &cp
}
