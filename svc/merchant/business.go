package merchant

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// Business is a tenant selling memberships through its connected account.
// Status is a cache of DetermineBusinessState over the stored account
// flags and is recomputed on every fresh account read.
type Business struct {
	ID          uuid.UUID `json:"id"`
	OwnerUserID string    `json:"ownerUserId,omitempty"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Email       string    `json:"email,omitempty"`
	Country     string    `json:"country,omitempty"`

	StripeAccountID  string                     `json:"stripeAccountId,omitempty"`
	ChargesEnabled   bool                       `json:"chargesEnabled"`
	DetailsSubmitted bool                       `json:"detailsSubmitted"`
	PayoutsEnabled   bool                       `json:"payoutsEnabled"`
	Requirements     stripeconnect.Requirements `json:"requirements"`
	Capabilities     map[string]string          `json:"capabilities,omitempty"`

	Status      Status            `json:"status"`
	Transitions []StateTransition `json:"transitions"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Connected reports whether a connected account has been created.
func (b *Business) Connected() bool {
	return b.StripeAccountID != ""
}

// HasDetails reports whether the fields needed to open an account are set.
func (b *Business) HasDetails() bool {
	return b.Name != "" && b.Email != "" && b.Country != ""
}

// AccountState returns the last-known account read.
func (b *Business) AccountState() AccountState {
	return AccountState{
		ChargesEnabled:   b.ChargesEnabled,
		DetailsSubmitted: b.DetailsSubmitted,
		PayoutsEnabled:   b.PayoutsEnabled,
		Requirements:     b.Requirements,
		Capabilities:     b.Capabilities,
	}
}

func (b *Business) applyAccount(a AccountState) {
	b.ChargesEnabled = a.ChargesEnabled
	b.DetailsSubmitted = a.DetailsSubmitted
	b.PayoutsEnabled = a.PayoutsEnabled
	b.Requirements = a.Requirements
	b.Capabilities = maps.Clone(a.Capabilities)
}

// moveTo sets the status and appends a transition when it changes.
// It reports whether a transition was recorded.
func (b *Business) moveTo(to Status, reason string, at time.Time, actor string) (StateTransition, bool) {
	if b.Status == to {
		return StateTransition{}, false
	}
	t := CreateStateTransition(b.Status, to, reason, at, actor)
	b.Transitions = AppendTransition(b.Transitions, t)
	b.Status = to
	return t, true
}

func (b *Business) clone() *Business {
	cp := *b
	cp.Transitions = append([]StateTransition(nil), b.Transitions...)
	cp.Capabilities = maps.Clone(b.Capabilities)
	cp.Requirements.CurrentlyDue = append([]string(nil), b.Requirements.CurrentlyDue...)
	cp.Requirements.EventuallyDue = append([]string(nil), b.Requirements.EventuallyDue...)
	cp.Requirements.PastDue = append([]string(nil), b.Requirements.PastDue...)
	cp.Requirements.PendingVerification = append([]string(nil), b.Requirements.PendingVerification...)
	return &cp
}
