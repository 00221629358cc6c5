package billing

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Membership is a product line a business sells, e.g. "Wine Club".
type Membership struct {
	ID                uuid.UUID     `json:"id"`
	BusinessID        uuid.UUID     `json:"businessId"`
	Name              string        `json:"name"`
	Slug              string        `json:"slug"`
	Description       string        `json:"description,omitempty"`
	BillingAnchor     BillingAnchor `json:"billingAnchor"`
	CohortBillingDay  int           `json:"cohortBillingDay,omitempty"`
	ChargeImmediately bool          `json:"chargeImmediately"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// ValidateBilling checks the anchor policy.
func (m *Membership) ValidateBilling() error {
	switch m.BillingAnchor {
	case AnchorImmediate:
		return nil
	case AnchorNextInterval:
		if m.CohortBillingDay < 1 || m.CohortBillingDay > 31 {
			return ErrInvalidCohortDay
		}
		return nil
	default:
		return ErrInvalidBillingAnchor
	}
}

// PricingType is how a plan is priced.
type PricingType string

const (
	PricingFixed   PricingType = "FIXED"
	PricingDynamic PricingType = "DYNAMIC"
)

// Plan is a price point of a membership.
type Plan struct {
	ID           uuid.UUID   `json:"id"`
	BusinessID   uuid.UUID   `json:"businessId"`
	MembershipID uuid.UUID   `json:"membershipId"`
	Name         string      `json:"name"`
	PricingType  PricingType `json:"pricingType"`
	// Price is set for fixed plans only.
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	StripeProduct string          `json:"stripeProductId,omitempty"`
	// StripePrice is the price new subscriptions use. Dynamic plans move it
	// as the price queue drains.
	StripePrice string    `json:"stripePriceId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PriceQueueItem is a future-dated price of a dynamic plan.
type PriceQueueItem struct {
	ID          uuid.UUID       `json:"id"`
	PlanID      uuid.UUID       `json:"planId"`
	EffectiveAt time.Time       `json:"effectiveAt"`
	Price       decimal.Decimal `json:"price"`
	Applied     bool            `json:"applied"`
	AppliedAt   *time.Time      `json:"appliedAt,omitempty"`
	StripePrice string          `json:"stripePriceId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SortQueue orders items by effective date, oldest first.
func SortQueue(items []*PriceQueueItem) {
	slices.SortStableFunc(items, func(a, b *PriceQueueItem) int {
		return a.EffectiveAt.Compare(b.EffectiveAt)
	})
}

// CurrentItem returns the applied item in effect at now: the latest applied
// item whose effective date is not after now.
func CurrentItem(items []*PriceQueueItem, now time.Time) *PriceQueueItem {
	var cur *PriceQueueItem
	for _, it := range items {
		if !it.Applied || it.EffectiveAt.After(now) {
			continue
		}
		if cur == nil || it.EffectiveAt.After(cur.EffectiveAt) {
			cur = it
		}
	}
	return cur
}

// DueItem returns the unapplied item the drain job should apply at now:
// the latest one already effective and newer than the current price.
func DueItem(items []*PriceQueueItem, now time.Time) *PriceQueueItem {
	cur := CurrentItem(items, now)
	var due *PriceQueueItem
	for _, it := range items {
		if it.Applied || it.EffectiveAt.After(now) {
			continue
		}
		if cur != nil && !it.EffectiveAt.After(cur.EffectiveAt) {
			continue
		}
		if due == nil || it.EffectiveAt.After(due.EffectiveAt) {
			due = it
		}
	}
	return due
}

// ResolvePrice returns the processor price new subscriptions to plan must use.
// Dynamic plans never fall back to another price: without an applied queue
// item in effect the result is ErrDynamicPriceNotSet.
func ResolvePrice(plan *Plan, queue []*PriceQueueItem, now time.Time) (string, error) {
	switch plan.PricingType {
	case PricingDynamic:
		cur := CurrentItem(queue, now)
		if cur == nil || cur.StripePrice == "" {
			return "", ErrDynamicPriceNotSet
		}
		return cur.StripePrice, nil
	default:
		if plan.StripePrice == "" {
			return "", ErrPlanPriceNotConfigured
		}
		return plan.StripePrice, nil
	}
}

// MinorUnits converts a decimal amount to cents. Amounts must be positive
// with at most two decimal places.
func MinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() || !amount.Round(2).Equal(amount) {
		return 0, ErrInvalidPrice
	}
	return amount.Shift(2).IntPart(), nil
}

// FirstOfMonth reports whether t is midnight UTC on the first of a month.
func FirstOfMonth(t time.Time) bool {
	t = t.UTC()
	return t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
