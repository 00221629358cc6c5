package billing

import (
	"time"

	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// BillingAnchor is the membership's renewal policy.
type BillingAnchor string

const (
	// AnchorImmediate renews on the signup anniversary.
	AnchorImmediate BillingAnchor = "IMMEDIATE"
	// AnchorNextInterval renews every member on the cohort billing day.
	AnchorNextInterval BillingAnchor = "NEXT_INTERVAL"
)

// ModelKind names one of the three billing models.
type ModelKind string

const (
	KindRolling         ModelKind = "rolling"
	KindCohortImmediate ModelKind = "cohort-immediate"
	KindCohortDeferred  ModelKind = "cohort-deferred"
)

// ParseModelKind accepts the scenario names used by the admin API.
func ParseModelKind(s string) (ModelKind, bool) {
	switch k := ModelKind(s); k {
	case KindRolling, KindCohortImmediate, KindCohortDeferred:
		return k, true
	}
	return "", false
}

// BillingModel is one of Rolling, CohortImmediate or CohortDeferred.
type BillingModel interface {
	Kind() ModelKind
	billingModel()
}

// Rolling charges at signup and renews on the signup anniversary.
type Rolling struct{}

// CohortImmediate charges the full price at signup and renews on Day.
type CohortImmediate struct{ Day int }

// CohortDeferred starts a free trial that ends on the next Day, then
// renews on Day.
type CohortDeferred struct{ Day int }

func (Rolling) Kind() ModelKind         { return KindRolling }
func (CohortImmediate) Kind() ModelKind { return KindCohortImmediate }
func (CohortDeferred) Kind() ModelKind  { return KindCohortDeferred }

func (Rolling) billingModel()         {}
func (CohortImmediate) billingModel() {}
func (CohortDeferred) billingModel()  {}

// ModelFor builds the billing model of a membership.
func ModelFor(m *Membership) (BillingModel, error) {
	if err := m.ValidateBilling(); err != nil {
		return nil, err
	}
	if m.BillingAnchor == AnchorImmediate {
		return Rolling{}, nil
	}
	if m.ChargeImmediately {
		return CohortImmediate{Day: m.CohortBillingDay}, nil
	}
	return CohortDeferred{Day: m.CohortBillingDay}, nil
}

// ModelOf builds a model from a kind and cohort day, for the scenario runner.
func ModelOf(kind ModelKind, day int) (BillingModel, error) {
	switch kind {
	case KindRolling:
		return Rolling{}, nil
	case KindCohortImmediate, KindCohortDeferred:
		if day < 1 || day > 31 {
			return nil, ErrInvalidCohortDay
		}
		if kind == KindCohortImmediate {
			return CohortImmediate{Day: day}, nil
		}
		return CohortDeferred{Day: day}, nil
	}
	return nil, ErrUnknownBillingModel
}

// ProrationNone suppresses proration on the first, anchored period.
const ProrationNone = "none"

// SubscriptionParams are the billing-cycle fields sent on subscription
// creation. Zero values are not sent.
type SubscriptionParams struct {
	TrialEnd           time.Time `json:"trialEnd,omitzero"`
	BillingCycleAnchor time.Time `json:"billingCycleAnchor,omitzero"`
	AnchorDayOfMonth   int       `json:"anchorDayOfMonth,omitempty"`
	ProrationBehavior  string    `json:"prorationBehavior,omitempty"`
}

// ComputeSubscriptionParams returns the creation parameters that realize
// model for a signup at now. Cohort dates are computed in now's location.
func ComputeSubscriptionParams(model BillingModel, now time.Time) SubscriptionParams {
	switch m := model.(type) {
	case CohortImmediate:
		return SubscriptionParams{
			BillingCycleAnchor: NextCohortDate(m.Day, now),
			ProrationBehavior:  ProrationNone,
		}
	case CohortDeferred:
		return SubscriptionParams{
			TrialEnd:         NextCohortDate(m.Day, now),
			AnchorDayOfMonth: m.Day,
		}
	default:
		return SubscriptionParams{}
	}
}

// CreateParams merges p into processor subscription parameters.
func (p SubscriptionParams) CreateParams(customerID, priceID string, metadata map[string]string) stripeconnect.CreateSubscriptionParams {
	return stripeconnect.CreateSubscriptionParams{
		CustomerID:            customerID,
		PriceID:               priceID,
		TrialEnd:              p.TrialEnd,
		BillingCycleAnchor:    p.BillingCycleAnchor,
		BillingCycleAnchorDay: p.AnchorDayOfMonth,
		ProrationBehavior:     p.ProrationBehavior,
		Metadata:              metadata,
	}
}

// NextCohortDate returns midnight of the next cohort billing day strictly
// after now, in now's location. Days past the end of a month fall on the
// month's last day, which is how the processor resolves day_of_month
// anchors in short months.
func NextCohortDate(day int, now time.Time) time.Time {
	y, m, _ := now.Date()
	candidate := cohortDay(y, m, day, now.Location())
	if !candidate.After(now) {
		candidate = cohortDay(y, m+1, day, now.Location())
	}
	return candidate
}

func cohortDay(y int, m time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(day, last)-1)
}
