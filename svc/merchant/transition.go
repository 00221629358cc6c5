package merchant

import "time"

// StateTransition is one entry of a business's append-only status history.
type StateTransition struct {
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
	TriggeredBy string    `json:"triggeredBy,omitempty"`
}

// Transition reasons recorded by the service.
const (
	ReasonBusinessCreated   = "Business created"
	ReasonDetailsCollected  = "Business details collected"
	ReasonAccountCreated    = "Stripe Connect account created"
	ReasonOnboardingLink    = "Stripe onboarding link issued"
	ReasonManualSync        = "Manual sync from Stripe"
	ReasonWebhookSync       = "Stripe account.updated webhook"
	ReasonOnboardingReturn  = "Returned from Stripe onboarding"
	ReasonScheduledSync     = "Scheduled account sync"
	ReasonOnboardingRecheck = "Account re-checked before onboarding"
)

// CreateStateTransition builds a transition record.
func CreateStateTransition(from, to Status, reason string, at time.Time, triggeredBy string) StateTransition {
	return StateTransition{
		From:        from,
		To:          to,
		Reason:      reason,
		Timestamp:   at.UTC(),
		TriggeredBy: triggeredBy,
	}
}

// AppendTransition returns a new slice holding list followed by t.
// list is never modified, even when it has spare capacity.
func AppendTransition(list []StateTransition, t StateTransition) []StateTransition {
	out := make([]StateTransition, len(list), len(list)+1)
	copy(out, list)
	return append(out, t)
}
