package merchant

import (
	"strings"

	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// AccountState is the connected account read the status is derived from.
type AccountState struct {
	ChargesEnabled   bool
	DetailsSubmitted bool
	PayoutsEnabled   bool
	Requirements     stripeconnect.Requirements
	Capabilities     map[string]string
}

// AccountStateFrom converts a processor account.
func AccountStateFrom(a *stripeconnect.Account) AccountState {
	if a == nil {
		return AccountState{}
	}
	return AccountState{
		ChargesEnabled:   a.ChargesEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
		PayoutsEnabled:   a.PayoutsEnabled,
		Requirements:     a.Requirements,
		Capabilities:     a.Capabilities,
	}
}

// DisabledReasonPolicy maps requirements.disabled_reason to a terminal
// status. ok is false when the reason does not force one.
type DisabledReasonPolicy func(reason string) (status Status, ok bool)

// DisabledReasonTable is a lookup-table policy. Keys match exactly; a key
// ending in ".*" matches every reason sharing the prefix before it.
type DisabledReasonTable map[string]Status

// DefaultDisabledReasons rejects accounts the processor refused outright
// and suspends accounts paused by the platform or the processor's review.
// Requirement-driven reasons are left to the capability flags.
var DefaultDisabledReasons = DisabledReasonTable{
	"rejected.*":        StatusFailed,
	"listed":            StatusFailed,
	"platform_paused":   StatusSuspended,
	"under_review":      StatusSuspended,
	"paused.inactivity": StatusSuspended,
	"other":             StatusSuspended,
}

// Policy returns the table as a DisabledReasonPolicy.
func (t DisabledReasonTable) Policy() DisabledReasonPolicy {
	return func(reason string) (Status, bool) {
		if reason == "" {
			return "", false
		}
		if s, ok := t[reason]; ok {
			return s, true
		}
		if i := strings.IndexByte(reason, '.'); i > 0 {
			if s, ok := t[reason[:i]+".*"]; ok {
				return s, true
			}
		}
		return "", false
	}
}

// StateResolver derives business status from account state.
type StateResolver struct {
	disabled DisabledReasonPolicy
}

// NewStateResolver creates a resolver. A nil policy uses DefaultDisabledReasons.
func NewStateResolver(policy DisabledReasonPolicy) StateResolver {
	if policy == nil {
		policy = DefaultDisabledReasons.Policy()
	}
	return StateResolver{disabled: policy}
}

// Determine computes the status implied by acct. It is pure: the same
// inputs give the same output, and feeding the output back as current
// yields it again.
func (r StateResolver) Determine(current Status, acct AccountState) Status {
	if s, ok := r.disabled(acct.Requirements.DisabledReason); ok {
		return s
	}

	if acct.ChargesEnabled && acct.DetailsSubmitted {
		return StatusOnboardingComplete
	}

	req := acct.Requirements
	if acct.DetailsSubmitted {
		switch {
		case len(req.PendingVerification) > 0:
			return StatusPendingVerification
		case len(req.PastDue) > 0 || len(req.CurrentlyDue) > 0:
			return StatusRestricted
		default:
			return StatusPendingVerification
		}
	}

	// Details not submitted yet: the merchant is still in, or has left, the hosted flow.
	if current == StatusStripeOnboardingInProgress {
		return StatusStripeOnboardingInProgress
	}
	if len(req.CurrentlyDue) > 0 || len(req.PastDue) > 0 {
		return StatusStripeOnboardingRequired
	}
	return StatusOnboardingPending
}

var defaultResolver = NewStateResolver(nil)

// DetermineBusinessState applies the default disabled-reason table.
func DetermineBusinessState(current Status, acct AccountState) Status {
	return defaultResolver.Determine(current, acct)
}

// ResolveStatus applies the no-regression rule to a computed status.
// Moves forward and moves into a needs-attention status are taken as
// computed. Leaving a needs-attention status is accepted only when it does
// not step back, so a redirected regression holds on the next identical
// read. Any other backward move is redirected to RESTRICTED.
func ResolveStatus(current, computed Status) Status {
	switch {
	case computed == current:
		return current
	case !current.Valid(), computed.NeedsAttention():
		return computed
	case rank[computed] >= rank[current]:
		return computed
	case current.NeedsAttention():
		return current
	default:
		return StatusRestricted
	}
}
