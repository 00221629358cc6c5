// Package merchant tracks businesses selling through Stripe Connect and
// keeps their platform status in step with the connected account.
//
// The status stored on a Business is a cache. DetermineBusinessState
// derives it from the account flags the processor reports
// (charges_enabled, details_submitted, requirements) and every fresh read
// passes through it again:
//
//	computed := merchant.DetermineBusinessState(b.Status, merchant.AccountStateFrom(acct))
//	next := merchant.ResolveStatus(b.Status, computed)
//
// ResolveStatus refuses silent regressions: a move backwards along the
// onboarding path is accepted only into a needs-attention status.
//
// Every status change appends a StateTransition to the business history
// and writes an audit entry. AppendTransition never mutates its input.
//
// # Disabled accounts
//
// requirements.disabled_reason decides FAILED and SUSPENDED. The mapping is
// a DisabledReasonPolicy; DefaultDisabledReasons covers Stripe's documented
// rejection and platform-pause reasons and can be replaced with
// WithDisabledReasonPolicy.
//
// # Service
//
// Service drives the onboarding steps (CreateBusiness, RecordDetails,
// StartOnboarding) and the sync triggers (SyncAccount for the dashboard,
// SyncAccountByStripeID for account.updated webhooks, SyncAll for the
// scheduled job). EnsureCanCharge is the precondition checkout uses.
package merchant
