// Package billing holds the membership catalog and decides how new
// subscriptions are billed.
//
// A Membership's anchor policy maps to exactly one BillingModel:
//
//	IMMEDIATE                               -> Rolling
//	NEXT_INTERVAL, chargeImmediately=true   -> CohortImmediate
//	NEXT_INTERVAL, chargeImmediately=false  -> CohortDeferred
//
// ComputeSubscriptionParams turns the model into processor parameters:
// nothing for Rolling, a billing_cycle_anchor on the next cohort date with
// proration "none" for CohortImmediate, and a trial ending on the next
// cohort date plus billing_cycle_anchor_config.day_of_month for
// CohortDeferred.
//
// Dynamic plans are priced through a queue of month-effective prices.
// DrainPrices applies due items; ResolvePrice refuses to sell a dynamic
// plan that has no applied price in effect (ErrDynamicPriceNotSet).
package billing
