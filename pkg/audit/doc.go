// Package audit records who did what to which business.
//
// Every record is {business id, actor user id, type, metadata, timestamp}
// plus the request id when available. Logger fills the actor from the
// request context (see logger.WithActorID) and delegates persistence to a
// Storage. Storage implementations are append-only; internal/db provides the
// Postgres one and MemoryStorage serves tests.
//
//	auditor := audit.NewLogger(store)
//	_ = auditor.Log(ctx, biz.ID.String(), "subscription.paused",
//	    audit.WithMetadata("subscription_id", sub.StripeSubscriptionID),
//	)
package audit
