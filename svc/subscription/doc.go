// Package subscription mirrors processor subscriptions locally.
//
// Rows are keyed by the processor subscription id and never deleted.
// Service.Apply reconciles one snapshot: a known row gets only its
// differing fields updated and lastSyncedAt stamped; an unknown live
// subscription is backfilled when its price resolves to a plan, or flagged
// for investigation when it does not; an unknown canceled one is skipped.
//
// The local "paused" status is derived from pause_collection. Pause,
// Resume and Cancel are checked against the allowed transitions before the
// processor is called, and the row is refreshed from the processor
// response.
package subscription
