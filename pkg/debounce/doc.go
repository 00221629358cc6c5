// Package debounce guards interactive admin actions against double submits
// and drops redelivered webhook events, using Redis SET NX with a TTL.
//
// It is a UX and cost safeguard only. Correctness of the data it protects
// comes from idempotent upserts in the stores, never from these keys.
package debounce
