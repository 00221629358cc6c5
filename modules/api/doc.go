// Package api mounts the clubkit HTTP surface on a chi router: business
// onboarding and sync, the membership catalog, checkout, subscription
// actions, admin jobs, test-clock scenarios and the Stripe webhook.
//
// Handlers are typed with handler.Wrap and bound with pkg/binder. Domain
// errors are returned through handler.Fail and translated by the mapper
// built in NewErrorMapper, so every failure renders as
//
//	{"error": {"code": "CHARGES_NOT_ENABLED", "message": "..."}}
//
// Subscription actions and scenario runs are guarded by a redis debounce
// so a double click never reaches the processor twice. Webhook events are
// de-duplicated by event id before dispatch.
package api
