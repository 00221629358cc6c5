// Package scenario runs a billing model end to end against a processor
// test clock: it creates a clock at the start date, a customer with a test
// card and a subscription built by billing.ComputeSubscriptionParams, then
// advances the clock past the first renewal and returns what the processor
// produced.
package scenario
