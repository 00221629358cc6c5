package subscription

import "errors"

var (
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrDuplicateSubscription = errors.New("subscription already recorded")
	ErrActionNotAllowed      = errors.New("action not allowed in the current subscription status")
	ErrBusinessMismatch      = errors.New("subscription belongs to another business")

	ErrFailedToSyncSubscription = errors.New("failed to sync subscription")
	ErrFailedToSaveSubscription = errors.New("failed to save subscription")
	ErrFailedToPerformAction    = errors.New("failed to update subscription at the processor")
)
