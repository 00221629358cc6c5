package billing

import "errors"

var (
	ErrInvalidCohortDay     = errors.New("cohort billing day must be between 1 and 31")
	ErrInvalidBillingAnchor = errors.New("billing anchor must be IMMEDIATE or NEXT_INTERVAL")
	ErrUnknownBillingModel  = errors.New("unknown billing model")
	ErrInvalidPricingType   = errors.New("pricing type must be FIXED or DYNAMIC")
	ErrInvalidPrice         = errors.New("price must be positive with at most two decimal places")
	ErrInvalidEffectiveDate = errors.New("price effective date must be the first day of a month")
	ErrInvalidName          = errors.New("name is required")
	ErrInvalidCustomer      = errors.New("customer email or id is required")
	ErrNotDynamicPlan       = errors.New("plan does not use dynamic pricing")

	ErrDynamicPriceNotSet     = errors.New("no price is in effect for this dynamic plan")
	ErrPlanPriceNotConfigured = errors.New("plan price not configured")

	ErrMembershipNotFound  = errors.New("membership not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrPriceItemNotFound   = errors.New("price queue item not found")
	ErrDuplicateSlug       = errors.New("membership slug already taken")
	ErrAlreadySubscribed   = errors.New("customer already has an active subscription to this plan")
	ErrPriceAlreadyApplied = errors.New("a price for this month has already been applied")

	ErrFailedToCreateSubscription = errors.New("failed to create subscription")
	ErrFailedToRecordSubscription = errors.New("failed to record subscription")
	ErrFailedToCreatePrice        = errors.New("failed to create price")
)
