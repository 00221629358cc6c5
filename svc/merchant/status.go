package merchant

// Status is the platform-visible lifecycle state of a business.
type Status string

const (
	StatusCreated                    Status = "CREATED"
	StatusDetailsCollected           Status = "DETAILS_COLLECTED"
	StatusStripeAccountCreated       Status = "STRIPE_ACCOUNT_CREATED"
	StatusStripeOnboardingInProgress Status = "STRIPE_ONBOARDING_IN_PROGRESS"
	StatusStripeOnboardingRequired   Status = "STRIPE_ONBOARDING_REQUIRED"
	StatusOnboardingPending          Status = "ONBOARDING_PENDING"
	StatusPendingVerification        Status = "PENDING_VERIFICATION"
	StatusRestricted                 Status = "RESTRICTED"
	StatusOnboardingComplete         Status = "ONBOARDING_COMPLETE"
	StatusFailed                     Status = "FAILED"
	StatusSuspended                  Status = "SUSPENDED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusCreated,
	StatusDetailsCollected,
	StatusStripeAccountCreated,
	StatusStripeOnboardingInProgress,
	StatusStripeOnboardingRequired,
	StatusOnboardingPending,
	StatusPendingVerification,
	StatusRestricted,
	StatusOnboardingComplete,
	StatusFailed,
	StatusSuspended,
}

// rank orders statuses along the happy path. Needs-attention statuses share
// a rank with the step they block.
var rank = map[Status]int{
	StatusCreated:                    0,
	StatusDetailsCollected:           1,
	StatusStripeAccountCreated:       2,
	StatusStripeOnboardingInProgress: 3,
	StatusStripeOnboardingRequired:   3,
	StatusOnboardingPending:          4,
	StatusPendingVerification:        5,
	StatusRestricted:                 5,
	StatusOnboardingComplete:         6,
	StatusFailed:                     6,
	StatusSuspended:                  6,
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// NeedsAttention reports whether the business must act (or is blocked)
// before it can sell.
func (s Status) NeedsAttention() bool {
	switch s {
	case StatusStripeOnboardingRequired, StatusPendingVerification, StatusRestricted, StatusFailed, StatusSuspended:
		return true
	}
	return false
}

// Terminal reports statuses only the processor can lift.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusSuspended
}

// CanSell reports whether new subscriptions may be created.
func (s Status) CanSell() bool {
	return s == StatusOnboardingComplete
}
