package stripeconnect

import "time"

// Subscription statuses as reported by the processor.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusUnpaid            = "unpaid"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusPaused            = "paused"
)

// Account is the subset of a connected account the platform reasons about.
type Account struct {
	ID               string            `json:"id"`
	ChargesEnabled   bool              `json:"charges_enabled"`
	DetailsSubmitted bool              `json:"details_submitted"`
	PayoutsEnabled   bool              `json:"payouts_enabled"`
	Requirements     Requirements      `json:"requirements"`
	Capabilities     map[string]string `json:"capabilities,omitempty"`
}

// Requirements mirrors the account's outstanding verification items.
type Requirements struct {
	CurrentlyDue        []string `json:"currently_due,omitempty"`
	EventuallyDue       []string `json:"eventually_due,omitempty"`
	PastDue             []string `json:"past_due,omitempty"`
	PendingVerification []string `json:"pending_verification,omitempty"`
	DisabledReason      string   `json:"disabled_reason,omitempty"`
}

type CreateAccountParams struct {
	Email        string
	Country      string
	BusinessName string
	Metadata     map[string]string
}

type AccountLink struct {
	URL       string
	ExpiresAt time.Time
}

type Customer struct {
	ID    string
	Email string
}

type CreateCustomerParams struct {
	Email       string
	Name        string
	TestClockID string
	// PaymentMethod is attached and made the invoice default, e.g. "pm_card_visa" in test mode.
	PaymentMethod string
}

type Product struct {
	ID   string
	Name string
}

type Price struct {
	ID         string
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   string
	Active     bool
}

type CreatePriceParams struct {
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   string
}

// Subscription is the processor-side state of a subscription.
type Subscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	// PauseCollection holds the pause behavior; empty when collection is not paused.
	PauseCollection string
	TrialEnd        time.Time
	CanceledAt      time.Time
	TestClockID     string
	Metadata        map[string]string
}

// Paused reports whether payment collection is paused.
func (s *Subscription) Paused() bool {
	return s.PauseCollection != ""
}

// CreateSubscriptionParams carries the billing-cycle parameters computed
// for a membership. Zero values mean "not sent".
type CreateSubscriptionParams struct {
	CustomerID            string
	PriceID               string
	TrialEnd              time.Time
	BillingCycleAnchor    time.Time
	BillingCycleAnchorDay int
	ProrationBehavior     string
	Metadata              map[string]string
}

type ListSubscriptionsParams struct {
	CustomerID  string
	TestClockID string
	// Status defaults to "all" so canceled subscriptions are included.
	Status string
	Limit  int
}

type Invoice struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	Status         string
	AmountDue      int64
	AmountPaid     int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Created        time.Time
}

type ListInvoicesParams struct {
	CustomerID     string
	SubscriptionID string
	Limit          int
}

type TestClock struct {
	ID         string
	Name       string
	FrozenTime time.Time
	Status     string
}

// Event is a verified webhook event with its object decoded according to type.
type Event struct {
	ID        string
	Type      string
	AccountID string
	Created   time.Time

	Account      *Account
	Subscription *Subscription
	Invoice      *Invoice
}
