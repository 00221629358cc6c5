package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
	"github.com/dmitrymomot/clubkit/svc/scenario"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

// Merchants is implemented by *merchant.Service.
type Merchants interface {
	CreateBusiness(ctx context.Context, in merchant.CreateBusinessInput) (*merchant.Business, error)
	RecordDetails(ctx context.Context, id uuid.UUID, d merchant.Details) (*merchant.Business, error)
	StartOnboarding(ctx context.Context, id uuid.UUID, refreshURL, returnURL string) (*merchant.OnboardingResult, error)
	SyncAccount(ctx context.Context, id uuid.UUID, reason string) (*merchant.Business, merchant.SyncResult, error)
	SyncAccountByStripeID(ctx context.Context, accountID, reason string) (*merchant.Business, merchant.SyncResult, error)
	Get(ctx context.Context, id uuid.UUID) (*merchant.Business, error)
	NextAction(ctx context.Context, id uuid.UUID) (merchant.NextAction, error)
	SyncAll(ctx context.Context, reason string) (*merchant.SyncReport, error)
}

// Catalog is implemented by *billing.Catalog.
type Catalog interface {
	CreateMembership(ctx context.Context, businessID uuid.UUID, in billing.MembershipInput) (*billing.Membership, error)
	Memberships(ctx context.Context, businessID uuid.UUID) ([]*billing.Membership, error)
	CreatePlan(ctx context.Context, businessID, membershipID uuid.UUID, in billing.PlanInput) (*billing.Plan, error)
	EnqueuePrice(ctx context.Context, businessID, planID uuid.UUID, effectiveAt time.Time, price decimal.Decimal) (*billing.PriceQueueItem, error)
	PriceQueue(ctx context.Context, businessID, planID uuid.UUID) ([]*billing.PriceQueueItem, error)
	DrainPrices(ctx context.Context) (*billing.DrainReport, error)
}

// Checkout is implemented by *billing.Checkout.
type Checkout interface {
	Subscribe(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error)
}

// Subscriptions is implemented by *subscription.Service.
type Subscriptions interface {
	Get(ctx context.Context, businessID, id uuid.UUID) (*subscription.PlanSubscription, error)
	List(ctx context.Context, businessID uuid.UUID) ([]*subscription.PlanSubscription, error)
	CountMembers(ctx context.Context, businessID uuid.UUID) (int, error)
	Pause(ctx context.Context, businessID, id uuid.UUID) (*subscription.PlanSubscription, error)
	Resume(ctx context.Context, businessID, id uuid.UUID) (*subscription.PlanSubscription, error)
	Cancel(ctx context.Context, businessID, id uuid.UUID, atPeriodEnd bool) (*subscription.PlanSubscription, error)
	SyncSubscription(ctx context.Context, accountID, subscriptionID string) (subscription.Result, error)
	SyncBusiness(ctx context.Context, businessID uuid.UUID) (*subscription.Report, error)
	SyncAll(ctx context.Context) (*subscription.Report, error)
}

// Scenarios is implemented by *scenario.Runner.
type Scenarios interface {
	Run(ctx context.Context, req scenario.Request) (*scenario.Result, error)
}

// WebhookParser is implemented by *stripeconnect.Client.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*stripeconnect.Event, error)
}

// Guard is implemented by *debounce.Guard.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
	Do(ctx context.Context, key string, fn func(context.Context) error) error
	FirstSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}
