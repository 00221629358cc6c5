package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// CheckoutProvider creates customers and subscriptions on connected accounts.
type CheckoutProvider interface {
	CreateCustomer(ctx context.Context, accountID string, in stripeconnect.CreateCustomerParams) (*stripeconnect.Customer, error)
	CreateSubscription(ctx context.Context, accountID string, in stripeconnect.CreateSubscriptionParams, idempotencyKey string) (*stripeconnect.Subscription, error)
}

// SubscriptionRecorder is the local subscription mirror as seen by checkout.
type SubscriptionRecorder interface {
	// HasActive reports whether the customer, matched by email or processor
	// customer id, holds a live subscription to the plan.
	HasActive(ctx context.Context, businessID, planID uuid.UUID, email, customerID string) (bool, error)
	RecordCreated(ctx context.Context, businessID, planID uuid.UUID, email string, sub *stripeconnect.Subscription) error
}

// Checkout sells plans to consumers.
type Checkout struct {
	catalog  *Catalog
	provider CheckoutProvider
	subs     SubscriptionRecorder
	log      *slog.Logger
}

// NewCheckout creates a Checkout. It panics when a dependency is nil.
func NewCheckout(catalog *Catalog, provider CheckoutProvider, subs SubscriptionRecorder) *Checkout {
	if catalog == nil {
		panic("billing: catalog is required")
	}
	if provider == nil {
		panic("billing: checkout provider is required")
	}
	if subs == nil {
		panic("billing: subscription recorder is required")
	}
	return &Checkout{
		catalog:  catalog,
		provider: provider,
		subs:     subs,
		log:      catalog.opts.log.With(logger.Component("checkout")),
	}
}

// CheckoutInput identifies the plan and the buyer.
type CheckoutInput struct {
	BusinessID uuid.UUID
	PlanID     uuid.UUID
	Email      string
	Name       string
	// CustomerID reuses an existing processor customer instead of creating one.
	CustomerID    string
	PaymentMethod string
	TestClockID   string
	// IdempotencyKey makes retries return the first subscription created.
	// When empty, CheckoutIdempotencyKey is used.
	IdempotencyKey string
}

// CheckoutIdempotencyKey derives the processor idempotency key from the
// business, plan, buyer and calendar day of the checkout. The buyer is the
// normalized email, or the customer id when no email is given.
func CheckoutIdempotencyKey(in CheckoutInput, day time.Time) string {
	buyer := strings.ToLower(strings.TrimSpace(in.Email))
	if buyer == "" {
		buyer = in.CustomerID
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		in.BusinessID.String(),
		in.PlanID.String(),
		buyer,
		day.Format(time.DateOnly),
	}, "|")))
	return "checkout-" + hex.EncodeToString(sum[:16])
}

// CheckoutResult is a created subscription and the parameters used.
type CheckoutResult struct {
	Subscription *stripeconnect.Subscription `json:"subscription"`
	CustomerID   string                      `json:"customerId"`
	PriceID      string                      `json:"priceId"`
	Model        ModelKind                   `json:"model"`
	Params       SubscriptionParams          `json:"params"`
}

// Subscribe checks every precondition, creates the subscription on the
// connected account and then records the local mirror row. Nothing is
// written locally unless the processor call succeeds.
func (c *Checkout) Subscribe(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" && in.CustomerID == "" {
		return nil, ErrInvalidCustomer
	}

	b, err := c.catalog.merchants.EnsureCanCharge(ctx, in.BusinessID)
	if err != nil {
		return nil, err
	}
	plan, err := c.catalog.store.GetPlan(ctx, in.BusinessID, in.PlanID)
	if err != nil {
		return nil, err
	}
	ms, err := c.catalog.store.GetMembership(ctx, in.BusinessID, plan.MembershipID)
	if err != nil {
		return nil, err
	}
	priceID, err := c.catalog.PriceFor(ctx, plan)
	if err != nil {
		return nil, err
	}
	model, err := ModelFor(ms)
	if err != nil {
		return nil, err
	}

	active, err := c.subs.HasActive(ctx, in.BusinessID, in.PlanID, in.Email, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrAlreadySubscribed
	}

	now := c.catalog.opts.now().In(c.catalog.opts.loc)
	params := ComputeSubscriptionParams(model, now)

	customerID := in.CustomerID
	if customerID == "" {
		cust, err := c.provider.CreateCustomer(ctx, b.StripeAccountID, stripeconnect.CreateCustomerParams{
			Email:         in.Email,
			Name:          in.Name,
			TestClockID:   in.TestClockID,
			PaymentMethod: in.PaymentMethod,
		})
		if err != nil {
			return nil, errors.Join(ErrFailedToCreateSubscription, err)
		}
		customerID = cust.ID
	}

	key := in.IdempotencyKey
	if key == "" {
		key = CheckoutIdempotencyKey(in, now)
	}
	sub, err := c.provider.CreateSubscription(ctx, b.StripeAccountID, params.CreateParams(customerID, priceID, map[string]string{
		"business_id":   in.BusinessID.String(),
		"plan_id":       in.PlanID.String(),
		"membership_id": ms.ID.String(),
		"billing_model": string(model.Kind()),
	}), key)
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateSubscription, err)
	}

	if err := c.subs.RecordCreated(ctx, in.BusinessID, in.PlanID, in.Email, sub); err != nil {
		c.log.ErrorContext(ctx, "subscription created but not recorded",
			logger.BusinessID(in.BusinessID),
			logger.SubscriptionID(sub.ID),
			logger.Error(err),
		)
		return nil, errors.Join(ErrFailedToRecordSubscription, err)
	}

	c.catalog.record(ctx, in.BusinessID, AuditCheckout,
		audit.WithMetadata("plan_id", in.PlanID.String()),
		audit.WithMetadata("stripe_subscription_id", sub.ID),
		audit.WithMetadata("billing_model", string(model.Kind())),
	)
	c.log.InfoContext(ctx, "subscription created",
		logger.BusinessID(in.BusinessID),
		logger.SubscriptionID(sub.ID),
		slog.String("model", string(model.Kind())),
	)

	return &CheckoutResult{
		Subscription: sub,
		CustomerID:   customerID,
		PriceID:      priceID,
		Model:        model.Kind(),
		Params:       params,
	}, nil
}
