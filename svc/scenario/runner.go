package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

// Processor is the slice of the processor client a scenario needs.
type Processor interface {
	CreateTestClock(ctx context.Context, accountID string, frozenTime time.Time, name string) (*stripeconnect.TestClock, error)
	AdvanceTestClock(ctx context.Context, accountID, clockID string, to time.Time) (*stripeconnect.TestClock, error)
	GetTestClock(ctx context.Context, accountID, clockID string) (*stripeconnect.TestClock, error)
	CreateCustomer(ctx context.Context, accountID string, in stripeconnect.CreateCustomerParams) (*stripeconnect.Customer, error)
	CreateProduct(ctx context.Context, accountID, name string) (*stripeconnect.Product, error)
	CreatePrice(ctx context.Context, accountID string, in stripeconnect.CreatePriceParams) (*stripeconnect.Price, error)
	CreateSubscription(ctx context.Context, accountID string, in stripeconnect.CreateSubscriptionParams, idempotencyKey string) (*stripeconnect.Subscription, error)
	ListSubscriptions(ctx context.Context, accountID string, in stripeconnect.ListSubscriptionsParams) ([]*stripeconnect.Subscription, error)
	ListInvoices(ctx context.Context, accountID string, in stripeconnect.ListInvoicesParams) ([]*stripeconnect.Invoice, error)
}

// Merchants checks that a business can sell.
type Merchants interface {
	EnsureCanCharge(ctx context.Context, id uuid.UUID) (*merchant.Business, error)
}

// Runner executes scenarios.
type Runner struct {
	processor Processor
	merchants Merchants
	log       *slog.Logger
	now       func() time.Time

	cohortDay    int
	amount       int64
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCohortDay sets the cohort day used by the cohort scenarios.
func WithCohortDay(day int) Option {
	return func(r *Runner) {
		if day >= 1 && day <= 31 {
			r.cohortDay = day
		}
	}
}

// WithPolling sets how the runner waits for an advancing clock.
func WithPolling(interval, timeout time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.pollInterval = interval
		}
		if timeout > 0 {
			r.pollTimeout = timeout
		}
	}
}

// NewRunner creates a Runner. It panics when a dependency is nil.
func NewRunner(processor Processor, merchants Merchants, opts ...Option) *Runner {
	if processor == nil {
		panic("scenario: processor is required")
	}
	if merchants == nil {
		panic("scenario: merchants are required")
	}
	r := &Runner{
		processor:    processor,
		merchants:    merchants,
		log:          logger.Nop(),
		now:          time.Now,
		cohortDay:    1,
		amount:       2500,
		pollInterval: 2 * time.Second,
		pollTimeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("scenario"))
	return r
}

// Request selects the scenario. PriceID and StartDate are optional: a
// throwaway monthly price is created and today is used when they are empty.
type Request struct {
	BusinessID uuid.UUID
	Kind       billing.ModelKind
	PriceID    string
	StartDate  time.Time
}

// Result is everything the processor produced for the scenario's clock.
type Result struct {
	Kind          billing.ModelKind             `json:"type"`
	ClockID       string                        `json:"clockId"`
	StartDate     time.Time                     `json:"startDate"`
	AdvancedTo    time.Time                     `json:"advancedTo"`
	CustomerID    string                        `json:"customerId"`
	PriceID       string                        `json:"priceId"`
	Params        billing.SubscriptionParams    `json:"params"`
	Subscriptions []*stripeconnect.Subscription `json:"subscriptions"`
	Invoices      []*stripeconnect.Invoice      `json:"invoices"`
}

var minStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes one scenario on the business's connected account.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if _, ok := billing.ParseModelKind(string(req.Kind)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, req.Kind)
	}
	start := req.StartDate
	if start.IsZero() {
		y, m, d := r.now().UTC().Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if start.Before(minStart) {
		return nil, ErrInvalidStartDate
	}
	model, err := billing.ModelOf(req.Kind, r.cohortDay)
	if err != nil {
		return nil, err
	}

	b, err := r.merchants.EnsureCanCharge(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	acct := b.StripeAccountID

	priceID := req.PriceID
	if priceID == "" {
		if priceID, err = r.scratchPrice(ctx, acct, req.Kind); err != nil {
			return nil, errors.Join(ErrFailedToRunScenario, err)
		}
	}

	clock, err := r.processor.CreateTestClock(ctx, acct, start, "scenario "+string(req.Kind))
	if err != nil {
		return nil, errors.Join(ErrFailedToRunScenario, err)
	}
	cust, err := r.processor.CreateCustomer(ctx, acct, stripeconnect.CreateCustomerParams{
		Email:         fmt.Sprintf("scenario+%s@example.com", req.Kind),
		Name:          "Scenario " + string(req.Kind),
		TestClockID:   clock.ID,
		PaymentMethod: "pm_card_visa",
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToRunScenario, err)
	}

	params := billing.ComputeSubscriptionParams(model, clock.FrozenTime)
	sub, err := r.processor.CreateSubscription(ctx, acct, params.CreateParams(cust.ID, priceID, map[string]string{
		"scenario":      string(req.Kind),
		"business_id":   b.ID.String(),
		"billing_model": string(model.Kind()),
	}), "scenario-"+clock.ID)
	if err != nil {
		return nil, errors.Join(ErrFailedToRunScenario, err)
	}

	// One hour past the first period end covers the trial end, the cohort
	// anchor and the anniversary alike.
	to := sub.CurrentPeriodEnd.Add(time.Hour)
	if _, err := r.processor.AdvanceTestClock(ctx, acct, clock.ID, to); err != nil {
		return nil, errors.Join(ErrFailedToRunScenario, err)
	}
	if err := r.waitReady(ctx, acct, clock.ID); err != nil {
		return nil, err
	}

	subs, err := r.processor.ListSubscriptions(ctx, acct, stripeconnect.ListSubscriptionsParams{TestClockID: clock.ID, Status: "all"})
	if err != nil {
		return nil, errors.Join(ErrFailedToRunScenario, err)
	}
	invoices, err := r.processor.ListInvoices(ctx, acct, stripeconnect.ListInvoicesParams{CustomerID: cust.ID})
	if err != nil {
		return nil, errors.Join(ErrFailedToRunScenario, err)
	}

	r.log.InfoContext(ctx, "scenario finished",
		logger.BusinessID(b.ID),
		slog.String("type", string(req.Kind)),
		slog.String("clock_id", clock.ID),
		logger.Count("invoices", len(invoices)),
	)
	return &Result{
		Kind:          req.Kind,
		ClockID:       clock.ID,
		StartDate:     start,
		AdvancedTo:    to,
		CustomerID:    cust.ID,
		PriceID:       priceID,
		Params:        params,
		Subscriptions: subs,
		Invoices:      invoices,
	}, nil
}

func (r *Runner) scratchPrice(ctx context.Context, acct string, kind billing.ModelKind) (string, error) {
	prod, err := r.processor.CreateProduct(ctx, acct, "Scenario "+string(kind))
	if err != nil {
		return "", err
	}
	price, err := r.processor.CreatePrice(ctx, acct, stripeconnect.CreatePriceParams{
		ProductID:  prod.ID,
		UnitAmount: r.amount,
		Interval:   "month",
	})
	if err != nil {
		return "", err
	}
	return price.ID, nil
}

// waitReady polls the clock until the processor finished advancing it.
func (r *Runner) waitReady(ctx context.Context, acct, clockID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		c, err := r.processor.GetTestClock(ctx, acct, clockID)
		if err != nil {
			return errors.Join(ErrFailedToRunScenario, err)
		}
		if c.Status == "ready" {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(ErrClockNotReady, ctx.Err())
		case <-ticker.C:
		}
	}
}
