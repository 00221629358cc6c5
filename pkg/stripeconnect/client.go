package stripeconnect

import (
	"context"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/dmitrymomot/clubkit/pkg/logger"
)

// Client talks to Stripe on behalf of the platform and its connected
// accounts. Every method taking accountID sends it as the Stripe-Account
// header; an empty accountID addresses the platform account itself.
type Client struct {
	api      *client.API
	cfg      Config
	log      *slog.Logger
	backends *stripe.Backends
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithBackends replaces the HTTP backends, used to point the client at a
// test server.
func WithBackends(b *stripe.Backends) Option {
	return func(c *Client) { c.backends = b }
}

// New creates a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	c := &Client{cfg: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.backends == nil && cfg.APIBase != "" {
		c.backends = NewBackends(cfg.APIBase, cfg.MaxRetries)
	}
	c.api = client.New(cfg.SecretKey, c.backends)
	return c, nil
}

// NewBackends builds backends that send every request to baseURL.
func NewBackends(baseURL string, maxRetries int64) *stripe.Backends {
	b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(maxRetries),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	return &stripe.Backends{API: b, Connect: b, Uploads: b}
}

// Currency returns the default currency for new prices.
func (c *Client) Currency() string { return c.cfg.Currency }

func scoped(ctx context.Context, p *stripe.Params, accountID string) {
	p.Context = ctx
	if accountID != "" {
		p.SetStripeAccount(accountID)
	}
}

func scopedList(ctx context.Context, p *stripe.ListParams, accountID string, limit int) {
	p.Context = ctx
	if accountID != "" {
		p.SetStripeAccount(accountID)
	}
	if limit > 0 {
		p.Limit = stripe.Int64(int64(limit))
	}
}

// trace logs one processor call once the returned func runs with the call's error.
func (c *Client) trace(ctx context.Context, op, accountID string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		level := slog.LevelDebug
		if *errp != nil {
			level = slog.LevelWarn
		}
		c.log.LogAttrs(ctx, level, "stripe call",
			logger.Component("stripeconnect"),
			logger.Action(op),
			logger.AccountID(accountID),
			logger.Duration(time.Since(start)),
			logger.Error(*errp),
		)
	}
}

// GetAccount retrieves a connected account.
func (c *Client) GetAccount(ctx context.Context, accountID string) (acct *Account, err error) {
	defer c.trace(ctx, "account.get", accountID)(&err)

	params := &stripe.AccountParams{}
	params.Context = ctx
	a, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, wrap("account.get", err)
	}
	return accountFromStripe(a), nil
}

// CreateAccount creates an Express connected account requesting card
// payments and transfers.
func (c *Client) CreateAccount(ctx context.Context, in CreateAccountParams) (acct *Account, err error) {
	defer c.trace(ctx, "account.create", "")(&err)

	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	if in.Country != "" {
		params.Country = stripe.String(in.Country)
	}
	if in.BusinessName != "" {
		params.BusinessProfile = &stripe.AccountBusinessProfileParams{Name: stripe.String(in.BusinessName)}
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	a, err := c.api.Accounts.New(params)
	if err != nil {
		return nil, wrap("account.create", err)
	}
	return accountFromStripe(a), nil
}

// CreateAccountLink issues a hosted onboarding link.
func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (link *AccountLink, err error) {
	defer c.trace(ctx, "account_link.create", accountID)(&err)

	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx

	l, err := c.api.AccountLinks.New(params)
	if err != nil {
		return nil, wrap("account_link.create", err)
	}
	return &AccountLink{URL: l.URL, ExpiresAt: unix(l.ExpiresAt)}, nil
}

func (c *Client) CreateCustomer(ctx context.Context, accountID string, in CreateCustomerParams) (cust *Customer, err error) {
	defer c.trace(ctx, "customer.create", accountID)(&err)

	params := &stripe.CustomerParams{}
	scoped(ctx, &params.Params, accountID)
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	if in.Name != "" {
		params.Name = stripe.String(in.Name)
	}
	if in.TestClockID != "" {
		params.TestClock = stripe.String(in.TestClockID)
	}
	if in.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(in.PaymentMethod)
		params.InvoiceSettings = &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(in.PaymentMethod),
		}
	}

	cu, err := c.api.Customers.New(params)
	if err != nil {
		return nil, wrap("customer.create", err)
	}
	return &Customer{ID: cu.ID, Email: cu.Email}, nil
}

func (c *Client) CreateProduct(ctx context.Context, accountID, name string) (prod *Product, err error) {
	defer c.trace(ctx, "product.create", accountID)(&err)

	params := &stripe.ProductParams{Name: stripe.String(name)}
	scoped(ctx, &params.Params, accountID)

	p, err := c.api.Products.New(params)
	if err != nil {
		return nil, wrap("product.create", err)
	}
	return &Product{ID: p.ID, Name: p.Name}, nil
}

// CreatePrice creates a recurring price. Interval defaults to month and
// currency to the configured one.
func (c *Client) CreatePrice(ctx context.Context, accountID string, in CreatePriceParams) (price *Price, err error) {
	defer c.trace(ctx, "price.create", accountID)(&err)

	currency := in.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	interval := in.Interval
	if interval == "" {
		interval = string(stripe.PriceRecurringIntervalMonth)
	}
	params := &stripe.PriceParams{
		Product:    stripe.String(in.ProductID),
		UnitAmount: stripe.Int64(in.UnitAmount),
		Currency:   stripe.String(currency),
		Recurring:  &stripe.PriceRecurringParams{Interval: stripe.String(interval)},
	}
	scoped(ctx, &params.Params, accountID)

	p, err := c.api.Prices.New(params)
	if err != nil {
		return nil, wrap("price.create", err)
	}
	return priceFromStripe(p), nil
}

// ArchivePrice deactivates a price so it cannot be used for new subscriptions.
func (c *Client) ArchivePrice(ctx context.Context, accountID, priceID string) (err error) {
	defer c.trace(ctx, "price.archive", accountID)(&err)

	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	scoped(ctx, &params.Params, accountID)

	if _, err := c.api.Prices.Update(priceID, params); err != nil {
		return wrap("price.archive", err)
	}
	return nil
}

// CreateSubscription creates a subscription with the computed billing-cycle
// parameters. idempotencyKey, when set, makes retries of the same checkout safe.
func (c *Client) CreateSubscription(ctx context.Context, accountID string, in CreateSubscriptionParams, idempotencyKey string) (sub *Subscription, err error) {
	defer c.trace(ctx, "subscription.create", accountID)(&err)

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(in.CustomerID),
		Items:    []*stripe.SubscriptionItemsParams{{Price: stripe.String(in.PriceID)}},
	}
	scoped(ctx, &params.Params, accountID)
	if !in.TrialEnd.IsZero() {
		params.TrialEnd = stripe.Int64(in.TrialEnd.Unix())
	}
	if !in.BillingCycleAnchor.IsZero() {
		params.BillingCycleAnchor = stripe.Int64(in.BillingCycleAnchor.Unix())
	}
	if in.BillingCycleAnchorDay > 0 {
		params.BillingCycleAnchorConfig = &stripe.SubscriptionBillingCycleAnchorConfigParams{
			DayOfMonth: stripe.Int64(int64(in.BillingCycleAnchorDay)),
		}
	}
	if in.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(in.ProrationBehavior)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	s, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, wrap("subscription.create", err)
	}
	return subscriptionFromStripe(s), nil
}

func (c *Client) GetSubscription(ctx context.Context, accountID, subscriptionID string) (sub *Subscription, err error) {
	defer c.trace(ctx, "subscription.get", accountID)(&err)

	params := &stripe.SubscriptionParams{}
	scoped(ctx, &params.Params, accountID)

	s, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrap("subscription.get", err)
	}
	return subscriptionFromStripe(s), nil
}

// ListSubscriptions pages through every matching subscription.
func (c *Client) ListSubscriptions(ctx context.Context, accountID string, in ListSubscriptionsParams) (subs []*Subscription, err error) {
	defer c.trace(ctx, "subscription.list", accountID)(&err)

	status := in.Status
	if status == "" {
		status = "all"
	}
	params := &stripe.SubscriptionListParams{Status: stripe.String(status)}
	scopedList(ctx, &params.ListParams, accountID, in.Limit)
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	if in.TestClockID != "" {
		params.TestClock = stripe.String(in.TestClockID)
	}

	it := c.api.Subscriptions.List(params)
	for it.Next() {
		subs = append(subs, subscriptionFromStripe(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, wrap("subscription.list", err)
	}
	return subs, nil
}

// PauseSubscription pauses payment collection; invoices created while paused are voided.
func (c *Client) PauseSubscription(ctx context.Context, accountID, subscriptionID string) (sub *Subscription, err error) {
	defer c.trace(ctx, "subscription.pause", accountID)(&err)

	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		},
	}
	scoped(ctx, &params.Params, accountID)

	s, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, wrap("subscription.pause", err)
	}
	return subscriptionFromStripe(s), nil
}

// ResumeSubscription clears pause_collection.
func (c *Client) ResumeSubscription(ctx context.Context, accountID, subscriptionID string) (sub *Subscription, err error) {
	defer c.trace(ctx, "subscription.resume", accountID)(&err)

	params := &stripe.SubscriptionParams{}
	scoped(ctx, &params.Params, accountID)
	params.AddExtra("pause_collection", "")

	s, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, wrap("subscription.resume", err)
	}
	return subscriptionFromStripe(s), nil
}

// CancelSubscription cancels immediately, or flags cancel_at_period_end when atPeriodEnd is set.
func (c *Client) CancelSubscription(ctx context.Context, accountID, subscriptionID string, atPeriodEnd bool) (sub *Subscription, err error) {
	defer c.trace(ctx, "subscription.cancel", accountID)(&err)

	var s *stripe.Subscription
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		scoped(ctx, &params.Params, accountID)
		s, err = c.api.Subscriptions.Update(subscriptionID, params)
	} else {
		params := &stripe.SubscriptionCancelParams{}
		scoped(ctx, &params.Params, accountID)
		s, err = c.api.Subscriptions.Cancel(subscriptionID, params)
	}
	if err != nil {
		return nil, wrap("subscription.cancel", err)
	}
	return subscriptionFromStripe(s), nil
}

func (c *Client) ListInvoices(ctx context.Context, accountID string, in ListInvoicesParams) (invoices []*Invoice, err error) {
	defer c.trace(ctx, "invoice.list", accountID)(&err)

	params := &stripe.InvoiceListParams{}
	scopedList(ctx, &params.ListParams, accountID, in.Limit)
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	if in.SubscriptionID != "" {
		params.Subscription = stripe.String(in.SubscriptionID)
	}

	it := c.api.Invoices.List(params)
	for it.Next() {
		invoices = append(invoices, invoiceFromStripe(it.Invoice()))
	}
	if err := it.Err(); err != nil {
		return nil, wrap("invoice.list", err)
	}
	return invoices, nil
}

func (c *Client) CreateTestClock(ctx context.Context, accountID string, frozenTime time.Time, name string) (clock *TestClock, err error) {
	defer c.trace(ctx, "test_clock.create", accountID)(&err)

	params := &stripe.TestHelpersTestClockParams{FrozenTime: stripe.Int64(frozenTime.Unix())}
	scoped(ctx, &params.Params, accountID)
	if name != "" {
		params.Name = stripe.String(name)
	}

	tc, err := c.api.TestHelpersTestClocks.New(params)
	if err != nil {
		return nil, wrap("test_clock.create", err)
	}
	return testClockFromStripe(tc), nil
}

func (c *Client) AdvanceTestClock(ctx context.Context, accountID, clockID string, to time.Time) (clock *TestClock, err error) {
	defer c.trace(ctx, "test_clock.advance", accountID)(&err)

	params := &stripe.TestHelpersTestClockAdvanceParams{FrozenTime: stripe.Int64(to.Unix())}
	scoped(ctx, &params.Params, accountID)

	tc, err := c.api.TestHelpersTestClocks.Advance(clockID, params)
	if err != nil {
		return nil, wrap("test_clock.advance", err)
	}
	return testClockFromStripe(tc), nil
}

func (c *Client) GetTestClock(ctx context.Context, accountID, clockID string) (clock *TestClock, err error) {
	defer c.trace(ctx, "test_clock.get", accountID)(&err)

	params := &stripe.TestHelpersTestClockParams{}
	scoped(ctx, &params.Params, accountID)

	tc, err := c.api.TestHelpersTestClocks.Get(clockID, params)
	if err != nil {
		return nil, wrap("test_clock.get", err)
	}
	return testClockFromStripe(tc), nil
}
