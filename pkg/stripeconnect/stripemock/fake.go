// Package stripemock provides an in-memory stand-in for stripeconnect.Client.
//
// The fake keeps accounts, customers, products, prices, subscriptions,
// invoices and test clocks in maps, honours test clock time for subscription
// periods and renewals, and lets tests inject failures per operation.
package stripemock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// Fake implements every method of stripeconnect.Client in memory.
type Fake struct {
	mu sync.Mutex

	Now func() time.Time

	seq           int
	accounts      map[string]*stripeconnect.Account
	customers     map[string]*customer
	prices        map[string]*stripeconnect.Price
	subscriptions map[string]*subscription
	invoices      []*stripeconnect.Invoice
	clocks        map[string]*stripeconnect.TestClock
	idempotent    map[string]string

	failures map[string]error
	calls    map[string]int
	events   []*stripeconnect.Event
}

type customer struct {
	stripeconnect.Customer
	accountID string
	clockID   string
}

type subscription struct {
	stripeconnect.Subscription
	accountID string
	amount    int64
	anchorDay int
}

// New returns an empty Fake whose clock is time.Now.
func New() *Fake {
	return &Fake{
		Now:           time.Now,
		accounts:      map[string]*stripeconnect.Account{},
		customers:     map[string]*customer{},
		prices:        map[string]*stripeconnect.Price{},
		subscriptions: map[string]*subscription{},
		clocks:        map[string]*stripeconnect.TestClock{},
		idempotent:    map[string]string{},
		failures:      map[string]error{},
		calls:         map[string]int{},
	}
}

// Fail makes every following call of op return err until cleared with a nil err.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how many times op was invoked, failed calls included.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// PutAccount stores or replaces a connected account.
func (f *Fake) PutAccount(a stripeconnect.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := a
	f.accounts[a.ID] = &cp
}

// PutSubscription stores a subscription as if it had been created elsewhere.
func (f *Fake) PutSubscription(accountID string, s stripeconnect.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[s.ID] = &subscription{Subscription: s, accountID: accountID}
}

// PutCustomer stores a customer, optionally bound to a test clock.
func (f *Fake) PutCustomer(accountID, id, clockID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[id] = &customer{Customer: stripeconnect.Customer{ID: id}, accountID: accountID, clockID: clockID}
}

// PutPrice stores an active price.
func (f *Fake) PutPrice(p stripeconnect.Price) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	cp.Active = true
	f.prices[p.ID] = &cp
}

// SetSubscriptionStatus changes a stored subscription's status.
func (f *Fake) SetSubscriptionStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subscriptions[id]; ok {
		s.Status = status
	}
}

// Price returns a stored price.
func (f *Fake) Price(id string) (stripeconnect.Price, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[id]
	if !ok {
		return stripeconnect.Price{}, false
	}
	return *p, true
}

// QueueEvent registers an event returned by ParseWebhook for payload == event id.
func (f *Fake) QueueEvent(e *stripeconnect.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	return f.failures[op]
}

func (f *Fake) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%04d", prefix, f.seq)
}

func notFound(op, id string) error {
	return &stripeconnect.Error{
		Op:         op,
		Type:       "invalid_request_error",
		Code:       "resource_missing",
		Message:    "No such object: " + id,
		StatusCode: 404,
	}
}

func (f *Fake) GetAccount(_ context.Context, accountID string) (*stripeconnect.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("account.get"); err != nil {
		return nil, err
	}
	a, ok := f.accounts[accountID]
	if !ok {
		return nil, notFound("account.get", accountID)
	}
	cp := *a
	return &cp, nil
}

func (f *Fake) CreateAccount(_ context.Context, _ stripeconnect.CreateAccountParams) (*stripeconnect.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("account.create"); err != nil {
		return nil, err
	}
	a := &stripeconnect.Account{
		ID: f.id("acct"),
		Requirements: stripeconnect.Requirements{
			CurrentlyDue: []string{"business_profile.url", "external_account", "tos_acceptance.date"},
		},
	}
	f.accounts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *Fake) CreateAccountLink(_ context.Context, accountID, _, _ string) (*stripeconnect.AccountLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("account_link.create"); err != nil {
		return nil, err
	}
	if _, ok := f.accounts[accountID]; !ok {
		return nil, notFound("account_link.create", accountID)
	}
	return &stripeconnect.AccountLink{
		URL:       "https://connect.stripe.test/setup/" + accountID,
		ExpiresAt: f.Now().Add(5 * time.Minute),
	}, nil
}

func (f *Fake) CreateCustomer(_ context.Context, accountID string, in stripeconnect.CreateCustomerParams) (*stripeconnect.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("customer.create"); err != nil {
		return nil, err
	}
	c := &customer{
		Customer:  stripeconnect.Customer{ID: f.id("cus"), Email: in.Email},
		accountID: accountID,
		clockID:   in.TestClockID,
	}
	f.customers[c.ID] = c
	return &stripeconnect.Customer{ID: c.ID, Email: c.Email}, nil
}

func (f *Fake) CreateProduct(_ context.Context, _ string, name string) (*stripeconnect.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("product.create"); err != nil {
		return nil, err
	}
	return &stripeconnect.Product{ID: f.id("prod"), Name: name}, nil
}

func (f *Fake) CreatePrice(_ context.Context, _ string, in stripeconnect.CreatePriceParams) (*stripeconnect.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("price.create"); err != nil {
		return nil, err
	}
	p := &stripeconnect.Price{
		ID:         f.id("price"),
		ProductID:  in.ProductID,
		UnitAmount: in.UnitAmount,
		Currency:   in.Currency,
		Interval:   in.Interval,
		Active:     true,
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}
	if p.Interval == "" {
		p.Interval = "month"
	}
	f.prices[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *Fake) ArchivePrice(_ context.Context, _ string, priceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("price.archive"); err != nil {
		return err
	}
	p, ok := f.prices[priceID]
	if !ok {
		return notFound("price.archive", priceID)
	}
	p.Active = false
	return nil
}

func (f *Fake) CreateSubscription(_ context.Context, accountID string, in stripeconnect.CreateSubscriptionParams, idempotencyKey string) (*stripeconnect.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("subscription.create"); err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		if id, ok := f.idempotent[idempotencyKey]; ok {
			cp := f.subscriptions[id].Subscription
			return &cp, nil
		}
	}
	cust, ok := f.customers[in.CustomerID]
	if !ok {
		return nil, notFound("subscription.create", in.CustomerID)
	}
	price, ok := f.prices[in.PriceID]
	if !ok {
		return nil, notFound("subscription.create", in.PriceID)
	}

	now := f.Now().UTC()
	if clock, ok := f.clocks[cust.clockID]; ok {
		now = clock.FrozenTime
	}

	s := &subscription{
		Subscription: stripeconnect.Subscription{
			ID:                 f.id("sub"),
			CustomerID:         cust.ID,
			PriceID:            price.ID,
			CurrentPeriodStart: now,
			TestClockID:        cust.clockID,
			Metadata:           in.Metadata,
		},
		accountID: accountID,
		amount:    price.UnitAmount,
		anchorDay: now.Day(),
	}
	switch {
	case !in.TrialEnd.IsZero():
		s.Status = stripeconnect.StatusTrialing
		s.TrialEnd = in.TrialEnd
		s.CurrentPeriodEnd = in.TrialEnd
		if in.BillingCycleAnchorDay > 0 {
			s.anchorDay = in.BillingCycleAnchorDay
		}
		f.invoice(s, 0, now, in.TrialEnd)
	case !in.BillingCycleAnchor.IsZero():
		s.Status = stripeconnect.StatusActive
		s.CurrentPeriodEnd = in.BillingCycleAnchor
		s.anchorDay = in.BillingCycleAnchor.Day()
		f.invoice(s, price.UnitAmount, now, in.BillingCycleAnchor)
	default:
		s.Status = stripeconnect.StatusActive
		s.CurrentPeriodEnd = addMonth(now, s.anchorDay)
		f.invoice(s, price.UnitAmount, now, s.CurrentPeriodEnd)
	}

	f.subscriptions[s.ID] = s
	if idempotencyKey != "" {
		f.idempotent[idempotencyKey] = s.ID
	}
	cp := s.Subscription
	return &cp, nil
}

func (f *Fake) invoice(s *subscription, amount int64, start, end time.Time) {
	status, paid := "paid", amount
	if s.Status == stripeconnect.StatusPastDue {
		status, paid = "open", 0
	}
	f.invoices = append(f.invoices, &stripeconnect.Invoice{
		ID:             f.id("in"),
		SubscriptionID: s.ID,
		CustomerID:     s.CustomerID,
		Status:         status,
		AmountDue:      amount,
		AmountPaid:     paid,
		Currency:       "usd",
		PeriodStart:    start,
		PeriodEnd:      end,
		Created:        start,
	})
}

func (f *Fake) GetSubscription(_ context.Context, _ string, id string) (*stripeconnect.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("subscription.get"); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, notFound("subscription.get", id)
	}
	cp := s.Subscription
	return &cp, nil
}

func (f *Fake) ListSubscriptions(_ context.Context, accountID string, in stripeconnect.ListSubscriptionsParams) ([]*stripeconnect.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("subscription.list"); err != nil {
		return nil, err
	}
	var out []*stripeconnect.Subscription
	for _, s := range f.subscriptions {
		if s.accountID != accountID {
			continue
		}
		if in.CustomerID != "" && s.CustomerID != in.CustomerID {
			continue
		}
		if in.TestClockID != "" && s.TestClockID != in.TestClockID {
			continue
		}
		if in.Status != "" && in.Status != "all" && s.Status != in.Status {
			continue
		}
		cp := s.Subscription
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) update(op, id string, fn func(s *subscription) error) (*stripeconnect.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(op); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, notFound(op, id)
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	cp := s.Subscription
	return &cp, nil
}

func (f *Fake) PauseSubscription(_ context.Context, _ string, id string) (*stripeconnect.Subscription, error) {
	return f.update("subscription.pause", id, func(s *subscription) error {
		s.PauseCollection = "void"
		return nil
	})
}

func (f *Fake) ResumeSubscription(_ context.Context, _ string, id string) (*stripeconnect.Subscription, error) {
	return f.update("subscription.resume", id, func(s *subscription) error {
		s.PauseCollection = ""
		return nil
	})
}

func (f *Fake) CancelSubscription(_ context.Context, _ string, id string, atPeriodEnd bool) (*stripeconnect.Subscription, error) {
	return f.update("subscription.cancel", id, func(s *subscription) error {
		if atPeriodEnd {
			s.CancelAtPeriodEnd = true
			return nil
		}
		s.Status = stripeconnect.StatusCanceled
		s.CanceledAt = f.Now().UTC()
		return nil
	})
}

func (f *Fake) ListInvoices(_ context.Context, _ string, in stripeconnect.ListInvoicesParams) ([]*stripeconnect.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("invoice.list"); err != nil {
		return nil, err
	}
	var out []*stripeconnect.Invoice
	for _, inv := range f.invoices {
		if in.CustomerID != "" && inv.CustomerID != in.CustomerID {
			continue
		}
		if in.SubscriptionID != "" && inv.SubscriptionID != in.SubscriptionID {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	return out, nil
}

func (f *Fake) CreateTestClock(_ context.Context, _ string, frozenTime time.Time, name string) (*stripeconnect.TestClock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("test_clock.create"); err != nil {
		return nil, err
	}
	c := &stripeconnect.TestClock{ID: f.id("clock"), Name: name, FrozenTime: frozenTime.UTC(), Status: "ready"}
	f.clocks[c.ID] = c
	cp := *c
	return &cp, nil
}

// AdvanceTestClock moves the clock and renews every subscription of the
// clock's customers whose period ended, issuing one invoice per renewal.
func (f *Fake) AdvanceTestClock(_ context.Context, _ string, clockID string, to time.Time) (*stripeconnect.TestClock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("test_clock.advance"); err != nil {
		return nil, err
	}
	c, ok := f.clocks[clockID]
	if !ok {
		return nil, notFound("test_clock.advance", clockID)
	}
	to = to.UTC()
	if !to.After(c.FrozenTime) {
		return nil, &stripeconnect.Error{Op: "test_clock.advance", Type: "invalid_request_error", Code: "parameter_invalid_integer", Param: "frozen_time", Message: "frozen_time must be after the current time", StatusCode: 400}
	}
	c.FrozenTime = to

	ids := make([]string, 0, len(f.subscriptions))
	for id := range f.subscriptions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := f.subscriptions[id]
		if s.TestClockID != clockID || s.Status == stripeconnect.StatusCanceled {
			continue
		}
		for !s.CurrentPeriodEnd.After(to) {
			if s.CancelAtPeriodEnd {
				s.Status = stripeconnect.StatusCanceled
				s.CanceledAt = s.CurrentPeriodEnd
				break
			}
			start := s.CurrentPeriodEnd
			end := addMonth(start, s.anchorDay)
			s.Status = stripeconnect.StatusActive
			s.CurrentPeriodStart, s.CurrentPeriodEnd = start, end
			amount := s.amount
			if s.Paused() {
				amount = 0
			}
			f.invoice(s, amount, start, end)
		}
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) GetTestClock(_ context.Context, _ string, clockID string) (*stripeconnect.TestClock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("test_clock.get"); err != nil {
		return nil, err
	}
	c, ok := f.clocks[clockID]
	if !ok {
		return nil, notFound("test_clock.get", clockID)
	}
	cp := *c
	return &cp, nil
}

// ParseWebhook returns the queued event whose id equals the payload, with
// "valid" as the only accepted signature.
func (f *Fake) ParseWebhook(payload []byte, signature string) (*stripeconnect.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("webhook.parse"); err != nil {
		return nil, err
	}
	if signature != "valid" {
		return nil, stripeconnect.ErrInvalidSignature
	}
	for _, e := range f.events {
		if e.ID == string(payload) {
			return e, nil
		}
	}
	return nil, stripeconnect.ErrUnexpectedPayload
}

// addMonth returns the same wall time one month later on anchorDay,
// clamped to the month's last day.
func addMonth(t time.Time, anchorDay int) time.Time {
	y, m, _ := t.Date()
	first := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(anchorDay, last)-1)
}
