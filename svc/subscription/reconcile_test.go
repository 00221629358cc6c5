package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect/stripemock"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

type plans map[string]uuid.UUID

func (p plans) ResolvePlanID(_ context.Context, _ uuid.UUID, priceID string) (uuid.UUID, error) {
	id, ok := p[priceID]
	if !ok {
		return uuid.Nil, billing.ErrPlanNotFound
	}
	return id, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx       context.Context
	clock     *clock
	store     *subscription.MemoryStore
	merchants *merchant.MemoryStore
	stripe    *stripemock.Fake
	audit     *audit.MemoryStorage
	metrics   *subscription.Metrics
	svc       *subscription.Service
	business  *merchant.Business
	planID    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:       context.Background(),
		clock:     &clock{now: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)},
		store:     subscription.NewMemoryStore(),
		merchants: merchant.NewMemoryStore(),
		stripe:    stripemock.New(),
		audit:     audit.NewMemoryStorage(),
		metrics:   subscription.NewMetrics(prometheus.NewRegistry()),
		planID:    uuid.New(),
	}
	f.stripe.Now = f.clock.Now
	f.business = f.addBusiness(t, "oak-and-barrel", "acct_oak")
	f.svc = subscription.NewService(f.store, f.stripe, f.merchants, plans{"price_case": f.planID}, audit.NewLogger(f.audit),
		subscription.WithClock(f.clock.Now),
		subscription.WithMetrics(f.metrics),
	)
	return f
}

func (f *fixture) addBusiness(t *testing.T, slug, accountID string) *merchant.Business {
	t.Helper()
	b := &merchant.Business{
		ID:              uuid.New(),
		Name:            slug,
		Slug:            slug,
		StripeAccountID: accountID,
		ChargesEnabled:  true,
		Status:          merchant.StatusOnboardingComplete,
	}
	require.NoError(t, f.merchants.Create(f.ctx, b))
	return b
}

func (f *fixture) snapshot(id, status string) *stripeconnect.Subscription {
	start := f.clock.Now()
	return &stripeconnect.Subscription{
		ID:                 id,
		CustomerID:         "cus_" + id,
		PriceID:            "price_case",
		Status:             status,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.AddDate(0, 1, 0),
	}
}

// recorded stores sub both at the processor and in the mirror, as checkout does.
func (f *fixture) recorded(t *testing.T, sub *stripeconnect.Subscription, email string) *subscription.PlanSubscription {
	t.Helper()
	f.stripe.PutSubscription(f.business.StripeAccountID, *sub)
	require.NoError(t, f.svc.RecordCreated(f.ctx, f.business.ID, f.planID, email, sub))
	row, err := f.store.GetByStripeID(f.ctx, sub.ID)
	require.NoError(t, err)
	return row
}

func TestApplyCanceledUnknownSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.svc.Apply(f.ctx, f.business.ID, f.snapshot("sub_old", stripeconnect.StatusCanceled), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeSkipped, res.Action)
	assert.Equal(t, "Canceled subscription not in database (likely old)", res.Reason)

	_, err = f.store.GetByStripeID(f.ctx, "sub_old")
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	rows, err := f.store.ListByBusiness(f.ctx, f.business.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestApplyPastDueUpdatesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.snapshot("sub_1", stripeconnect.StatusActive)
	before := f.recorded(t, sub, "ada@example.com")
	require.Equal(t, subscription.StatusActive, before.Status)

	f.clock.Advance(time.Hour)
	pastDue := *sub
	pastDue.Status = stripeconnect.StatusPastDue

	res, err := f.svc.Apply(f.ctx, f.business.ID, &pastDue, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeUpdated, res.Action)
	assert.Equal(t, []string{subscription.FieldStatus}, res.Changes)

	after, err := f.store.GetByStripeID(f.ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, after.Status)
	assert.True(t, after.LastSyncedAt.After(before.LastSyncedAt))
	assert.Equal(t, before.ID, after.ID)

	f.clock.Advance(time.Hour)
	res, err = f.svc.Apply(f.ctx, f.business.ID, &pastDue, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeSkipped, res.Action)
	assert.Equal(t, subscription.ReasonInSync, res.Reason)
	assert.Empty(t, res.Changes)

	again, err := f.store.GetByStripeID(f.ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, after.UpdatedAt, again.UpdatedAt)
	assert.True(t, again.LastSyncedAt.After(after.LastSyncedAt), "lastSyncedAt is stamped on every pass")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Results.WithLabelValues("manual", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Results.WithLabelValues("manual", "skipped")))
}

func TestApplyBackfill(t *testing.T) {
	t.Parallel()

	t.Run("known price creates the row", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.snapshot("sub_found", stripeconnect.StatusTrialing)
		sub.TrialEnd = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

		res, err := f.svc.Apply(f.ctx, f.business.ID, sub, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeFoundMissing, res.Action)
		assert.False(t, res.Investigate)

		row, err := f.store.GetByStripeID(f.ctx, "sub_found")
		require.NoError(t, err)
		assert.Equal(t, f.planID, row.PlanID)
		assert.Equal(t, subscription.StatusTrialing, row.Status)
		require.NotNil(t, row.TrialEnd)
		assert.Equal(t, sub.TrialEnd, *row.TrialEnd)

		res, err = f.svc.Apply(f.ctx, f.business.ID, sub, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeSkipped, res.Action)

		events, err := f.audit.Query(f.ctx, audit.Filter{Type: subscription.AuditBackfilled})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("unknown price needs investigation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.snapshot("sub_orphan", stripeconnect.StatusActive)
		sub.PriceID = "price_gone"

		res, err := f.svc.Apply(f.ctx, f.business.ID, sub, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeFoundMissing, res.Action)
		assert.True(t, res.Investigate)
		assert.Contains(t, res.Reason, "price_gone")

		_, err = f.store.GetByStripeID(f.ctx, "sub_orphan")
		require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
		events, err := f.audit.Query(f.ctx, audit.Filter{Type: subscription.AuditNeedsInvestigation})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestApplyStaleSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.snapshot("sub_1", stripeconnect.StatusActive)
	f.recorded(t, sub, "ada@example.com")

	older := *sub
	older.Status = stripeconnect.StatusIncomplete
	res, err := f.svc.Apply(f.ctx, f.business.ID, &older, f.clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeSkipped, res.Action)
	assert.Equal(t, subscription.ReasonStale, res.Reason)

	row, err := f.store.GetByStripeID(f.ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, row.Status)
}

func TestApplyConcurrentDeliveriesKeepOneRow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.snapshot("sub_dup", stripeconnect.StatusActive)

	var wg sync.WaitGroup
	results := make([]subscription.Result, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.Apply(f.ctx, f.business.ID, sub, time.Time{})
		}()
	}
	wg.Wait()

	found := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Action == subscription.OutcomeFoundMissing {
			found++
		}
	}
	assert.Equal(t, 1, found)
	rows, err := f.store.ListByBusiness(f.ctx, f.business.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestApplyOtherBusiness(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.snapshot("sub_1", stripeconnect.StatusActive)
	f.recorded(t, sub, "ada@example.com")
	other := f.addBusiness(t, "vine-street", "acct_vine")

	_, err := f.svc.Apply(f.ctx, other.ID, sub, time.Time{})
	require.ErrorIs(t, err, subscription.ErrBusinessMismatch)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Failures.WithLabelValues("manual")))
}

func TestSyncSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.snapshot("sub_hook", stripeconnect.StatusActive)
	f.stripe.PutSubscription("acct_oak", *sub)
	ctx := logger.WithTrigger(f.ctx, "webhook")

	res, err := f.svc.SyncSubscription(ctx, "acct_oak", "sub_hook")
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeFoundMissing, res.Action)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Results.WithLabelValues("webhook", "found_missing")))

	// Checkout recording after the webhook completes the same row.
	require.NoError(t, f.svc.RecordCreated(f.ctx, f.business.ID, f.planID, "ada@example.com", sub))
	row, err := f.store.GetByStripeID(f.ctx, "sub_hook")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", row.CustomerEmail)

	_, err = f.svc.SyncSubscription(ctx, "acct_unknown", "sub_hook")
	require.ErrorIs(t, err, merchant.ErrBusinessNotFound)

	_, err = f.svc.SyncSubscription(ctx, "acct_oak", "sub_missing")
	require.ErrorIs(t, err, subscription.ErrFailedToSyncSubscription)
}

// slowProcessor lets a newer snapshot land while a read is in flight.
type slowProcessor struct {
	*stripemock.Fake
	during func()
}

func (p *slowProcessor) GetSubscription(ctx context.Context, accountID, id string) (*stripeconnect.Subscription, error) {
	sub, err := p.Fake.GetSubscription(ctx, accountID, id)
	p.during()
	return sub, err
}

func TestSyncSubscriptionObservedBeforeRead(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.snapshot("sub_slow", stripeconnect.StatusActive)
	f.recorded(t, sub, "ada@example.com")

	proc := &slowProcessor{Fake: f.stripe, during: func() {
		f.clock.Advance(time.Minute)
		canceled := *sub
		canceled.Status = stripeconnect.StatusCanceled
		_, err := f.svc.Apply(f.ctx, f.business.ID, &canceled, f.clock.Now())
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}}
	svc := subscription.NewService(f.store, proc, f.merchants, plans{"price_case": f.planID}, audit.NewLogger(f.audit),
		subscription.WithClock(f.clock.Now),
	)

	res, err := svc.SyncSubscription(f.ctx, "acct_oak", "sub_slow")
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeSkipped, res.Action)
	assert.Equal(t, subscription.ReasonStale, res.Reason)

	row, err := f.store.GetByStripeID(f.ctx, "sub_slow")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, row.Status)
}

func TestSyncAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	changed := f.snapshot("sub_a", stripeconnect.StatusActive)
	f.recorded(t, changed, "ada@example.com")
	f.stripe.SetSubscriptionStatus("sub_a", stripeconnect.StatusPastDue)

	inSync := f.snapshot("sub_b", stripeconnect.StatusActive)
	f.recorded(t, inSync, "bo@example.com")

	f.stripe.PutSubscription("acct_oak", *f.snapshot("sub_c", stripeconnect.StatusActive))
	f.stripe.PutSubscription("acct_oak", *f.snapshot("sub_d", stripeconnect.StatusCanceled))

	// The processor now lists oak's sub_b under vine; only that item fails.
	vine := f.addBusiness(t, "vine-street", "acct_vine")
	f.stripe.PutSubscription("acct_vine", *inSync)
	f.stripe.PutSubscription("acct_vine", *f.snapshot("sub_e", stripeconnect.StatusActive))

	f.clock.Advance(time.Minute)
	report, err := f.svc.SyncAll(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Businesses)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 2, report.FoundMissing)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, vine.ID, report.Failures[0].BusinessID)
	assert.Equal(t, "sub_b", report.Failures[0].StripeSubscriptionID)

	again, err := f.svc.SyncAll(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Updated, "a second pass changes nothing")
	assert.Zero(t, again.FoundMissing)

	t.Run("listing failure is reported per business", func(t *testing.T) {
		f.stripe.Fail("subscription.list", &stripeconnect.Error{Op: "subscription.list", Type: "api_error"})
		defer f.stripe.Fail("subscription.list", nil)
		report, err := f.svc.SyncAll(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Failed)
		assert.Zero(t, report.Total)
	})
}

func TestCountMembers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a := f.snapshot("sub_a", stripeconnect.StatusActive)
	f.recorded(t, a, "ada@example.com")
	b := f.snapshot("sub_b", stripeconnect.StatusTrialing)
	b.TrialEnd = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	f.recorded(t, b, "ADA@example.com")
	c := f.snapshot("sub_c", stripeconnect.StatusCanceled)
	c.CanceledAt = f.clock.Now()
	f.recorded(t, c, "cy@example.com")

	n, err := f.svc.CountMembers(f.ctx, f.business.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := f.svc.HasActive(f.ctx, f.business.ID, f.planID, "ada@example.com", "")
	require.NoError(t, err)
	assert.True(t, active)
	active, err = f.svc.HasActive(f.ctx, f.business.ID, f.planID, "cy@example.com", "")
	require.NoError(t, err)
	assert.False(t, active)
	active, err = f.svc.HasActive(f.ctx, f.business.ID, f.planID, "", "cus_sub_a")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sub  stripeconnect.Subscription
		want subscription.Status
	}{
		{"active", stripeconnect.Subscription{Status: "active"}, subscription.StatusActive},
		{"paused collection", stripeconnect.Subscription{Status: "active", PauseCollection: "void"}, subscription.StatusPaused},
		{"canceled wins over pause", stripeconnect.Subscription{Status: "canceled", PauseCollection: "void"}, subscription.StatusCanceled},
		{"incomplete expired", stripeconnect.Subscription{Status: "incomplete_expired"}, subscription.StatusCanceled},
		{"processor paused", stripeconnect.Subscription{Status: "paused"}, subscription.StatusPaused},
		{"unpaid", stripeconnect.Subscription{Status: "unpaid"}, subscription.StatusUnpaid},
		{"unknown", stripeconnect.Subscription{Status: "something_new"}, subscription.StatusIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, subscription.StatusOf(&tt.sub))
		})
	}
}
