package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect/stripemock"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

type merchants struct {
	mu    sync.Mutex
	items map[uuid.UUID]*merchant.Business
}

func (m *merchants) add(b *merchant.Business) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[uuid.UUID]*merchant.Business{}
	}
	m.items[b.ID] = b
}

func (m *merchants) Get(_ context.Context, id uuid.UUID) (*merchant.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, merchant.ErrBusinessNotFound
	}
	return b, nil
}

func (m *merchants) EnsureCanCharge(ctx context.Context, id uuid.UUID) (*merchant.Business, error) {
	b, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Connected() {
		return nil, merchant.ErrAccountNotConnected
	}
	if b.Status != merchant.StatusOnboardingComplete {
		return nil, merchant.ErrChargesNotEnabled
	}
	return b, nil
}

type env struct {
	ctx       context.Context
	now       time.Time
	store     *billing.MemoryStore
	merchants *merchants
	stripe    *stripemock.Fake
	audit     *audit.MemoryStorage
	catalog   *billing.Catalog
	business  *merchant.Business
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	e := &env{
		ctx:       context.Background(),
		now:       now,
		store:     billing.NewMemoryStore(),
		merchants: &merchants{},
		stripe:    stripemock.New(),
		audit:     audit.NewMemoryStorage(),
	}
	e.stripe.Now = func() time.Time { return e.now }
	e.business = &merchant.Business{
		ID:              uuid.New(),
		Name:            "Oak & Barrel",
		Slug:            "oak-and-barrel",
		StripeAccountID: "acct_oak",
		Status:          merchant.StatusOnboardingComplete,
	}
	e.merchants.add(e.business)
	e.stripe.PutAccount(stripeconnect.Account{ID: "acct_oak", ChargesEnabled: true, DetailsSubmitted: true})
	e.catalog = billing.NewCatalog(e.store, e.merchants, e.stripe, audit.NewLogger(e.audit),
		billing.WithClock(func() time.Time { return e.now }),
	)
	return e
}

func (e *env) membership(t *testing.T, in billing.MembershipInput) *billing.Membership {
	t.Helper()
	m, err := e.catalog.CreateMembership(e.ctx, e.business.ID, in)
	require.NoError(t, err)
	return m
}

func TestCreateMembership(t *testing.T) {
	t.Parallel()
	e := newEnv(t, date(2025, 6, 15))

	m := e.membership(t, billing.MembershipInput{
		Name:             "Wine Club",
		BillingAnchor:    billing.AnchorNextInterval,
		CohortBillingDay: 1,
	})
	assert.Equal(t, "wine-club", m.Slug)
	assert.False(t, m.ChargeImmediately)

	_, err := e.catalog.CreateMembership(e.ctx, e.business.ID, billing.MembershipInput{
		Name:          "Wine  Club",
		BillingAnchor: billing.AnchorImmediate,
	})
	require.ErrorIs(t, err, billing.ErrDuplicateSlug)

	_, err = e.catalog.CreateMembership(e.ctx, e.business.ID, billing.MembershipInput{
		Name:             "Reserve",
		BillingAnchor:    billing.AnchorNextInterval,
		CohortBillingDay: 0,
	})
	require.ErrorIs(t, err, billing.ErrInvalidCohortDay)

	_, err = e.catalog.CreateMembership(e.ctx, uuid.New(), billing.MembershipInput{
		Name:          "Elsewhere",
		BillingAnchor: billing.AnchorImmediate,
	})
	require.ErrorIs(t, err, merchant.ErrBusinessNotFound)

	events, err := e.audit.Query(e.ctx, audit.Filter{Type: billing.AuditMembershipCreated})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreatePlan(t *testing.T) {
	t.Parallel()
	e := newEnv(t, date(2025, 6, 15))
	m := e.membership(t, billing.MembershipInput{Name: "Wine Club", BillingAnchor: billing.AnchorImmediate})

	fixed, err := e.catalog.CreatePlan(e.ctx, e.business.ID, m.ID, billing.PlanInput{
		Name:        "Two bottles",
		PricingType: billing.PricingFixed,
		Price:       decimal.RequireFromString("59.50"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, fixed.StripePrice)
	price, ok := e.stripe.Price(fixed.StripePrice)
	require.True(t, ok)
	assert.Equal(t, int64(5950), price.UnitAmount)
	assert.Equal(t, "month", price.Interval)

	dynamic, err := e.catalog.CreatePlan(e.ctx, e.business.ID, m.ID, billing.PlanInput{
		Name:        "Market",
		PricingType: billing.PricingDynamic,
	})
	require.NoError(t, err)
	assert.Empty(t, dynamic.StripePrice)
	assert.NotEmpty(t, dynamic.StripeProduct)

	_, err = e.catalog.CreatePlan(e.ctx, e.business.ID, m.ID, billing.PlanInput{
		Name:        "Free",
		PricingType: billing.PricingFixed,
	})
	require.ErrorIs(t, err, billing.ErrInvalidPrice)

	_, err = e.catalog.CreatePlan(e.ctx, e.business.ID, uuid.New(), billing.PlanInput{
		Name:        "Orphan",
		PricingType: billing.PricingDynamic,
	})
	require.ErrorIs(t, err, billing.ErrMembershipNotFound)

	t.Run("processor failure stores nothing", func(t *testing.T) {
		e := newEnv(t, date(2025, 6, 15))
		m := e.membership(t, billing.MembershipInput{Name: "Club", BillingAnchor: billing.AnchorImmediate})
		e.stripe.Fail("product.create", &stripeconnect.Error{Op: "product.create", Type: "api_error", Message: "down"})
		_, err := e.catalog.CreatePlan(e.ctx, e.business.ID, m.ID, billing.PlanInput{
			Name:        "Market",
			PricingType: billing.PricingDynamic,
		})
		require.ErrorIs(t, err, billing.ErrFailedToCreatePrice)
		var se *stripeconnect.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "api_error", se.Type)
		plans, err := e.store.ListDynamicPlans(e.ctx)
		require.NoError(t, err)
		assert.Empty(t, plans)
	})
}

func TestEnqueueAndDrainPrices(t *testing.T) {
	t.Parallel()
	e := newEnv(t, date(2025, 5, 20))
	m := e.membership(t, billing.MembershipInput{Name: "Wine Club", BillingAnchor: billing.AnchorImmediate})
	plan, err := e.catalog.CreatePlan(e.ctx, e.business.ID, m.ID, billing.PlanInput{Name: "Market", PricingType: billing.PricingDynamic})
	require.NoError(t, err)

	_, err = e.catalog.EnqueuePrice(e.ctx, e.business.ID, plan.ID, date(2025, 6, 15), decimal.NewFromInt(40))
	require.ErrorIs(t, err, billing.ErrInvalidEffectiveDate)

	_, err = e.catalog.EnqueuePrice(e.ctx, e.business.ID, plan.ID, date(2025, 6, 1), decimal.NewFromInt(40))
	require.NoError(t, err)
	// Same month again replaces the unapplied item.
	_, err = e.catalog.EnqueuePrice(e.ctx, e.business.ID, plan.ID, date(2025, 6, 1), decimal.RequireFromString("42.50"))
	require.NoError(t, err)
	_, err = e.catalog.EnqueuePrice(e.ctx, e.business.ID, plan.ID, date(2025, 7, 1), decimal.NewFromInt(45))
	require.NoError(t, err)

	queue, err := e.catalog.PriceQueue(e.ctx, e.business.ID, plan.ID)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.True(t, queue[0].Price.Equal(decimal.RequireFromString("42.50")))

	report, err := e.catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
	assert.Equal(t, 1, report.Skipped)

	_, err = e.catalog.PriceFor(e.ctx, plan)
	require.ErrorIs(t, err, billing.ErrDynamicPriceNotSet)

	e.now = date(2025, 6, 1)
	report, err = e.catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)
	junePrice := report.Results[0].StripePrice
	p, ok := e.stripe.Price(junePrice)
	require.True(t, ok)
	assert.Equal(t, int64(4250), p.UnitAmount)

	stored, err := e.store.GetPlan(e.ctx, e.business.ID, plan.ID)
	require.NoError(t, err)
	got, err := e.catalog.PriceFor(e.ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, junePrice, got)

	_, err = e.catalog.EnqueuePrice(e.ctx, e.business.ID, plan.ID, date(2025, 6, 1), decimal.NewFromInt(50))
	require.ErrorIs(t, err, billing.ErrPriceAlreadyApplied)

	report, err = e.catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied, "draining twice changes nothing")

	e.now = date(2025, 7, 3)
	report, err = e.catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)
	old, _ := e.stripe.Price(junePrice)
	assert.False(t, old.Active, "replaced price is archived")

	planID, err := e.catalog.ResolvePlanID(e.ctx, e.business.ID, junePrice)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, planID)
}

func TestDrainCollectsFailures(t *testing.T) {
	t.Parallel()
	e := newEnv(t, date(2025, 6, 2))
	m := e.membership(t, billing.MembershipInput{Name: "Wine Club", BillingAnchor: billing.AnchorImmediate})

	var plans []*billing.Plan
	for _, name := range []string{"A", "B"} {
		p, err := e.catalog.CreatePlan(e.ctx, e.business.ID, m.ID, billing.PlanInput{Name: name, PricingType: billing.PricingDynamic})
		require.NoError(t, err)
		_, err = e.catalog.EnqueuePrice(e.ctx, e.business.ID, p.ID, date(2025, 6, 1), decimal.NewFromInt(30))
		require.NoError(t, err)
		plans = append(plans, p)
	}

	boom := errors.New("rate limited")
	e.stripe.Fail("price.create", boom)
	report, err := e.catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Contains(t, report.Results[0].Reason, "rate limited")

	e.stripe.Fail("price.create", nil)
	report, err = e.catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, len(plans), report.Applied)
}

// flakyStore fails the next ApplyPriceItem call once.
type flakyStore struct {
	*billing.MemoryStore
	fail error
}

func (s *flakyStore) ApplyPriceItem(ctx context.Context, id uuid.UUID, p *billing.Plan, at time.Time) error {
	if err := s.fail; err != nil {
		s.fail = nil
		return err
	}
	return s.MemoryStore.ApplyPriceItem(ctx, id, p, at)
}

func TestDrainRetriesAfterStoreFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t, date(2025, 6, 2))
	store := &flakyStore{MemoryStore: e.store}
	catalog := billing.NewCatalog(store, e.merchants, e.stripe, audit.NewLogger(e.audit),
		billing.WithClock(func() time.Time { return e.now }),
	)
	m := e.membership(t, billing.MembershipInput{Name: "Wine Club", BillingAnchor: billing.AnchorImmediate})
	plan, err := catalog.CreatePlan(e.ctx, e.business.ID, m.ID, billing.PlanInput{Name: "Market", PricingType: billing.PricingDynamic})
	require.NoError(t, err)
	_, err = catalog.EnqueuePrice(e.ctx, e.business.ID, plan.ID, date(2025, 6, 1), decimal.NewFromInt(40))
	require.NoError(t, err)
	report, err := catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)
	junePrice := report.Results[0].StripePrice

	_, err = catalog.EnqueuePrice(e.ctx, e.business.ID, plan.ID, date(2025, 7, 1), decimal.NewFromInt(45))
	require.NoError(t, err)
	e.now = date(2025, 7, 2)
	store.fail = errors.New("connection reset")

	report, err = catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Reason, "connection reset")
	assert.Equal(t, 1, e.stripe.Calls("price.archive"), "unused price is archived")

	stored, err := e.store.GetPlan(e.ctx, e.business.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, junePrice, stored.StripePrice)
	june, _ := e.stripe.Price(junePrice)
	assert.True(t, june.Active, "current price stays active")
	queue, err := catalog.PriceQueue(e.ctx, e.business.ID, plan.ID)
	require.NoError(t, err)
	assert.False(t, queue[1].Applied)

	report, err = catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)
	julyPrice := report.Results[0].StripePrice

	stored, err = e.store.GetPlan(e.ctx, e.business.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, julyPrice, stored.StripePrice)
	june, _ = e.stripe.Price(junePrice)
	assert.False(t, june.Active, "replaced price is archived")
	queue, err = catalog.PriceQueue(e.ctx, e.business.ID, plan.ID)
	require.NoError(t, err)
	assert.True(t, queue[1].Applied)
	assert.Equal(t, julyPrice, queue[1].StripePrice)

	report, err = catalog.DrainPrices(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Applied)
}
