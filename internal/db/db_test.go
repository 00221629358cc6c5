package db_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/internal/db"
	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/pg"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

// newTestPool connects to PG_TEST_URL and applies the migrations. The test
// is skipped when PG_TEST_URL is not set.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("PG_TEST_URL")
	if url == "" {
		t.Skip("PG_TEST_URL not set")
	}
	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString:  url,
		MaxOpenConns:      4,
		MaxIdleConns:      1,
		HealthCheckPeriod: time.Minute,
		RetryAttempts:     1,
		MigrationsTable:   "schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool, cfg, logger.Nop()))
	return pool
}

var ts = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

func newBusiness(t *testing.T, ctx context.Context, s *db.Stores, acct string) *merchant.Business {
	t.Helper()
	id := uuid.New()
	b := &merchant.Business{
		ID:              id,
		Name:            "Oak " + id.String()[:8],
		Slug:            "oak-" + id.String()[:8],
		StripeAccountID: acct,
		Status:          merchant.StatusCreated,
		Transitions: []merchant.StateTransition{
			merchant.CreateStateTransition("", merchant.StatusCreated, merchant.ReasonBusinessCreated, ts, "owner-1"),
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	require.NoError(t, s.Businesses.Create(ctx, b))
	return b
}

func newPlan(t *testing.T, ctx context.Context, s *db.Stores, businessID uuid.UUID, pricing billing.PricingType) *billing.Plan {
	t.Helper()
	m := &billing.Membership{
		ID:                uuid.New(),
		BusinessID:        businessID,
		Name:              "Cellar",
		Slug:              "cellar-" + uuid.NewString()[:8],
		BillingAnchor:     billing.AnchorNextInterval,
		CohortBillingDay:  15,
		ChargeImmediately: true,
		CreatedAt:         ts,
	}
	require.NoError(t, s.Catalog.CreateMembership(ctx, m))
	p := &billing.Plan{
		ID:           uuid.New(),
		BusinessID:   businessID,
		MembershipID: m.ID,
		Name:         "Two bottles",
		PricingType:  pricing,
		Price:        decimal.RequireFromString("49.99"),
		Currency:     "usd",
		StripePrice:  "price_" + uuid.NewString()[:8],
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	require.NoError(t, s.Catalog.CreatePlan(ctx, p))
	return p
}

func TestBusinessStore(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	s := db.New(pool)

	acct := "acct_" + uuid.NewString()[:12]
	b := newBusiness(t, ctx, s, "")

	got, err := s.Businesses.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Slug, got.Slug)
	assert.False(t, got.Connected())
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, merchant.ReasonBusinessCreated, got.Transitions[0].Reason)

	dup := *b
	dup.ID = uuid.New()
	require.ErrorIs(t, s.Businesses.Create(ctx, &dup), merchant.ErrDuplicateSlug)

	got.StripeAccountID = acct
	got.ChargesEnabled = true
	got.Requirements = stripeconnect.Requirements{CurrentlyDue: []string{"external_account"}}
	got.Capabilities = map[string]string{"card_payments": "active", "transfers": "pending"}
	got.Slug = "renamed"
	got.UpdatedAt = ts.Add(time.Hour)
	require.NoError(t, s.Businesses.Update(ctx, got))

	byAcct, err := s.Businesses.GetByAccountID(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, b.Slug, byAcct.Slug, "slug is immutable")
	assert.True(t, byAcct.ChargesEnabled)
	assert.Equal(t, []string{"external_account"}, byAcct.Requirements.CurrentlyDue)
	assert.Equal(t, "pending", byAcct.Capabilities["transfers"])

	connected, err := s.Businesses.ListConnected(ctx)
	require.NoError(t, err)
	var found bool
	for _, c := range connected {
		found = found || c.ID == b.ID
	}
	assert.True(t, found)

	_, err = s.Businesses.Get(ctx, uuid.New())
	require.ErrorIs(t, err, merchant.ErrBusinessNotFound)
	_, err = s.Businesses.GetByAccountID(ctx, "")
	require.ErrorIs(t, err, merchant.ErrBusinessNotFound)
}

func TestCatalogStore(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	s := db.New(pool)
	b := newBusiness(t, ctx, s, "")

	plan := newPlan(t, ctx, s, b.ID, billing.PricingDynamic)
	got, err := s.Catalog.GetPlan(ctx, b.ID, plan.ID)
	require.NoError(t, err)
	assert.True(t, plan.Price.Equal(got.Price))
	_, err = s.Catalog.GetPlan(ctx, uuid.New(), plan.ID)
	require.ErrorIs(t, err, billing.ErrPlanNotFound)

	m, err := s.Catalog.GetMembership(ctx, b.ID, plan.MembershipID)
	require.NoError(t, err)
	assert.Equal(t, 15, m.CohortBillingDay)
	require.ErrorIs(t, s.Catalog.CreateMembership(ctx, &billing.Membership{
		ID: uuid.New(), BusinessID: b.ID, Name: "Again", Slug: m.Slug,
		BillingAnchor: billing.AnchorImmediate, CreatedAt: ts,
	}), billing.ErrDuplicateSlug)

	july := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	first := &billing.PriceQueueItem{ID: uuid.New(), PlanID: plan.ID, EffectiveAt: july, Price: decimal.RequireFromString("40"), CreatedAt: ts}
	require.NoError(t, s.Catalog.SavePriceItem(ctx, first))
	second := &billing.PriceQueueItem{ID: uuid.New(), PlanID: plan.ID, EffectiveAt: july, Price: decimal.RequireFromString("45"), CreatedAt: ts}
	require.NoError(t, s.Catalog.SavePriceItem(ctx, second))

	items, err := s.Catalog.ListPriceItems(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, items, 1, "unapplied item of the month is replaced")
	assert.Equal(t, second.ID, items[0].ID)

	applied := *plan
	applied.StripePrice = "price_july"
	applied.UpdatedAt = july
	require.NoError(t, s.Catalog.ApplyPriceItem(ctx, second.ID, &applied, july))
	require.ErrorIs(t, s.Catalog.SavePriceItem(ctx, &billing.PriceQueueItem{
		ID: uuid.New(), PlanID: plan.ID, EffectiveAt: july, Price: decimal.RequireFromString("50"), CreatedAt: ts,
	}), billing.ErrPriceAlreadyApplied)

	stray := applied
	stray.StripePrice = "price_x"
	require.ErrorIs(t, s.Catalog.ApplyPriceItem(ctx, uuid.New(), &stray, july), billing.ErrPriceItemNotFound)
	current, err := s.Catalog.GetPlan(ctx, b.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "price_july", current.StripePrice, "failed apply leaves the plan alone")

	byQueued, err := s.Catalog.FindPlanByPrice(ctx, b.ID, "price_july")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, byQueued.ID)
	_, err = s.Catalog.FindPlanByPrice(ctx, b.ID, "price_x")
	require.ErrorIs(t, err, billing.ErrPlanNotFound)
	_, err = s.Catalog.FindPlanByPrice(ctx, uuid.New(), "price_july")
	require.ErrorIs(t, err, billing.ErrPlanNotFound)
}

func TestSubscriptionStore(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	s := db.New(pool)
	b := newBusiness(t, ctx, s, "")
	plan := newPlan(t, ctx, s, b.ID, billing.PricingFixed)

	row := func(status subscription.Status, email, customer string) *subscription.PlanSubscription {
		return &subscription.PlanSubscription{
			ID:                   uuid.New(),
			BusinessID:           b.ID,
			PlanID:               plan.ID,
			StripeSubscriptionID: "sub_" + uuid.NewString()[:12],
			StripeCustomerID:     customer,
			CustomerEmail:        email,
			Status:               status,
			CurrentPeriodStart:   ts,
			CurrentPeriodEnd:     ts.AddDate(0, 1, 0),
			LastSyncedAt:         ts,
			SnapshotAt:           ts,
			CreatedAt:            ts,
			UpdatedAt:            ts,
		}
	}

	ann := row(subscription.StatusActive, "Ann@Example.com", "cus_ann")
	require.NoError(t, s.Subscriptions.Create(ctx, ann))
	dup := *ann
	dup.ID = uuid.New()
	require.ErrorIs(t, s.Subscriptions.Create(ctx, &dup), subscription.ErrDuplicateSubscription)

	require.NoError(t, s.Subscriptions.Create(ctx, row(subscription.StatusPaused, "ann@example.com", "cus_ann2")))
	require.NoError(t, s.Subscriptions.Create(ctx, row(subscription.StatusTrialing, "", "cus_bob")))
	require.NoError(t, s.Subscriptions.Create(ctx, row(subscription.StatusCanceled, "cy@example.com", "cus_cy")))

	n, err := s.Subscriptions.CountMembers(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "ann counted once, bob by customer id, cy canceled")

	live, err := s.Subscriptions.FindLive(ctx, b.ID, plan.ID, "ANN@example.com", "")
	require.NoError(t, err)
	assert.True(t, live.Status.Live())
	_, err = s.Subscriptions.FindLive(ctx, b.ID, plan.ID, "cy@example.com", "cus_cy")
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	newer := *ann
	newer.Status = subscription.StatusPastDue
	newer.LastSyncedAt = ts.Add(2 * time.Minute)
	require.NoError(t, s.Subscriptions.Update(ctx, &newer))

	older := *ann
	older.Status = subscription.StatusActive
	older.LastSyncedAt = ts.Add(time.Minute)
	require.NoError(t, s.Subscriptions.Update(ctx, &older))

	got, err := s.Subscriptions.GetByStripeID(ctx, ann.StripeSubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, got.Status, "older write loses")

	missing := *ann
	missing.ID = uuid.New()
	require.ErrorIs(t, s.Subscriptions.Update(ctx, &missing), subscription.ErrSubscriptionNotFound)

	list, err := s.Subscriptions.ListByBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestAuditStore(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	s := db.New(pool)

	businessID := uuid.NewString()
	l := audit.NewLogger(s.Audit)
	require.NoError(t, l.Log(logger.WithActorID(ctx, "owner-1"), businessID, "business.created", audit.WithMetadata("slug", "oak")))
	require.NoError(t, l.Log(ctx, businessID, "subscription.paused"))

	events, err := s.Audit.Query(ctx, audit.Filter{BusinessID: businessID})
	require.NoError(t, err)
	require.Len(t, events, 2)

	created, err := s.Audit.Query(ctx, audit.Filter{BusinessID: businessID, Type: "business.created", Limit: 1})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "owner-1", created[0].ActorUserID)
	assert.Equal(t, "oak", created[0].Metadata["slug"])
}
