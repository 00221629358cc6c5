package billing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/svc/billing"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestModelFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		m       billing.Membership
		want    billing.BillingModel
		wantErr error
	}{
		{
			name: "immediate is rolling",
			m:    billing.Membership{BillingAnchor: billing.AnchorImmediate},
			want: billing.Rolling{},
		},
		{
			name: "next interval charging now",
			m:    billing.Membership{BillingAnchor: billing.AnchorNextInterval, CohortBillingDay: 1, ChargeImmediately: true},
			want: billing.CohortImmediate{Day: 1},
		},
		{
			name: "next interval deferred",
			m:    billing.Membership{BillingAnchor: billing.AnchorNextInterval, CohortBillingDay: 15},
			want: billing.CohortDeferred{Day: 15},
		},
		{
			name:    "cohort day required",
			m:       billing.Membership{BillingAnchor: billing.AnchorNextInterval},
			wantErr: billing.ErrInvalidCohortDay,
		},
		{
			name:    "cohort day above 31",
			m:       billing.Membership{BillingAnchor: billing.AnchorNextInterval, CohortBillingDay: 32},
			wantErr: billing.ErrInvalidCohortDay,
		},
		{
			name:    "unknown anchor",
			m:       billing.Membership{BillingAnchor: "WEEKLY"},
			wantErr: billing.ErrInvalidBillingAnchor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := billing.ModelFor(&tt.m)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeSubscriptionParams(t *testing.T) {
	t.Parallel()

	now := date(2025, 6, 15)
	cohortFirst := date(2025, 7, 1)

	t.Run("cohort immediate anchors on the next cohort date without proration", func(t *testing.T) {
		t.Parallel()
		m := &billing.Membership{BillingAnchor: billing.AnchorNextInterval, CohortBillingDay: 1, ChargeImmediately: true}
		model, err := billing.ModelFor(m)
		require.NoError(t, err)

		p := billing.ComputeSubscriptionParams(model, now)
		assert.Equal(t, cohortFirst, p.BillingCycleAnchor)
		assert.Equal(t, int64(1751328000), p.BillingCycleAnchor.Unix())
		assert.Equal(t, "none", p.ProrationBehavior)
		assert.True(t, p.TrialEnd.IsZero())
		assert.Zero(t, p.AnchorDayOfMonth)
	})

	t.Run("cohort deferred trials until the next cohort date", func(t *testing.T) {
		t.Parallel()
		m := &billing.Membership{BillingAnchor: billing.AnchorNextInterval, CohortBillingDay: 1}
		model, err := billing.ModelFor(m)
		require.NoError(t, err)

		p := billing.ComputeSubscriptionParams(model, now)
		assert.Equal(t, cohortFirst, p.TrialEnd)
		assert.Equal(t, 1, p.AnchorDayOfMonth)
		assert.True(t, p.BillingCycleAnchor.IsZero())
		assert.Empty(t, p.ProrationBehavior)

		cp := p.CreateParams("cus_1", "price_1", nil)
		assert.Equal(t, cohortFirst, cp.TrialEnd)
		assert.Equal(t, 1, cp.BillingCycleAnchorDay)
		assert.True(t, cp.BillingCycleAnchor.IsZero())
	})

	t.Run("rolling sends nothing", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, billing.SubscriptionParams{}, billing.ComputeSubscriptionParams(billing.Rolling{}, now))
	})

	t.Run("models never mix parameters", func(t *testing.T) {
		t.Parallel()
		for day := 1; day <= 31; day++ {
			for _, model := range []billing.BillingModel{billing.Rolling{}, billing.CohortImmediate{Day: day}, billing.CohortDeferred{Day: day}} {
				p := billing.ComputeSubscriptionParams(model, now)
				anchored := !p.BillingCycleAnchor.IsZero() || p.ProrationBehavior != ""
				deferred := !p.TrialEnd.IsZero() || p.AnchorDayOfMonth != 0
				assert.False(t, anchored && deferred, "%s day %d mixes parameters", model.Kind(), day)
				switch model.(type) {
				case billing.CohortImmediate:
					assert.True(t, anchored)
				case billing.CohortDeferred:
					assert.True(t, deferred)
				default:
					assert.False(t, anchored || deferred)
				}
			}
		}
	})
}

func TestNextCohortDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		day  int
		now  time.Time
		want time.Time
	}{
		{"later this month", 20, date(2025, 6, 15), date(2025, 6, 20)},
		{"same day rolls over", 15, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), date(2025, 7, 15)},
		{"past day rolls over", 1, date(2025, 6, 15), date(2025, 7, 1)},
		{"year boundary", 10, date(2025, 12, 20), date(2026, 1, 10)},
		{"31 clamps in a 30 day month", 31, date(2025, 6, 15), date(2025, 6, 30)},
		{"31 on the 30th of a short month", 31, time.Date(2025, 6, 30, 8, 0, 0, 0, time.UTC), date(2025, 7, 31)},
		{"31 into february", 31, date(2025, 1, 31), date(2025, 2, 28)},
		{"29 into leap february", 29, date(2024, 1, 30), date(2024, 2, 29)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, billing.NextCohortDate(tt.day, tt.now))
		})
	}

	t.Run("always strictly in the future on the cohort day", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2024, 1, 1, 13, 30, 0, 0, time.UTC)
		for i := 0; i < 800; i++ {
			now := start.AddDate(0, 0, i)
			for day := 1; day <= 31; day++ {
				got := billing.NextCohortDate(day, now)
				require.True(t, got.After(now), "day %d now %s", day, now)
				lastOfMonth := time.Date(got.Year(), got.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
				assert.Equal(t, min(day, lastOfMonth), got.Day(), "day %d now %s", day, now)
				assert.Zero(t, got.Hour())
			}
		}
	})

	t.Run("computed in now's location", func(t *testing.T) {
		t.Parallel()
		ny, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Skip("tzdata not available")
		}
		now := time.Date(2025, 6, 30, 22, 0, 0, 0, ny)
		got := billing.NextCohortDate(1, now)
		assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, ny), got)
	})
}

func TestParseModelKind(t *testing.T) {
	t.Parallel()

	k, ok := billing.ParseModelKind("cohort-deferred")
	assert.True(t, ok)
	assert.Equal(t, billing.KindCohortDeferred, k)
	_, ok = billing.ParseModelKind("weekly")
	assert.False(t, ok)

	m, err := billing.ModelOf(billing.KindCohortImmediate, 5)
	require.NoError(t, err)
	assert.Equal(t, billing.CohortImmediate{Day: 5}, m)
	_, err = billing.ModelOf(billing.KindCohortDeferred, 0)
	require.ErrorIs(t, err, billing.ErrInvalidCohortDay)
}

func TestResolvePrice(t *testing.T) {
	t.Parallel()

	now := date(2025, 6, 15)
	fixed := &billing.Plan{PricingType: billing.PricingFixed, StripePrice: "price_fixed"}
	dynamic := &billing.Plan{PricingType: billing.PricingDynamic, StripePrice: "price_stale"}

	got, err := billing.ResolvePrice(fixed, nil, now)
	require.NoError(t, err)
	assert.Equal(t, "price_fixed", got)

	_, err = billing.ResolvePrice(&billing.Plan{PricingType: billing.PricingFixed}, nil, now)
	require.ErrorIs(t, err, billing.ErrPlanPriceNotConfigured)

	t.Run("dynamic without applied item", func(t *testing.T) {
		t.Parallel()
		queue := []*billing.PriceQueueItem{
			{EffectiveAt: date(2025, 6, 1), Price: decimal.RequireFromString("49.00")},
		}
		_, err := billing.ResolvePrice(dynamic, queue, now)
		require.ErrorIs(t, err, billing.ErrDynamicPriceNotSet)
		_, err = billing.ResolvePrice(dynamic, nil, now)
		require.ErrorIs(t, err, billing.ErrDynamicPriceNotSet)
	})

	t.Run("dynamic uses latest applied item in effect", func(t *testing.T) {
		t.Parallel()
		queue := []*billing.PriceQueueItem{
			{EffectiveAt: date(2025, 5, 1), Applied: true, StripePrice: "price_may"},
			{EffectiveAt: date(2025, 6, 1), Applied: true, StripePrice: "price_june"},
			{EffectiveAt: date(2025, 7, 1), Applied: true, StripePrice: "price_july"},
		}
		got, err := billing.ResolvePrice(dynamic, queue, now)
		require.NoError(t, err)
		assert.Equal(t, "price_june", got)
	})
}

func TestDueItem(t *testing.T) {
	t.Parallel()

	now := date(2025, 6, 15)
	may := &billing.PriceQueueItem{EffectiveAt: date(2025, 5, 1), Applied: true}
	stale := &billing.PriceQueueItem{EffectiveAt: date(2025, 4, 1)}
	june := &billing.PriceQueueItem{EffectiveAt: date(2025, 6, 1)}
	july := &billing.PriceQueueItem{EffectiveAt: date(2025, 7, 1)}

	assert.Same(t, june, billing.DueItem([]*billing.PriceQueueItem{stale, may, june, july}, now))
	assert.Nil(t, billing.DueItem([]*billing.PriceQueueItem{stale, may, july}, now))
	assert.Same(t, stale, billing.DueItem([]*billing.PriceQueueItem{stale}, now))
}

func TestMinorUnits(t *testing.T) {
	t.Parallel()

	got, err := billing.MinorUnits(decimal.RequireFromString("49.99"))
	require.NoError(t, err)
	assert.Equal(t, int64(4999), got)

	got, err = billing.MinorUnits(decimal.NewFromInt(120))
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got)

	for _, bad := range []string{"0", "-5", "10.005"} {
		_, err := billing.MinorUnits(decimal.RequireFromString(bad))
		require.ErrorIs(t, err, billing.ErrInvalidPrice, bad)
	}
}
