package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/pkg/config"
)

type billingConfig struct {
	Timezone    string        `env:"TEST_BILLING_TZ" envDefault:"UTC"`
	Concurrency int           `env:"TEST_RECONCILE_CONCURRENCY" envDefault:"4"`
	DebounceTTL time.Duration `env:"TEST_DEBOUNCE_TTL" envDefault:"5s"`
}

type requiredConfig struct {
	Secret string `env:"TEST_CLUBKIT_REQUIRED_SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults and cache", func(t *testing.T) {
		config.Reset()
		t.Setenv("TEST_RECONCILE_CONCURRENCY", "8")

		var cfg billingConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "UTC", cfg.Timezone)
		assert.Equal(t, 8, cfg.Concurrency)
		assert.Equal(t, 5*time.Second, cfg.DebounceTTL)

		t.Setenv("TEST_RECONCILE_CONCURRENCY", "16")
		var again billingConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, 8, again.Concurrency, "second load must come from cache")

		config.Reset()
		require.NoError(t, config.Load(&again))
		assert.Equal(t, 16, again.Concurrency)
	})

	t.Run("missing required", func(t *testing.T) {
		config.Reset()
		var cfg requiredConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *billingConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}
