package app

import (
	"time"

	"github.com/dmitrymomot/clubkit/pkg/httpserver"
	"github.com/dmitrymomot/clubkit/pkg/pg"
	"github.com/dmitrymomot/clubkit/pkg/redis"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// Config is the process configuration, loaded with config.Load.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"clubkit"`
	LogLevel string `env:"APP_LOG_LEVEL"`

	BillingTimezone      string        `env:"BILLING_TIMEZONE" envDefault:"UTC"`
	ReconcileConcurrency int           `env:"RECONCILE_CONCURRENCY" envDefault:"4"`
	DebounceTTL          time.Duration `env:"DEBOUNCE_TTL" envDefault:"5s"`
	WebhookDedupTTL      time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"72h"`
	ScenariosEnabled     bool          `env:"SCENARIOS_ENABLED" envDefault:"false"`
	ScenarioCohortDay    int           `env:"SCENARIO_COHORT_DAY" envDefault:"1"`
	MigrateOnStart       bool          `env:"MIGRATE_ON_START" envDefault:"false"`

	Postgres pg.Config
	Redis    redis.Config
	HTTP     httpserver.Config
	Stripe   stripeconnect.Config
}
