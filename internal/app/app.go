// Package app wires configuration, infrastructure and services into one
// value shared by the server and the job CLI.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/clubkit/internal/db"
	"github.com/dmitrymomot/clubkit/modules/api"
	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/debounce"
	"github.com/dmitrymomot/clubkit/pkg/httpserver"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/pg"
	"github.com/dmitrymomot/clubkit/pkg/redis"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
	"github.com/dmitrymomot/clubkit/svc/scenario"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// App holds every long-lived dependency. Close releases them.
type App struct {
	Config   Config
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *goredis.Client
	Stripe   *stripeconnect.Client
	Registry *prometheus.Registry

	Merchants     *merchant.Service
	Catalog       *billing.Catalog
	Checkout      *billing.Checkout
	Subscriptions *subscription.Service
	Scenarios     *scenario.Runner
	Guard         *debounce.Guard
}

// NewLogger builds the process logger with request, business, actor and
// trigger attributes pulled from context.
func NewLogger(cfg Config) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(
			logger.ValueExtractor("request_id", middleware.RequestIDKey),
			logger.BusinessIDExtractor(),
			logger.ActorIDExtractor(),
			logger.TriggerExtractor(),
		),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.LogLevel))
	}
	return logger.New(opts...)
}

// Connect opens postgres only. Used by commands that need nothing else.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	return pg.Connect(ctx, cfg.Postgres)
}

// New connects to postgres, redis and Stripe and builds the services.
// On failure everything opened so far is closed.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = logger.Nop()
	}
	loc, err := time.LoadLocation(cfg.BillingTimezone)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Pool, err = pg.Connect(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	if a.Redis, err = redis.Connect(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if a.Stripe, err = stripeconnect.New(cfg.Stripe, stripeconnect.WithLogger(log)); err != nil {
		return nil, err
	}

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stores := db.New(a.Pool)
	auditor := audit.NewLogger(stores.Audit, audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
		id := middleware.GetReqID(ctx)
		return id, id != ""
	}))

	a.Merchants = merchant.NewService(stores.Businesses, a.Stripe, auditor,
		merchant.WithLogger(log),
		merchant.WithMetrics(merchant.NewMetrics(a.Registry)),
		merchant.WithConcurrency(cfg.ReconcileConcurrency),
	)
	a.Catalog = billing.NewCatalog(stores.Catalog, a.Merchants, a.Stripe, auditor,
		billing.WithLogger(log),
		billing.WithLocation(loc),
		billing.WithCurrency(a.Stripe.Currency()),
	)
	a.Subscriptions = subscription.NewService(stores.Subscriptions, a.Stripe, stores.Businesses, a.Catalog, auditor,
		subscription.WithLogger(log),
		subscription.WithMetrics(subscription.NewMetrics(a.Registry)),
		subscription.WithConcurrency(cfg.ReconcileConcurrency),
	)
	a.Checkout = billing.NewCheckout(a.Catalog, a.Stripe, a.Subscriptions)
	a.Scenarios = scenario.NewRunner(a.Stripe, a.Merchants,
		scenario.WithLogger(log),
		scenario.WithCohortDay(cfg.ScenarioCohortDay),
	)
	a.Guard = debounce.New(a.Redis,
		debounce.WithWindow(cfg.DebounceTTL),
		debounce.WithSeenTTL(cfg.WebhookDedupTTL),
	)
	return a, nil
}

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, a.Pool, a.Config.Postgres, a.Log)
}

// Router returns the HTTP API backed by this App.
func (a *App) Router() chi.Router {
	return api.Router(api.RouterOptions{
		Merchants:     a.Merchants,
		Catalog:       a.Catalog,
		Checkout:      a.Checkout,
		Subscriptions: a.Subscriptions,
		Scenarios:     a.Scenarios,
		Webhooks:      a.Stripe,
		Guard:         a.Guard,
		Logger:        a.Log,
		Gatherer:      a.Registry,
		Checks: []httpserver.Check{
			{Name: "postgres", Fn: pg.Healthcheck(a.Pool)},
			{Name: "redis", Fn: redis.Healthcheck(a.Redis)},
		},
		ReadinessTimeout: a.Config.HTTP.ReadinessTimeout,
		ScenariosEnabled: a.Config.ScenariosEnabled,
	})
}

// Close releases connections. Safe on a partially built App.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("close redis", logger.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
