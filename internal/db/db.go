package db

import (
	"context"
	"embed"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/clubkit/pkg/pg"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations holding the goose files.
const MigrationsDir = "migrations"

// Migrate applies every pending migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, cfg, Migrations, MigrationsDir, log)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Stores groups the store of every domain over one pool.
type Stores struct {
	Businesses    *BusinessStore
	Catalog       *CatalogStore
	Subscriptions *SubscriptionStore
	Audit         *AuditStore
}

// New builds all stores over pool.
func New(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Businesses:    NewBusinessStore(pool),
		Catalog:       NewCatalogStore(pool),
		Subscriptions: NewSubscriptionStore(pool),
		Audit:         NewAuditStore(pool),
	}
}

var (
	_ merchant.Store     = (*BusinessStore)(nil)
	_ billing.Store      = (*CatalogStore)(nil)
	_ subscription.Store = (*SubscriptionStore)(nil)
)
