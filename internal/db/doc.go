// Package db holds the PostgreSQL schema and the pgx-backed stores of every
// domain package.
//
// The schema lives in migrations/ as goose SQL files embedded into the binary
// and applied with Migrate. Each store implements the Store interface of its
// domain package and maps pgx errors to that package's sentinels, so callers
// see merchant.ErrBusinessNotFound or subscription.ErrDuplicateSubscription
// regardless of the backing store.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err := db.Migrate(ctx, pool, cfg, log); err != nil { ... }
//	stores := db.New(pool)
//	svc := merchant.NewService(stores.Businesses, ...)
package db
