// Package pg bootstraps PostgreSQL access over pgx/v5.
//
// Config is populated from PG_* environment variables. Connect opens a
// *pgxpool.Pool and retries while the database comes up. Migrate runs goose
// migrations from an fs.FS (normally an embed.FS shipped with the binary)
// against the same pool. Healthcheck adapts the pool to the readiness probe
// signature used by httpserver, and InTx wraps a function in a transaction.
//
// The error helpers classify driver errors so stores can translate them into
// domain errors:
//
//	if pg.IsDuplicateKeyError(err) {
//	    return billing.ErrDuplicateSlug
//	}
package pg
