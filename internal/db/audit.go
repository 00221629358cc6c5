package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/pg"
)

// AuditStore implements audit.Storage and audit.Reader. Rows are only ever
// inserted.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Store writes all events or none.
func (s *AuditStore) Store(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	return pg.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, e := range events {
			meta := e.Metadata
			if meta == nil {
				meta = map[string]any{}
			}
			raw, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("encode audit metadata: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO audit_events (id, business_id, actor_user_id, type, metadata, request_id, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				e.ID, e.BusinessID, e.ActorUserID, e.Type, raw, e.RequestID, e.Timestamp); err != nil {
				return fmt.Errorf("record audit: %w", err)
			}
		}
		return nil
	})
}

func (s *AuditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	query := `SELECT id, business_id, actor_user_id, type, metadata, request_id, created_at
		FROM audit_events WHERE 1=1`
	args := []any{}
	idx := 1

	if f.BusinessID != "" {
		query += fmt.Sprintf(` AND business_id = $%d`, idx)
		args = append(args, f.BusinessID)
		idx++
	}
	if f.Type != "" {
		query += fmt.Sprintf(` AND type = $%d`, idx)
		args = append(args, f.Type)
		idx++
	}
	if !f.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, f.Since)
		idx++
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, idx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e   audit.Event
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.ActorUserID, &e.Type, &raw, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		if len(e.Metadata) == 0 {
			e.Metadata = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var (
	_ audit.Storage = (*AuditStore)(nil)
	_ audit.Reader  = (*AuditStore)(nil)
)
