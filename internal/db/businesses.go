package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/clubkit/pkg/pg"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

// BusinessStore implements merchant.Store.
type BusinessStore struct {
	pool *pgxpool.Pool
}

func NewBusinessStore(pool *pgxpool.Pool) *BusinessStore {
	return &BusinessStore{pool: pool}
}

const businessColumns = `id, owner_user_id, name, slug, email, country,
	COALESCE(stripe_account_id, ''), charges_enabled, details_submitted, payouts_enabled,
	requirements, capabilities, status, transitions, created_at, updated_at`

func (s *BusinessStore) Create(ctx context.Context, b *merchant.Business) error {
	reqs, caps, transitions, err := marshalBusiness(b)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO businesses (id, owner_user_id, name, slug, email, country, stripe_account_id,
			charges_enabled, details_submitted, payouts_enabled, requirements, capabilities, status,
			transitions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7, ''),$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		b.ID, b.OwnerUserID, b.Name, b.Slug, b.Email, b.Country, b.StripeAccountID,
		b.ChargesEnabled, b.DetailsSubmitted, b.PayoutsEnabled, reqs, caps, string(b.Status), transitions,
		b.CreatedAt, b.UpdatedAt)
	if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "businesses_slug_key" {
		return merchant.ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("create business: %w", err)
	}
	return nil
}

func (s *BusinessStore) Get(ctx context.Context, id uuid.UUID) (*merchant.Business, error) {
	return s.getBy(ctx, `id = $1`, id)
}

func (s *BusinessStore) GetBySlug(ctx context.Context, slug string) (*merchant.Business, error) {
	return s.getBy(ctx, `slug = $1`, slug)
}

func (s *BusinessStore) GetByAccountID(ctx context.Context, accountID string) (*merchant.Business, error) {
	if accountID == "" {
		return nil, merchant.ErrBusinessNotFound
	}
	return s.getBy(ctx, `stripe_account_id = $1`, accountID)
}

func (s *BusinessStore) getBy(ctx context.Context, where string, arg any) (*merchant.Business, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE `+where, arg)
	b, err := scanBusiness(row)
	if pg.IsNotFoundError(err) {
		return nil, merchant.ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business: %w", err)
	}
	return b, nil
}

// Update never touches slug or created_at.
func (s *BusinessStore) Update(ctx context.Context, b *merchant.Business) error {
	reqs, caps, transitions, err := marshalBusiness(b)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE businesses SET owner_user_id = $2, name = $3, email = $4, country = $5,
			stripe_account_id = NULLIF($6, ''), charges_enabled = $7, details_submitted = $8,
			payouts_enabled = $9, requirements = $10, capabilities = $11, status = $12,
			transitions = $13, updated_at = $14
		WHERE id = $1`,
		b.ID, b.OwnerUserID, b.Name, b.Email, b.Country, b.StripeAccountID,
		b.ChargesEnabled, b.DetailsSubmitted, b.PayoutsEnabled, reqs, caps, string(b.Status), transitions,
		b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return merchant.ErrBusinessNotFound
	}
	return nil
}

func (s *BusinessStore) ListConnected(ctx context.Context) ([]*merchant.Business, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+businessColumns+`
		FROM businesses WHERE stripe_account_id IS NOT NULL ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var out []*merchant.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBusiness(row pgx.Row) (*merchant.Business, error) {
	var (
		b                       merchant.Business
		status                  string
		reqs, caps, transitions []byte
	)
	err := row.Scan(&b.ID, &b.OwnerUserID, &b.Name, &b.Slug, &b.Email, &b.Country,
		&b.StripeAccountID, &b.ChargesEnabled, &b.DetailsSubmitted, &b.PayoutsEnabled,
		&reqs, &caps, &status, &transitions, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = merchant.Status(status)
	if err := json.Unmarshal(reqs, &b.Requirements); err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}
	if err := json.Unmarshal(caps, &b.Capabilities); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	if len(b.Capabilities) == 0 {
		b.Capabilities = nil
	}
	if err := json.Unmarshal(transitions, &b.Transitions); err != nil {
		return nil, fmt.Errorf("decode transitions: %w", err)
	}
	return &b, nil
}

func marshalBusiness(b *merchant.Business) (reqs, caps, transitions []byte, err error) {
	reqs, err = json.Marshal(b.Requirements)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode requirements: %w", err)
	}
	capabilities := b.Capabilities
	if capabilities == nil {
		capabilities = map[string]string{}
	}
	caps, err = json.Marshal(capabilities)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode capabilities: %w", err)
	}
	list := b.Transitions
	if list == nil {
		list = []merchant.StateTransition{}
	}
	transitions, err = json.Marshal(list)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode transitions: %w", err)
	}
	return reqs, caps, transitions, nil
}
