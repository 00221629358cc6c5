package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/clubkit/pkg/pg"
	"github.com/dmitrymomot/clubkit/svc/billing"
)

// CatalogStore implements billing.Store.
type CatalogStore struct {
	pool *pgxpool.Pool
}

func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const (
	membershipColumns = `id, business_id, name, slug, description, billing_anchor,
		COALESCE(cohort_billing_day, 0), charge_immediately, created_at`
	planColumns = `id, business_id, membership_id, name, pricing_type, price::text, currency,
		stripe_product_id, stripe_price_id, created_at, updated_at`
	priceItemColumns = `id, plan_id, effective_at, price::text, applied, applied_at,
		stripe_price_id, created_at`
)

func (s *CatalogStore) CreateMembership(ctx context.Context, m *billing.Membership) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (id, business_id, name, slug, description, billing_anchor,
			cohort_billing_day, charge_immediately, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7, 0),$8,$9)`,
		m.ID, m.BusinessID, m.Name, m.Slug, m.Description, string(m.BillingAnchor),
		m.CohortBillingDay, m.ChargeImmediately, m.CreatedAt)
	if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "memberships_business_slug_key" {
		return billing.ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

func (s *CatalogStore) GetMembership(ctx context.Context, businessID, id uuid.UUID) (*billing.Membership, error) {
	m, err := scanMembership(s.pool.QueryRow(ctx, `SELECT `+membershipColumns+`
		FROM memberships WHERE id = $1 AND business_id = $2`, id, businessID))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *CatalogStore) ListMemberships(ctx context.Context, businessID uuid.UUID) ([]*billing.Membership, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+membershipColumns+`
		FROM memberships WHERE business_id = $1 ORDER BY slug`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*billing.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *CatalogStore) CreatePlan(ctx context.Context, p *billing.Plan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plans (id, business_id, membership_id, name, pricing_type, price, currency,
			stripe_product_id, stripe_price_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11)`,
		p.ID, p.BusinessID, p.MembershipID, p.Name, string(p.PricingType), p.Price.String(), p.Currency,
		p.StripeProduct, p.StripePrice, p.CreatedAt, p.UpdatedAt)
	if pg.IsForeignKeyViolationError(err) {
		return billing.ErrMembershipNotFound
	}
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

func (s *CatalogStore) GetPlan(ctx context.Context, businessID, id uuid.UUID) (*billing.Plan, error) {
	return s.planBy(ctx, `id = $1 AND business_id = $2`, id, businessID)
}

func (s *CatalogStore) UpdatePlan(ctx context.Context, p *billing.Plan) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE plans SET name = $2, price = $3::numeric, currency = $4, stripe_product_id = $5,
			stripe_price_id = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Name, p.Price.String(), p.Currency, p.StripeProduct, p.StripePrice, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrPlanNotFound
	}
	return nil
}

// FindPlanByPrice matches the plan's current price first, then any price an
// applied queue item ever used.
func (s *CatalogStore) FindPlanByPrice(ctx context.Context, businessID uuid.UUID, priceID string) (*billing.Plan, error) {
	if priceID == "" {
		return nil, billing.ErrPlanNotFound
	}
	return s.planBy(ctx, `business_id = $1 AND (stripe_price_id = $2 OR id IN (
			SELECT plan_id FROM price_queue_items WHERE applied AND stripe_price_id = $2))
		ORDER BY (stripe_price_id = $2) DESC LIMIT 1`, businessID, priceID)
}

func (s *CatalogStore) planBy(ctx context.Context, where string, args ...any) (*billing.Plan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE `+where, args...))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (s *CatalogStore) ListDynamicPlans(ctx context.Context) ([]*billing.Plan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+`
		FROM plans WHERE pricing_type = $1 ORDER BY created_at`, string(billing.PricingDynamic))
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*billing.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePriceItem replaces the unapplied item of the same plan and month in
// one transaction.
func (s *CatalogStore) SavePriceItem(ctx context.Context, it *billing.PriceQueueItem) error {
	return pg.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var applied bool
		err := tx.QueryRow(ctx, `
			SELECT applied FROM price_queue_items
			WHERE plan_id = $1 AND effective_at = $2 FOR UPDATE`,
			it.PlanID, it.EffectiveAt).Scan(&applied)
		switch {
		case pg.IsNotFoundError(err):
		case err != nil:
			return fmt.Errorf("lock price item: %w", err)
		case applied:
			return billing.ErrPriceAlreadyApplied
		default:
			if _, err := tx.Exec(ctx, `
				DELETE FROM price_queue_items WHERE plan_id = $1 AND effective_at = $2 AND NOT applied`,
				it.PlanID, it.EffectiveAt); err != nil {
				return fmt.Errorf("replace price item: %w", err)
			}
		}
		return insertPriceItem(ctx, tx, it)
	})
}

func insertPriceItem(ctx context.Context, q querier, it *billing.PriceQueueItem) error {
	_, err := q.Exec(ctx, `
		INSERT INTO price_queue_items (id, plan_id, effective_at, price, applied, applied_at,
			stripe_price_id, created_at)
		VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8)`,
		it.ID, it.PlanID, it.EffectiveAt, it.Price.String(), it.Applied, it.AppliedAt,
		it.StripePrice, it.CreatedAt)
	if pg.IsDuplicateKeyError(err) {
		// Lost a race with a concurrent save of the same month.
		return billing.ErrPriceAlreadyApplied
	}
	if pg.IsForeignKeyViolationError(err) {
		return billing.ErrPlanNotFound
	}
	if err != nil {
		return fmt.Errorf("insert price item: %w", err)
	}
	return nil
}

func (s *CatalogStore) ApplyPriceItem(ctx context.Context, id uuid.UUID, p *billing.Plan, at time.Time) error {
	return pg.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE price_queue_items SET applied = TRUE, stripe_price_id = $3, applied_at = $4
			WHERE id = $1 AND plan_id = $2`, id, p.ID, p.StripePrice, at)
		if err != nil {
			return fmt.Errorf("mark price item applied: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return billing.ErrPriceItemNotFound
		}
		tag, err = tx.Exec(ctx, `
			UPDATE plans SET stripe_price_id = $2, updated_at = $3 WHERE id = $1`,
			p.ID, p.StripePrice, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update plan price: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return billing.ErrPlanNotFound
		}
		return nil
	})
}

func (s *CatalogStore) ListPriceItems(ctx context.Context, planID uuid.UUID) ([]*billing.PriceQueueItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+priceItemColumns+`
		FROM price_queue_items WHERE plan_id = $1 ORDER BY effective_at`, planID)
	if err != nil {
		return nil, fmt.Errorf("list price items: %w", err)
	}
	defer rows.Close()

	var out []*billing.PriceQueueItem
	for rows.Next() {
		var (
			it    billing.PriceQueueItem
			price string
		)
		if err := rows.Scan(&it.ID, &it.PlanID, &it.EffectiveAt, &price, &it.Applied, &it.AppliedAt,
			&it.StripePrice, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan price item: %w", err)
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("decode price: %w", err)
		}
		it.EffectiveAt = it.EffectiveAt.UTC()
		out = append(out, &it)
	}
	return out, rows.Err()
}

func scanMembership(row pgx.Row) (*billing.Membership, error) {
	var (
		m      billing.Membership
		anchor string
		day    int32
	)
	if err := row.Scan(&m.ID, &m.BusinessID, &m.Name, &m.Slug, &m.Description, &anchor,
		&day, &m.ChargeImmediately, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.BillingAnchor = billing.BillingAnchor(anchor)
	m.CohortBillingDay = int(day)
	return &m, nil
}

func scanPlan(row pgx.Row) (*billing.Plan, error) {
	var (
		p           billing.Plan
		pricingType string
		price       string
	)
	if err := row.Scan(&p.ID, &p.BusinessID, &p.MembershipID, &p.Name, &pricingType, &price,
		&p.Currency, &p.StripeProduct, &p.StripePrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PricingType = billing.PricingType(pricingType)
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("decode price: %w", err)
	}
	return &p, nil
}
