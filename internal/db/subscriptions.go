package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/clubkit/pkg/pg"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

// SubscriptionStore implements subscription.Store.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `id, business_id, plan_id, stripe_subscription_id, stripe_customer_id,
	customer_email, status, pause_collection, current_period_start, current_period_end,
	cancel_at_period_end, trial_end, paused_at, canceled_at, last_synced_at, snapshot_at,
	created_at, updated_at`

func (s *SubscriptionStore) Create(ctx context.Context, ps *subscription.PlanSubscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plan_subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		ps.ID, ps.BusinessID, ps.PlanID, ps.StripeSubscriptionID, ps.StripeCustomerID,
		ps.CustomerEmail, string(ps.Status), ps.PauseCollection, ps.CurrentPeriodStart, ps.CurrentPeriodEnd,
		ps.CancelAtPeriodEnd, ps.TrialEnd, ps.PausedAt, ps.CanceledAt, ps.LastSyncedAt, ps.SnapshotAt,
		ps.CreatedAt, ps.UpdatedAt)
	if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "plan_subscriptions_stripe_subscription_id_key" {
		return subscription.ErrDuplicateSubscription
	}
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Get(ctx context.Context, businessID, id uuid.UUID) (*subscription.PlanSubscription, error) {
	return s.getBy(ctx, `id = $1 AND business_id = $2`, id, businessID)
}

func (s *SubscriptionStore) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*subscription.PlanSubscription, error) {
	return s.getBy(ctx, `stripe_subscription_id = $1`, stripeSubscriptionID)
}

func (s *SubscriptionStore) getBy(ctx context.Context, where string, args ...any) (*subscription.PlanSubscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM plan_subscriptions WHERE `+where, args...)
	ps, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return ps, nil
}

// Update is last-write-wins on last_synced_at: a row synced later than ps
// is left untouched and no error is returned.
func (s *SubscriptionStore) Update(ctx context.Context, ps *subscription.PlanSubscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE plan_subscriptions SET plan_id = $2, stripe_customer_id = $3, customer_email = $4,
			status = $5, pause_collection = $6, current_period_start = $7, current_period_end = $8,
			cancel_at_period_end = $9, trial_end = $10, paused_at = $11, canceled_at = $12,
			last_synced_at = $13, snapshot_at = $14, updated_at = $15
		WHERE id = $1 AND last_synced_at <= $13`,
		ps.ID, ps.PlanID, ps.StripeCustomerID, ps.CustomerEmail,
		string(ps.Status), ps.PauseCollection, ps.CurrentPeriodStart, ps.CurrentPeriodEnd,
		ps.CancelAtPeriodEnd, ps.TrialEnd, ps.PausedAt, ps.CanceledAt,
		ps.LastSyncedAt, ps.SnapshotAt, ps.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM plan_subscriptions WHERE id = $1)`, ps.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if !exists {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func (s *SubscriptionStore) FindLive(ctx context.Context, businessID, planID uuid.UUID, email, customerID string) (*subscription.PlanSubscription, error) {
	if email == "" && customerID == "" {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return s.getBy(ctx, `business_id = $1 AND plan_id = $2 AND status = ANY($3)
		AND (($4 <> '' AND lower(customer_email) = lower($4)) OR ($5 <> '' AND stripe_customer_id = $5))
		LIMIT 1`,
		businessID, planID, liveStatuses(), email, customerID)
}

func (s *SubscriptionStore) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*subscription.PlanSubscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subscriptionColumns+`
		FROM plan_subscriptions WHERE business_id = $1 ORDER BY stripe_subscription_id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*subscription.PlanSubscription
	for rows.Next() {
		ps, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// CountMembers counts customers, not subscriptions: one member holding
// several live plans is counted once.
func (s *SubscriptionStore) CountMembers(ctx context.Context, businessID uuid.UUID) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT COALESCE(NULLIF(lower(customer_email), ''), stripe_customer_id))
		FROM plan_subscriptions
		WHERE business_id = $1 AND status = ANY($2)`,
		businessID, liveStatuses()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return int(n), nil
}

func liveStatuses() []string {
	out := make([]string, 0, len(subscription.LiveStatuses))
	for _, st := range subscription.LiveStatuses {
		out = append(out, string(st))
	}
	return out
}

func scanSubscription(row pgx.Row) (*subscription.PlanSubscription, error) {
	var (
		ps     subscription.PlanSubscription
		status string
	)
	err := row.Scan(&ps.ID, &ps.BusinessID, &ps.PlanID, &ps.StripeSubscriptionID, &ps.StripeCustomerID,
		&ps.CustomerEmail, &status, &ps.PauseCollection, &ps.CurrentPeriodStart, &ps.CurrentPeriodEnd,
		&ps.CancelAtPeriodEnd, &ps.TrialEnd, &ps.PausedAt, &ps.CanceledAt, &ps.LastSyncedAt, &ps.SnapshotAt,
		&ps.CreatedAt, &ps.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ps.Status = subscription.Status(status)
	return &ps, nil
}
