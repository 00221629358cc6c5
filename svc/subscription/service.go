package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

// Processor is the slice of the processor client used for subscriptions.
type Processor interface {
	GetSubscription(ctx context.Context, accountID, id string) (*stripeconnect.Subscription, error)
	ListSubscriptions(ctx context.Context, accountID string, in stripeconnect.ListSubscriptionsParams) ([]*stripeconnect.Subscription, error)
	PauseSubscription(ctx context.Context, accountID, id string) (*stripeconnect.Subscription, error)
	ResumeSubscription(ctx context.Context, accountID, id string) (*stripeconnect.Subscription, error)
	CancelSubscription(ctx context.Context, accountID, id string, atPeriodEnd bool) (*stripeconnect.Subscription, error)
}

// Businesses looks up tenants and their connected accounts. merchant.Store
// satisfies it.
type Businesses interface {
	Get(ctx context.Context, id uuid.UUID) (*merchant.Business, error)
	GetByAccountID(ctx context.Context, accountID string) (*merchant.Business, error)
	ListConnected(ctx context.Context) ([]*merchant.Business, error)
}

// PlanResolver maps a processor price to the plan selling it.
// billing.Catalog satisfies it.
type PlanResolver interface {
	ResolvePlanID(ctx context.Context, businessID uuid.UUID, priceID string) (uuid.UUID, error)
}

// Auditor appends audit log entries.
type Auditor interface {
	Log(ctx context.Context, businessID, eventType string, opts ...audit.EventOption) error
}

const (
	AuditPaused             = "subscription.paused"
	AuditResumed            = "subscription.resumed"
	AuditCanceled           = "subscription.canceled"
	AuditCancelScheduled    = "subscription.cancel_scheduled"
	AuditBackfilled         = "subscription.backfilled"
	AuditNeedsInvestigation = "subscription.needs_investigation"
)

// Service keeps the local subscription mirror in step with the processor
// and performs member actions.
type Service struct {
	store      Store
	processor  Processor
	businesses Businesses
	plans      PlanResolver
	audit      Auditor
	log        *slog.Logger
	metrics    *Metrics
	machine    *lifecycle
	now        func() time.Time

	concurrency int
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConcurrency bounds how many businesses SyncAll reconciles at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a Service. It panics when a dependency is nil.
func NewService(store Store, processor Processor, businesses Businesses, plans PlanResolver, auditor Auditor, opts ...Option) *Service {
	if store == nil {
		panic("subscription: store is required")
	}
	if processor == nil {
		panic("subscription: processor is required")
	}
	if businesses == nil {
		panic("subscription: businesses are required")
	}
	if plans == nil {
		panic("subscription: plan resolver is required")
	}
	if auditor == nil {
		panic("subscription: auditor is required")
	}
	s := &Service{
		store:       store,
		processor:   processor,
		businesses:  businesses,
		plans:       plans,
		audit:       auditor,
		log:         logger.Nop(),
		metrics:     NewMetrics(nil),
		machine:     newLifecycle(),
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("subscription"))
	return s
}

// Get returns a stored subscription of the business.
func (s *Service) Get(ctx context.Context, businessID, id uuid.UUID) (*PlanSubscription, error) {
	return s.store.Get(ctx, businessID, id)
}

// List returns the business's subscriptions.
func (s *Service) List(ctx context.Context, businessID uuid.UUID) ([]*PlanSubscription, error) {
	return s.store.ListByBusiness(ctx, businessID)
}

// CountMembers returns the number of distinct customers holding a live subscription.
func (s *Service) CountMembers(ctx context.Context, businessID uuid.UUID) (int, error) {
	return s.store.CountMembers(ctx, businessID)
}

// HasActive implements billing.SubscriptionRecorder.
func (s *Service) HasActive(ctx context.Context, businessID, planID uuid.UUID, email, customerID string) (bool, error) {
	_, err := s.store.FindLive(ctx, businessID, planID, email, customerID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrSubscriptionNotFound):
		return false, nil
	default:
		return false, err
	}
}

// RecordCreated implements billing.SubscriptionRecorder. A row already
// created by a webhook is completed with the checkout details instead.
func (s *Service) RecordCreated(ctx context.Context, businessID, planID uuid.UUID, email string, sub *stripeconnect.Subscription) error {
	now := s.now().UTC()
	row := &PlanSubscription{
		ID:                   uuid.New(),
		BusinessID:           businessID,
		PlanID:               planID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.CustomerID,
		CustomerEmail:        email,
		LastSyncedAt:         now,
		SnapshotAt:           now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	row.merge(sub, now)

	err := s.store.Create(ctx, row)
	if errors.Is(err, ErrDuplicateSubscription) {
		existing, gerr := s.store.GetByStripeID(ctx, sub.ID)
		if gerr != nil {
			return errors.Join(ErrFailedToSaveSubscription, gerr)
		}
		if existing.BusinessID != businessID {
			return ErrBusinessMismatch
		}
		if existing.CustomerEmail == "" {
			existing.CustomerEmail = email
		}
		existing.PlanID = planID
		existing.merge(sub, now)
		existing.LastSyncedAt, existing.SnapshotAt, existing.UpdatedAt = now, now, now
		err = s.store.Update(ctx, existing)
	}
	if err != nil {
		return errors.Join(ErrFailedToSaveSubscription, err)
	}
	return nil
}

// Pause pauses payment collection. The subscription stays billable later.
func (s *Service) Pause(ctx context.Context, businessID, id uuid.UUID) (*PlanSubscription, error) {
	return s.perform(ctx, businessID, id, ActionPause)
}

// Resume clears a pause.
func (s *Service) Resume(ctx context.Context, businessID, id uuid.UUID) (*PlanSubscription, error) {
	return s.perform(ctx, businessID, id, ActionResume)
}

// Cancel ends the subscription now, or at the end of the current period.
func (s *Service) Cancel(ctx context.Context, businessID, id uuid.UUID, atPeriodEnd bool) (*PlanSubscription, error) {
	if atPeriodEnd {
		return s.perform(ctx, businessID, id, ActionCancelAtPeriod)
	}
	return s.perform(ctx, businessID, id, ActionCancel)
}

func (s *Service) perform(ctx context.Context, businessID, id uuid.UUID, action Action) (*PlanSubscription, error) {
	row, err := s.store.Get(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	if !s.machine.Can(ctx, row.Status, action, row) {
		s.metrics.Actions.WithLabelValues(string(action), "rejected").Inc()
		return nil, fmt.Errorf("%w: %s while %s", ErrActionNotAllowed, action, row.Status)
	}
	b, err := s.businesses.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !b.Connected() {
		return nil, merchant.ErrAccountNotConnected
	}

	var sub *stripeconnect.Subscription
	switch action {
	case ActionPause:
		sub, err = s.processor.PauseSubscription(ctx, b.StripeAccountID, row.StripeSubscriptionID)
	case ActionResume:
		sub, err = s.processor.ResumeSubscription(ctx, b.StripeAccountID, row.StripeSubscriptionID)
	case ActionCancel:
		sub, err = s.processor.CancelSubscription(ctx, b.StripeAccountID, row.StripeSubscriptionID, false)
	case ActionCancelAtPeriod:
		sub, err = s.processor.CancelSubscription(ctx, b.StripeAccountID, row.StripeSubscriptionID, true)
	}
	if err != nil {
		s.metrics.Actions.WithLabelValues(string(action), "failed").Inc()
		return nil, errors.Join(ErrFailedToPerformAction, err)
	}

	now := s.now().UTC()
	from := row.Status
	row.merge(sub, now)
	row.LastSyncedAt, row.SnapshotAt, row.UpdatedAt = now, now, now
	if err := s.store.Update(ctx, row); err != nil {
		return nil, errors.Join(ErrFailedToSaveSubscription, err)
	}

	s.metrics.Actions.WithLabelValues(string(action), "done").Inc()
	s.record(ctx, businessID, auditTypes[action],
		audit.WithMetadata("subscription_id", row.ID.String()),
		audit.WithMetadata("stripe_subscription_id", row.StripeSubscriptionID),
		audit.WithMetadata("from", string(from)),
		audit.WithMetadata("to", string(row.Status)),
	)
	s.log.InfoContext(ctx, "subscription action performed",
		logger.BusinessID(businessID),
		logger.SubscriptionID(row.StripeSubscriptionID),
		logger.Action(string(action)),
		logger.Transition(from, row.Status),
	)
	return row, nil
}

var auditTypes = map[Action]string{
	ActionPause:          AuditPaused,
	ActionResume:         AuditResumed,
	ActionCancel:         AuditCanceled,
	ActionCancelAtPeriod: AuditCancelScheduled,
}

// record writes an audit entry. Failures are logged and not returned.
func (s *Service) record(ctx context.Context, businessID uuid.UUID, eventType string, opts ...audit.EventOption) {
	if err := s.audit.Log(ctx, businessID.String(), eventType, opts...); err != nil {
		s.log.ErrorContext(ctx, "audit log failed",
			logger.BusinessID(businessID),
			slog.String("type", eventType),
			logger.Error(err),
		)
	}
}

func trigger(ctx context.Context) string {
	if t := logger.TriggerFromContext(ctx); t != "" {
		return t
	}
	return "manual"
}

var _ billing.SubscriptionRecorder = (*Service)(nil)
