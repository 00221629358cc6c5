package subscription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

// Outcome is what reconciling one snapshot did.
type Outcome string

const (
	OutcomeUpdated      Outcome = "updated"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeFoundMissing Outcome = "found_missing"
)

const (
	ReasonCanceledUnknown = "Canceled subscription not in database (likely old)"
	ReasonInSync          = "Already in sync"
	ReasonStale           = "Snapshot older than the stored state"
	ReasonUpdated         = "Updated from Stripe"
	ReasonBackfilled      = "Created from Stripe"
)

// Result describes one reconciled subscription.
type Result struct {
	BusinessID           uuid.UUID `json:"businessId"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId"`
	Action               Outcome   `json:"action"`
	Reason               string    `json:"reason"`
	Changes              []string  `json:"changes,omitempty"`
	// Investigate marks a processor subscription that could not be matched
	// to a plan and needs a human.
	Investigate bool `json:"investigate,omitempty"`
}

// Failure is a subscription or business that could not be reconciled.
type Failure struct {
	BusinessID           uuid.UUID `json:"businessId"`
	StripeSubscriptionID string    `json:"stripeSubscriptionId,omitempty"`
	Error                string    `json:"error"`
}

// Report summarizes a batch reconciliation. A batch with failures still
// completes; callers read Failures.
type Report struct {
	Businesses   int       `json:"businesses"`
	Total        int       `json:"total"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
	FoundMissing int       `json:"foundMissing"`
	Investigate  int       `json:"investigate"`
	Failed       int       `json:"failed"`
	Results      []Result  `json:"results"`
	Failures     []Failure `json:"failures"`
}

func (r *Report) add(res Result) {
	r.Total++
	r.Results = append(r.Results, res)
	switch res.Action {
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFoundMissing:
		r.FoundMissing++
	}
	if res.Investigate {
		r.Investigate++
	}
}

func (r *Report) fail(f Failure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}

// Apply reconciles one processor snapshot observed at observedAt into the
// mirror. Applying the same snapshot twice changes nothing the second time.
// A zero observedAt means now.
func (s *Service) Apply(ctx context.Context, businessID uuid.UUID, sub *stripeconnect.Subscription, observedAt time.Time) (Result, error) {
	res, err := s.apply(ctx, businessID, sub, observedAt)
	if err != nil {
		s.metrics.Failures.WithLabelValues(trigger(ctx)).Inc()
		return res, err
	}
	s.metrics.Results.WithLabelValues(trigger(ctx), string(res.Action)).Inc()
	return res, nil
}

func (s *Service) apply(ctx context.Context, businessID uuid.UUID, sub *stripeconnect.Subscription, observedAt time.Time) (Result, error) {
	res := Result{BusinessID: businessID, StripeSubscriptionID: sub.ID}
	now := s.now().UTC()
	if observedAt.IsZero() {
		observedAt = now
	}

	row, err := s.store.GetByStripeID(ctx, sub.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return s.backfill(ctx, res, sub, observedAt)
	}
	if err != nil {
		return res, errors.Join(ErrFailedToSyncSubscription, err)
	}
	if row.BusinessID != businessID {
		return res, ErrBusinessMismatch
	}
	if observedAt.Before(row.SnapshotAt) {
		res.Action, res.Reason = OutcomeSkipped, ReasonStale
		return res, nil
	}

	from := row.Status
	changes := row.merge(sub, now)
	row.LastSyncedAt, row.SnapshotAt = now, observedAt.UTC()
	if len(changes) > 0 {
		row.UpdatedAt = now
	}
	if err := s.store.Update(ctx, row); err != nil {
		return res, errors.Join(ErrFailedToSaveSubscription, err)
	}

	if len(changes) == 0 {
		res.Action, res.Reason = OutcomeSkipped, ReasonInSync
		return res, nil
	}
	res.Action, res.Reason, res.Changes = OutcomeUpdated, ReasonUpdated, changes
	s.log.InfoContext(ctx, "subscription updated from processor",
		logger.BusinessID(businessID),
		logger.SubscriptionID(sub.ID),
		logger.Transition(from, row.Status),
	)
	return res, nil
}

func (s *Service) backfill(ctx context.Context, res Result, sub *stripeconnect.Subscription, observedAt time.Time) (Result, error) {
	if StatusOf(sub) == StatusCanceled {
		res.Action, res.Reason = OutcomeSkipped, ReasonCanceledUnknown
		return res, nil
	}
	res.Action = OutcomeFoundMissing

	planID, err := s.plans.ResolvePlanID(ctx, res.BusinessID, sub.PriceID)
	if errors.Is(err, billing.ErrPlanNotFound) {
		res.Investigate = true
		res.Reason = fmt.Sprintf("No plan uses price %q; needs manual investigation", sub.PriceID)
		s.record(ctx, res.BusinessID, AuditNeedsInvestigation,
			audit.WithMetadata("stripe_subscription_id", sub.ID),
			audit.WithMetadata("price_id", sub.PriceID),
		)
		s.log.WarnContext(ctx, "subscription without a plan",
			logger.BusinessID(res.BusinessID),
			logger.SubscriptionID(sub.ID),
		)
		return res, nil
	}
	if err != nil {
		return res, errors.Join(ErrFailedToSyncSubscription, err)
	}

	now := s.now().UTC()
	row := &PlanSubscription{
		ID:                   uuid.New(),
		BusinessID:           res.BusinessID,
		PlanID:               planID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.CustomerID,
		LastSyncedAt:         now,
		SnapshotAt:           observedAt.UTC(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	row.merge(sub, now)

	err = s.store.Create(ctx, row)
	if errors.Is(err, ErrDuplicateSubscription) {
		// Created concurrently; reconcile against that row.
		return s.apply(ctx, res.BusinessID, sub, observedAt)
	}
	if err != nil {
		return res, errors.Join(ErrFailedToSaveSubscription, err)
	}

	res.Reason = ReasonBackfilled
	s.record(ctx, res.BusinessID, AuditBackfilled,
		audit.WithMetadata("stripe_subscription_id", sub.ID),
		audit.WithMetadata("plan_id", planID.String()),
	)
	return res, nil
}

// SyncSubscription re-reads one subscription on accountID and reconciles
// it. Webhook events go through here so the applied state is always fresh.
func (s *Service) SyncSubscription(ctx context.Context, accountID, subscriptionID string) (Result, error) {
	b, err := s.businesses.GetByAccountID(ctx, accountID)
	if err != nil {
		return Result{StripeSubscriptionID: subscriptionID}, err
	}
	observedAt := s.now()
	sub, err := s.processor.GetSubscription(ctx, accountID, subscriptionID)
	if err != nil {
		s.metrics.Failures.WithLabelValues(trigger(ctx)).Inc()
		return Result{BusinessID: b.ID, StripeSubscriptionID: subscriptionID}, errors.Join(ErrFailedToSyncSubscription, err)
	}
	return s.Apply(ctx, b.ID, sub, observedAt)
}

// SyncBusiness reconciles every processor subscription of one business.
func (s *Service) SyncBusiness(ctx context.Context, businessID uuid.UUID) (*Report, error) {
	b, err := s.businesses.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !b.Connected() {
		return nil, merchant.ErrAccountNotConnected
	}
	report := &Report{Businesses: 1}
	s.syncBusiness(ctx, b, report)
	return report, nil
}

// SyncAll reconciles every connected business with bounded concurrency.
// A failing business or subscription is reported and skipped.
func (s *Service) SyncAll(ctx context.Context) (*Report, error) {
	list, err := s.businesses.ListConnected(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	report := &Report{Businesses: len(list)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, b := range list {
		g.Go(func() error {
			part := &Report{}
			s.syncBusiness(gctx, b, part)

			mu.Lock()
			defer mu.Unlock()
			for _, r := range part.Results {
				report.add(r)
			}
			for _, f := range part.Failures {
				report.fail(f)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(report.Results, func(a, b Result) int {
		return cmp.Or(
			cmp.Compare(a.BusinessID.String(), b.BusinessID.String()),
			cmp.Compare(a.StripeSubscriptionID, b.StripeSubscriptionID),
		)
	})
	s.log.InfoContext(ctx, "subscription reconciliation finished",
		logger.Count("businesses", report.Businesses),
		logger.Count("total", report.Total),
		logger.Count("updated", report.Updated),
		logger.Count("found_missing", report.FoundMissing),
		logger.Count("failed", report.Failed),
	)
	return report, nil
}

func (s *Service) syncBusiness(ctx context.Context, b *merchant.Business, report *Report) {
	observedAt := s.now()
	subs, err := s.processor.ListSubscriptions(ctx, b.StripeAccountID, stripeconnect.ListSubscriptionsParams{Status: "all"})
	if err != nil {
		s.metrics.Failures.WithLabelValues(trigger(ctx)).Inc()
		s.log.ErrorContext(ctx, "listing subscriptions failed", logger.BusinessID(b.ID), logger.Error(err))
		report.fail(Failure{BusinessID: b.ID, Error: err.Error()})
		return
	}
	for _, sub := range subs {
		res, err := s.Apply(ctx, b.ID, sub, observedAt)
		if err != nil {
			s.log.ErrorContext(ctx, "subscription reconciliation failed",
				logger.BusinessID(b.ID),
				logger.SubscriptionID(sub.ID),
				logger.Error(err),
			)
			report.fail(Failure{BusinessID: b.ID, StripeSubscriptionID: sub.ID, Error: err.Error()})
			continue
		}
		report.add(res)
	}
}
