package merchant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/slug"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

// AccountProvider is the slice of the processor client used for onboarding.
type AccountProvider interface {
	GetAccount(ctx context.Context, accountID string) (*stripeconnect.Account, error)
	CreateAccount(ctx context.Context, in stripeconnect.CreateAccountParams) (*stripeconnect.Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*stripeconnect.AccountLink, error)
}

// Auditor appends audit log entries.
type Auditor interface {
	Log(ctx context.Context, businessID, eventType string, opts ...audit.EventOption) error
}

// Audit event types written by the Service.
const (
	AuditBusinessCreated   = "business.created"
	AuditDetailsCollected  = "business.details_collected"
	AuditStatusChanged     = "business.status_changed"
	AuditOnboardingStarted = "business.onboarding_started"
)

// Service runs the business onboarding flow and keeps the cached status in
// step with the connected account.
type Service struct {
	store    Store
	accounts AccountProvider
	audit    Auditor
	log      *slog.Logger
	metrics  *Metrics
	resolver StateResolver
	machine  *lifecycle
	now      func() time.Time

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

// WithDisabledReasonPolicy replaces DefaultDisabledReasons.
func WithDisabledReasonPolicy(p DisabledReasonPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.resolver = NewStateResolver(p)
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

// WithConcurrency bounds SyncAll. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a Service. It panics when a required dependency is nil.
func NewService(store Store, accounts AccountProvider, auditor Auditor, opts ...Option) *Service {
	if store == nil {
		panic("merchant: store is required")
	}
	if accounts == nil {
		panic("merchant: account provider is required")
	}
	if auditor == nil {
		panic("merchant: auditor is required")
	}
	s := &Service{
		store:       store,
		accounts:    accounts,
		audit:       auditor,
		log:         logger.Nop(),
		metrics:     NewMetrics(nil),
		resolver:    NewStateResolver(nil),
		machine:     newLifecycle(),
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("merchant"))
	return s
}

// CreateBusinessInput holds the first onboarding step.
type CreateBusinessInput struct {
	Name        string
	OwnerUserID string
	// Slug is optional; it is derived from Name when empty.
	Slug string
}

// CreateBusiness creates a business in CREATED status. A derived slug that
// is already taken gets a random suffix; an explicit one is rejected.
func (s *Service) CreateBusiness(ctx context.Context, in CreateBusinessInput) (*Business, error) {
	name := strings.TrimSpace(in.Name)
	explicit := in.Slug != ""
	key := in.Slug
	if !explicit {
		key = slug.FromName(name)
	}
	if name == "" || key == "" {
		return nil, ErrInvalidName
	}
	if !slug.Valid(key) {
		return nil, ErrInvalidSlug
	}

	now := s.now().UTC()
	b := &Business{
		ID:          uuid.New(),
		OwnerUserID: in.OwnerUserID,
		Name:        name,
		Slug:        key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.moveTo(StatusCreated, ReasonBusinessCreated, now, in.OwnerUserID)

	err := s.store.Create(ctx, b)
	if errors.Is(err, ErrDuplicateSlug) && !explicit {
		b.Slug = slug.FromName(name, slug.WithSuffix(6))
		err = s.store.Create(ctx, b)
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateSlug) {
			return nil, err
		}
		return nil, errors.Join(ErrFailedToSaveBusiness, err)
	}

	s.record(ctx, b, AuditBusinessCreated, audit.WithMetadata("slug", b.Slug))
	s.log.InfoContext(ctx, "business created", logger.BusinessID(b.ID), slog.String("slug", b.Slug))
	return b, nil
}

// Details are the fields required to open a connected account.
type Details struct {
	Name    string
	Email   string
	Country string
}

// RecordDetails stores business details and moves CREATED businesses to
// DETAILS_COLLECTED. The slug is left untouched.
func (s *Service) RecordDetails(ctx context.Context, id uuid.UUID, d Details) (*Business, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.TrimSpace(d.Email)
	d.Country = strings.ToUpper(strings.TrimSpace(d.Country))
	if d.Name == "" || d.Email == "" || len(d.Country) != 2 {
		return nil, ErrInvalidDetails
	}

	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Name, b.Email, b.Country = d.Name, d.Email, d.Country

	if err := s.fire(ctx, b, EventDetailsCollected, ReasonDetailsCollected); err != nil {
		return nil, err
	}
	if err := s.save(ctx, b); err != nil {
		return nil, err
	}
	s.record(ctx, b, AuditDetailsCollected)
	return b, nil
}

// OnboardingResult is returned by StartOnboarding.
type OnboardingResult struct {
	Business        *Business
	AlreadyComplete bool
	URL             string
	ExpiresAt       time.Time
}

// StartOnboarding opens the connected account when needed and issues a
// hosted onboarding link. Businesses that can already sell get no link.
func (s *Service) StartOnboarding(ctx context.Context, id uuid.UUID, refreshURL, returnURL string) (*OnboardingResult, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusCreated || !b.HasDetails() {
		return nil, ErrDetailsRequired
	}

	if !b.Connected() {
		acct, err := s.accounts.CreateAccount(ctx, stripeconnect.CreateAccountParams{
			Email:        b.Email,
			Country:      b.Country,
			BusinessName: b.Name,
			Metadata:     map[string]string{"business_id": b.ID.String(), "slug": b.Slug},
		})
		if err != nil {
			return nil, errors.Join(ErrFailedToCreateAcct, err)
		}
		b.StripeAccountID = acct.ID
		b.applyAccount(AccountStateFrom(acct))
		if err := s.fire(ctx, b, EventAccountCreated, ReasonAccountCreated); err != nil {
			return nil, err
		}
		// Persist the account reference before the next processor call.
		if err := s.save(ctx, b); err != nil {
			return nil, err
		}
	} else {
		acct, err := s.accounts.GetAccount(ctx, b.StripeAccountID)
		if err != nil {
			return nil, errors.Join(ErrFailedToSyncAccount, err)
		}
		if _, err := s.apply(ctx, b, AccountStateFrom(acct), ReasonOnboardingRecheck); err != nil {
			return nil, err
		}
	}

	switch {
	case b.Status == StatusOnboardingComplete:
		return &OnboardingResult{Business: b, AlreadyComplete: true}, nil
	case b.Status.Terminal():
		return nil, ErrAccountDisabled
	}

	link, err := s.accounts.CreateAccountLink(ctx, b.StripeAccountID, refreshURL, returnURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToCreateLink, err)
	}
	if s.machine.Can(ctx, b.Status, EventOnboardingStarted, b) {
		if err := s.fire(ctx, b, EventOnboardingStarted, ReasonOnboardingLink); err != nil {
			return nil, err
		}
		if err := s.save(ctx, b); err != nil {
			return nil, err
		}
	}
	s.record(ctx, b, AuditOnboardingStarted, audit.WithMetadata("account_id", b.StripeAccountID))

	return &OnboardingResult{Business: b, URL: link.URL, ExpiresAt: link.ExpiresAt}, nil
}

// SyncResult describes one account sync.
type SyncResult struct {
	BusinessID uuid.UUID `json:"businessId"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Changed    bool      `json:"changed"`
	Error      string    `json:"error,omitempty"`
}

// SyncAccount re-reads the connected account and recomputes the status.
func (s *Service) SyncAccount(ctx context.Context, id uuid.UUID, reason string) (*Business, SyncResult, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, SyncResult{BusinessID: id}, err
	}
	return s.sync(ctx, b, reason)
}

// SyncAccountByStripeID syncs the business owning accountID. Webhooks use it.
func (s *Service) SyncAccountByStripeID(ctx context.Context, accountID, reason string) (*Business, SyncResult, error) {
	b, err := s.store.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, SyncResult{}, err
	}
	return s.sync(ctx, b, reason)
}

func (s *Service) sync(ctx context.Context, b *Business, reason string) (*Business, SyncResult, error) {
	res := SyncResult{BusinessID: b.ID, From: b.Status, To: b.Status}
	if !b.Connected() {
		return nil, res, ErrAccountNotConnected
	}

	acct, err := s.accounts.GetAccount(ctx, b.StripeAccountID)
	if err != nil {
		s.metrics.SyncErrors.WithLabelValues(trigger(ctx)).Inc()
		return nil, res, errors.Join(ErrFailedToSyncAccount, err)
	}
	if acct.ID != "" && acct.ID != b.StripeAccountID {
		return nil, res, ErrAccountMismatch
	}

	changed, err := s.apply(ctx, b, AccountStateFrom(acct), reason)
	if err != nil {
		s.metrics.SyncErrors.WithLabelValues(trigger(ctx)).Inc()
		return nil, res, err
	}
	res.To, res.Changed = b.Status, changed
	return b, res, nil
}

// apply stores the account read on b, recomputes the status and saves.
func (s *Service) apply(ctx context.Context, b *Business, acct AccountState, reason string) (bool, error) {
	computed := s.resolver.Determine(b.Status, acct)
	next := ResolveStatus(b.Status, computed)

	b.applyAccount(acct)
	from := b.Status
	_, changed := b.moveTo(next, reason, s.now(), triggeredBy(ctx))
	if err := s.save(ctx, b); err != nil {
		return false, err
	}

	if changed {
		s.metrics.Transitions.WithLabelValues(string(from), string(next)).Inc()
		s.record(ctx, b, AuditStatusChanged,
			audit.WithMetadata("from", string(from)),
			audit.WithMetadata("to", string(next)),
			audit.WithMetadata("reason", reason),
		)
		s.log.InfoContext(ctx, "business status changed",
			logger.BusinessID(b.ID),
			logger.Transition(from, next),
			slog.String("reason", reason),
		)
	}
	if computed != next {
		s.log.WarnContext(ctx, "status regression redirected",
			logger.BusinessID(b.ID),
			slog.String("computed", string(computed)),
			logger.Status(next),
		)
	}
	return changed, nil
}

// Get returns the stored business.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Business, error) {
	return s.store.Get(ctx, id)
}

// EnsureCanCharge returns the business when it may create subscriptions.
// The status is recomputed from the stored account read, not trusted as is.
func (s *Service) EnsureCanCharge(ctx context.Context, id uuid.UUID) (*Business, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Connected() {
		return nil, ErrAccountNotConnected
	}
	if !s.resolver.Determine(b.Status, b.AccountState()).CanSell() {
		return nil, ErrChargesNotEnabled
	}
	return b, nil
}

// NextAction returns the dashboard prompt for the business.
func (s *Service) NextAction(ctx context.Context, id uuid.UUID) (NextAction, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return NextAction{}, err
	}
	status := b.Status
	if b.Connected() {
		status = ResolveStatus(b.Status, s.resolver.Determine(b.Status, b.AccountState()))
	}
	state := b.AccountState()
	return GetNextAction(status, &state), nil
}

// SyncReport summarizes SyncAll.
type SyncReport struct {
	Total   int          `json:"total"`
	Changed int          `json:"changed"`
	Failed  int          `json:"failed"`
	Results []SyncResult `json:"results"`
}

// SyncAll syncs every connected business. A failing account is recorded in
// the report and does not stop the others.
func (s *Service) SyncAll(ctx context.Context, reason string) (*SyncReport, error) {
	list, err := s.store.ListConnected(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, b := range list {
		g.Go(func() error {
			_, res, err := s.sync(gctx, b, reason)
			if err != nil {
				res.Error = err.Error()
				s.log.ErrorContext(gctx, "account sync failed", logger.BusinessID(b.ID), logger.Error(err))
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := &SyncReport{Total: len(results), Results: results}
	for _, r := range results {
		switch {
		case r.Error != "":
			report.Failed++
		case r.Changed:
			report.Changed++
		}
	}
	return report, nil
}

func (s *Service) fire(ctx context.Context, b *Business, ev Event, reason string) error {
	if !s.machine.Can(ctx, b.Status, ev, b) {
		// Steps already behind the business are no-ops.
		if ev == EventDetailsCollected && b.Status != StatusCreated {
			return nil
		}
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, b.Status)
	}
	from := b.Status
	to, err := s.machine.Fire(ctx, b.Status, ev, b)
	if err != nil {
		return err
	}
	if _, ok := b.moveTo(to, reason, s.now(), triggeredBy(ctx)); ok {
		s.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	}
	return nil
}

func (s *Service) save(ctx context.Context, b *Business) error {
	b.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, b); err != nil {
		if errors.Is(err, ErrBusinessNotFound) {
			return err
		}
		return errors.Join(ErrFailedToSaveBusiness, err)
	}
	return nil
}

// record writes an audit entry. Failures are logged and not returned.
func (s *Service) record(ctx context.Context, b *Business, eventType string, opts ...audit.EventOption) {
	if err := s.audit.Log(ctx, b.ID.String(), eventType, opts...); err != nil {
		s.log.ErrorContext(ctx, "audit log failed",
			logger.BusinessID(b.ID),
			slog.String("type", eventType),
			logger.Error(err),
		)
	}
}

// triggeredBy names the actor, or the trigger for system work.
func triggeredBy(ctx context.Context) string {
	if a := logger.ActorFromContext(ctx); a != "" {
		return a
	}
	return logger.TriggerFromContext(ctx)
}

func trigger(ctx context.Context) string {
	if t := logger.TriggerFromContext(ctx); t != "" {
		return t
	}
	return "manual"
}
