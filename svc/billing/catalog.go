package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/slug"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

// Merchants gives access to businesses and their charge readiness.
type Merchants interface {
	Get(ctx context.Context, id uuid.UUID) (*merchant.Business, error)
	EnsureCanCharge(ctx context.Context, id uuid.UUID) (*merchant.Business, error)
}

// PriceProvider manages products and prices on connected accounts.
type PriceProvider interface {
	CreateProduct(ctx context.Context, accountID, name string) (*stripeconnect.Product, error)
	CreatePrice(ctx context.Context, accountID string, in stripeconnect.CreatePriceParams) (*stripeconnect.Price, error)
	ArchivePrice(ctx context.Context, accountID, priceID string) error
}

// Auditor appends audit log entries.
type Auditor interface {
	Log(ctx context.Context, businessID, eventType string, opts ...audit.EventOption) error
}

const (
	AuditMembershipCreated = "membership.created"
	AuditPlanCreated       = "plan.created"
	AuditPriceEnqueued     = "price.enqueued"
	AuditPriceApplied      = "price.applied"
	AuditCheckout          = "subscription.created"
)

// Catalog manages memberships, plans and their prices.
type Catalog struct {
	store     Store
	merchants Merchants
	prices    PriceProvider
	audit     Auditor
	opts      options
	log       *slog.Logger
}

// NewCatalog creates a Catalog. It panics when a dependency is nil.
func NewCatalog(store Store, merchants Merchants, prices PriceProvider, auditor Auditor, opts ...Option) *Catalog {
	if store == nil {
		panic("billing: store is required")
	}
	if merchants == nil {
		panic("billing: merchants are required")
	}
	if prices == nil {
		panic("billing: price provider is required")
	}
	if auditor == nil {
		panic("billing: auditor is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Catalog{
		store:     store,
		merchants: merchants,
		prices:    prices,
		audit:     auditor,
		opts:      o,
		log:       o.log.With(logger.Component("catalog")),
	}
}

// MembershipInput describes a new membership.
type MembershipInput struct {
	Name              string
	Slug              string
	Description       string
	BillingAnchor     BillingAnchor
	CohortBillingDay  int
	ChargeImmediately bool
}

// CreateMembership validates the billing policy and stores the membership.
func (c *Catalog) CreateMembership(ctx context.Context, businessID uuid.UUID, in MembershipInput) (*Membership, error) {
	m := &Membership{
		ID:                uuid.New(),
		BusinessID:        businessID,
		Name:              strings.TrimSpace(in.Name),
		Slug:              in.Slug,
		Description:       strings.TrimSpace(in.Description),
		BillingAnchor:     in.BillingAnchor,
		CohortBillingDay:  in.CohortBillingDay,
		ChargeImmediately: in.ChargeImmediately,
		CreatedAt:         c.opts.now().UTC(),
	}
	if m.Slug == "" {
		m.Slug = slug.FromName(m.Name)
	}
	if m.Name == "" || !slug.Valid(m.Slug) {
		return nil, ErrInvalidName
	}
	if m.BillingAnchor == AnchorImmediate {
		m.CohortBillingDay, m.ChargeImmediately = 0, true
	}
	if err := m.ValidateBilling(); err != nil {
		return nil, err
	}
	if _, err := c.merchants.Get(ctx, businessID); err != nil {
		return nil, err
	}
	if err := c.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}

	c.record(ctx, businessID, AuditMembershipCreated,
		audit.WithMetadata("membership_id", m.ID.String()),
		audit.WithMetadata("billing_anchor", string(m.BillingAnchor)),
	)
	return m, nil
}

// PlanInput describes a new plan. Price is required for fixed plans and
// ignored for dynamic ones.
type PlanInput struct {
	Name        string
	PricingType PricingType
	Price       decimal.Decimal
}

// CreatePlan creates the plan's product on the connected account, and for
// fixed plans its monthly price, before storing the plan.
func (c *Catalog) CreatePlan(ctx context.Context, businessID, membershipID uuid.UUID, in PlanInput) (*Plan, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	var amount int64
	switch in.PricingType {
	case PricingFixed:
		var err error
		if amount, err = MinorUnits(in.Price); err != nil {
			return nil, err
		}
	case PricingDynamic:
		in.Price = decimal.Zero
	default:
		return nil, ErrInvalidPricingType
	}

	b, err := c.merchants.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !b.Connected() {
		return nil, merchant.ErrAccountNotConnected
	}
	ms, err := c.store.GetMembership(ctx, businessID, membershipID)
	if err != nil {
		return nil, err
	}

	prod, err := c.prices.CreateProduct(ctx, b.StripeAccountID, ms.Name+" - "+name)
	if err != nil {
		return nil, errors.Join(ErrFailedToCreatePrice, err)
	}
	now := c.opts.now().UTC()
	p := &Plan{
		ID:            uuid.New(),
		BusinessID:    businessID,
		MembershipID:  membershipID,
		Name:          name,
		PricingType:   in.PricingType,
		Price:         in.Price,
		Currency:      c.opts.currency,
		StripeProduct: prod.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.PricingType == PricingFixed {
		price, err := c.prices.CreatePrice(ctx, b.StripeAccountID, stripeconnect.CreatePriceParams{
			ProductID:  prod.ID,
			UnitAmount: amount,
			Currency:   c.opts.currency,
			Interval:   "month",
		})
		if err != nil {
			return nil, errors.Join(ErrFailedToCreatePrice, err)
		}
		p.StripePrice = price.ID
	}
	if err := c.store.CreatePlan(ctx, p); err != nil {
		return nil, err
	}

	c.record(ctx, businessID, AuditPlanCreated,
		audit.WithMetadata("plan_id", p.ID.String()),
		audit.WithMetadata("pricing_type", string(p.PricingType)),
		audit.WithMetadata("price", p.Price.StringFixed(2)),
	)
	return p, nil
}

// EnqueuePrice schedules price for a dynamic plan from the first of a month.
// An unapplied price for the same month is replaced.
func (c *Catalog) EnqueuePrice(ctx context.Context, businessID, planID uuid.UUID, effectiveAt time.Time, price decimal.Decimal) (*PriceQueueItem, error) {
	if !FirstOfMonth(effectiveAt) {
		return nil, ErrInvalidEffectiveDate
	}
	if _, err := MinorUnits(price); err != nil {
		return nil, err
	}
	p, err := c.store.GetPlan(ctx, businessID, planID)
	if err != nil {
		return nil, err
	}
	if p.PricingType != PricingDynamic {
		return nil, ErrNotDynamicPlan
	}

	it := &PriceQueueItem{
		ID:          uuid.New(),
		PlanID:      planID,
		EffectiveAt: effectiveAt.UTC(),
		Price:       price,
		CreatedAt:   c.opts.now().UTC(),
	}
	if err := c.store.SavePriceItem(ctx, it); err != nil {
		return nil, err
	}

	c.record(ctx, businessID, AuditPriceEnqueued,
		audit.WithMetadata("plan_id", planID.String()),
		audit.WithMetadata("effective_at", it.EffectiveAt.Format(time.DateOnly)),
		audit.WithMetadata("price", price.StringFixed(2)),
	)
	return it, nil
}

// PriceQueue lists a plan's scheduled and applied prices.
func (c *Catalog) PriceQueue(ctx context.Context, businessID, planID uuid.UUID) ([]*PriceQueueItem, error) {
	if _, err := c.store.GetPlan(ctx, businessID, planID); err != nil {
		return nil, err
	}
	return c.store.ListPriceItems(ctx, planID)
}

// Memberships lists a business's memberships.
func (c *Catalog) Memberships(ctx context.Context, businessID uuid.UUID) ([]*Membership, error) {
	return c.store.ListMemberships(ctx, businessID)
}

// PriceFor returns the processor price a new subscription to p must use.
func (c *Catalog) PriceFor(ctx context.Context, p *Plan) (string, error) {
	if p.PricingType != PricingDynamic {
		return ResolvePrice(p, nil, c.opts.now())
	}
	items, err := c.store.ListPriceItems(ctx, p.ID)
	if err != nil {
		return "", err
	}
	return ResolvePrice(p, items, c.opts.now())
}

// ResolvePlanID maps a processor price to the plan selling it.
func (c *Catalog) ResolvePlanID(ctx context.Context, businessID uuid.UUID, priceID string) (uuid.UUID, error) {
	p, err := c.store.FindPlanByPrice(ctx, businessID, priceID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

func (c *Catalog) record(ctx context.Context, businessID uuid.UUID, eventType string, opts ...audit.EventOption) {
	if err := c.audit.Log(ctx, businessID.String(), eventType, opts...); err != nil {
		c.log.ErrorContext(ctx, "audit log failed",
			logger.BusinessID(businessID),
			slog.String("type", eventType),
			logger.Error(err),
		)
	}
}
