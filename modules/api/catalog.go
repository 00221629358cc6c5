package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/validator"
	"github.com/dmitrymomot/clubkit/svc/billing"
)

type createMembershipRequest struct {
	BusinessID        uuid.UUID `path:"businessID" json:"-"`
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	Description       string    `json:"description"`
	BillingAnchor     string    `json:"billingAnchor"`
	CohortBillingDay  int       `json:"cohortBillingDay"`
	ChargeImmediately bool      `json:"chargeImmediately"`
}

func (a *api) createMembership() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req createMembershipRequest) handler.Response {
		if resp := validate(
			validator.RequiredString("name", req.Name),
			validator.MaxLenString("name", req.Name, maxNameLen),
			validator.RequiredString("billingAnchor", req.BillingAnchor),
		); resp != nil {
			return resp
		}
		m, err := a.opts.Catalog.CreateMembership(ctx, req.BusinessID, billing.MembershipInput{
			Name:              req.Name,
			Slug:              req.Slug,
			Description:       req.Description,
			BillingAnchor:     billing.BillingAnchor(strings.ToUpper(req.BillingAnchor)),
			CohortBillingDay:  req.CohortBillingDay,
			ChargeImmediately: req.ChargeImmediately,
		})
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(m, handler.WithJSONStatus(http.StatusCreated))
	}, bindPath, bindJSON)
}

func (a *api) listMemberships() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req businessPath) handler.Response {
		list, err := a.opts.Catalog.Memberships(ctx, req.BusinessID)
		if err != nil {
			return handler.Fail(err)
		}
		if list == nil {
			list = []*billing.Membership{}
		}
		return handler.JSON(list)
	}, bindPath)
}

type createPlanRequest struct {
	BusinessID   uuid.UUID       `path:"businessID" json:"-"`
	MembershipID uuid.UUID       `path:"membershipID" json:"-"`
	Name         string          `json:"name"`
	PricingType  string          `json:"pricingType"`
	Price        decimal.Decimal `json:"price"`
}

func (a *api) createPlan() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req createPlanRequest) handler.Response {
		if resp := validate(
			validator.RequiredString("name", req.Name),
			validator.MaxLenString("name", req.Name, maxNameLen),
			validator.RequiredString("pricingType", req.PricingType),
		); resp != nil {
			return resp
		}
		p, err := a.opts.Catalog.CreatePlan(ctx, req.BusinessID, req.MembershipID, billing.PlanInput{
			Name:        req.Name,
			PricingType: billing.PricingType(strings.ToUpper(req.PricingType)),
			Price:       req.Price,
		})
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(p, handler.WithJSONStatus(http.StatusCreated))
	}, bindPath, bindJSON)
}

type planPath struct {
	BusinessID uuid.UUID `path:"businessID" json:"-"`
	PlanID     uuid.UUID `path:"planID" json:"-"`
}

type enqueuePriceRequest struct {
	BusinessID  uuid.UUID       `path:"businessID" json:"-"`
	PlanID      uuid.UUID       `path:"planID" json:"-"`
	EffectiveAt string          `json:"effectiveAt"`
	Price       decimal.Decimal `json:"price"`
}

func (a *api) enqueuePrice() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req enqueuePriceRequest) handler.Response {
		if resp := validate(
			validator.RequiredString("effectiveAt", req.EffectiveAt),
			validator.DateOnly("effectiveAt", req.EffectiveAt),
		); resp != nil {
			return resp
		}
		effective, _ := time.Parse(time.DateOnly, req.EffectiveAt)
		it, err := a.opts.Catalog.EnqueuePrice(ctx, req.BusinessID, req.PlanID, effective, req.Price)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(it, handler.WithJSONStatus(http.StatusCreated))
	}, bindPath, bindJSON)
}

func (a *api) listPrices() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req planPath) handler.Response {
		items, err := a.opts.Catalog.PriceQueue(ctx, req.BusinessID, req.PlanID)
		if err != nil {
			return handler.Fail(err)
		}
		if items == nil {
			items = []*billing.PriceQueueItem{}
		}
		return handler.JSON(items)
	}, bindPath)
}

type checkoutRequest struct {
	BusinessID    uuid.UUID `path:"businessID" json:"-"`
	PlanID        uuid.UUID `json:"planId"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	CustomerID    string    `json:"customerId"`
	PaymentMethod string    `json:"paymentMethod"`
	TestClockID   string    `json:"testClockId"`
}

func (a *api) checkout() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req checkoutRequest) handler.Response {
		if resp := validate(
			validator.RequiredUUID("planId", req.PlanID),
			validator.ValidEmail("email", req.Email),
		); resp != nil {
			return resp
		}

		// One checkout per buyer and plan at a time. The lock is released
		// when Subscribe returns; later attempts hit the active-subscription check.
		release, err := a.opts.Guard.Acquire(ctx, checkoutKey(req))
		if err != nil {
			return handler.Fail(err)
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				a.log.WarnContext(ctx, "failed to release checkout lock", logger.Error(rerr))
			}
		}()

		res, err := a.opts.Checkout.Subscribe(ctx, billing.CheckoutInput{
			BusinessID:     req.BusinessID,
			PlanID:         req.PlanID,
			Email:          req.Email,
			Name:           req.Name,
			CustomerID:     req.CustomerID,
			PaymentMethod:  req.PaymentMethod,
			TestClockID:    req.TestClockID,
			IdempotencyKey: ctx.Request().Header.Get("Idempotency-Key"),
		})
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(res, handler.WithJSONStatus(http.StatusCreated))
	}, bindPath, bindJSON)
}

func checkoutKey(req checkoutRequest) string {
	buyer := strings.ToLower(strings.TrimSpace(req.Email))
	if buyer == "" {
		buyer = req.CustomerID
	}
	return "checkout:" + req.BusinessID.String() + ":" + req.PlanID.String() + ":" + buyer
}
