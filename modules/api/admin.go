package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/validator"
	"github.com/dmitrymomot/clubkit/svc/billing"
	"github.com/dmitrymomot/clubkit/svc/merchant"
	"github.com/dmitrymomot/clubkit/svc/scenario"
)

type syncSubscriptionsRequest struct {
	// BusinessID limits the run to one business when set.
	BusinessID uuid.UUID `json:"businessId"`
}

// syncSubscriptions reports per-item outcomes with 200 even when some
// items failed; only setup failures are errors.
func (a *api) syncSubscriptions() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req syncSubscriptionsRequest) handler.Response {
		runCtx := logger.WithTrigger(ctx, "admin")
		if req.BusinessID != uuid.Nil {
			report, err := a.opts.Subscriptions.SyncBusiness(runCtx, req.BusinessID)
			if err != nil {
				return handler.Fail(err)
			}
			return handler.JSON(report)
		}
		report, err := a.opts.Subscriptions.SyncAll(runCtx)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(report)
	}, bindJSON)
}

func (a *api) syncAccounts() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, _ struct{}) handler.Response {
		report, err := a.opts.Merchants.SyncAll(logger.WithTrigger(ctx, "admin"), merchant.ReasonManualSync)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(report)
	})
}

func (a *api) drainPrices() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, _ struct{}) handler.Response {
		report, err := a.opts.Catalog.DrainPrices(logger.WithTrigger(ctx, "admin"))
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(report)
	})
}

type runScenarioRequest struct {
	Type       string    `path:"type" json:"-"`
	BusinessID uuid.UUID `json:"businessId"`
	PriceID    string    `json:"priceId"`
	StartDate  string    `json:"startDate"`
}

func (a *api) runScenario() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req runScenarioRequest) handler.Response {
		if !a.opts.ScenariosEnabled {
			return handler.Fail(ErrScenariosDisabled)
		}
		kind, ok := billing.ParseModelKind(req.Type)
		if !ok {
			return handler.Fail(scenario.ErrUnknownScenario)
		}

		if resp := validate(
			validator.RequiredUUID("businessId", req.BusinessID),
			validator.DateOnly("startDate", req.StartDate),
		); resp != nil {
			return resp
		}
		var start time.Time
		if req.StartDate != "" {
			start, _ = time.Parse(time.DateOnly, req.StartDate)
		}

		var res *scenario.Result
		key := "scenario:" + req.BusinessID.String() + ":" + string(kind)
		err := a.opts.Guard.Do(ctx, key, func(ctx context.Context) error {
			var err error
			res, err = a.opts.Scenarios.Run(ctx, scenario.Request{
				BusinessID: req.BusinessID,
				Kind:       kind,
				PriceID:    req.PriceID,
				StartDate:  start,
			})
			return err
		})
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(res)
	}, bindPath, bindJSON)
}
