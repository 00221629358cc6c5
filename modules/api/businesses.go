package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/validator"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

type businessPath struct {
	BusinessID uuid.UUID `path:"businessID" json:"-"`
}

type createBusinessRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (a *api) createBusiness() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req createBusinessRequest) handler.Response {
		if resp := validate(
			validator.RequiredString("name", req.Name),
			validator.MaxLenString("name", req.Name, maxNameLen),
			validator.MaxLenString("slug", req.Slug, maxNameLen),
		); resp != nil {
			return resp
		}
		b, err := a.opts.Merchants.CreateBusiness(ctx, merchant.CreateBusinessInput{
			Name:        req.Name,
			Slug:        req.Slug,
			OwnerUserID: logger.ActorFromContext(ctx),
		})
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(b, handler.WithJSONStatus(http.StatusCreated))
	}, bindJSON)
}

func (a *api) getBusiness() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req businessPath) handler.Response {
		b, err := a.opts.Merchants.Get(ctx, req.BusinessID)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(b)
	}, bindPath)
}

type recordDetailsRequest struct {
	BusinessID uuid.UUID `path:"businessID" json:"-"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Country    string    `json:"country"`
}

func (a *api) recordDetails() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req recordDetailsRequest) handler.Response {
		if resp := validate(
			validator.RequiredString("name", req.Name),
			validator.MaxLenString("name", req.Name, maxNameLen),
			validator.RequiredString("email", req.Email),
			validator.ValidEmail("email", req.Email),
			validator.RequiredString("country", req.Country),
			validator.CountryCode("country", req.Country),
		); resp != nil {
			return resp
		}
		b, err := a.opts.Merchants.RecordDetails(ctx, req.BusinessID, merchant.Details{
			Name:    req.Name,
			Email:   req.Email,
			Country: req.Country,
		})
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(b)
	}, bindPath, bindJSON)
}

type onboardingRequest struct {
	BusinessID uuid.UUID `path:"businessID" json:"-"`
	RefreshURL string    `json:"refreshUrl"`
	ReturnURL  string    `json:"returnUrl"`
}

type onboardingResponse struct {
	Business        *merchant.Business `json:"business"`
	AlreadyComplete bool               `json:"alreadyComplete"`
	URL             string             `json:"url,omitempty"`
	ExpiresAt       *time.Time         `json:"expiresAt,omitempty"`
}

func (a *api) startOnboarding() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req onboardingRequest) handler.Response {
		if resp := validate(
			validator.RequiredString("refreshUrl", req.RefreshURL),
			validator.AbsoluteURL("refreshUrl", req.RefreshURL),
			validator.RequiredString("returnUrl", req.ReturnURL),
			validator.AbsoluteURL("returnUrl", req.ReturnURL),
		); resp != nil {
			return resp
		}
		res, err := a.opts.Merchants.StartOnboarding(ctx, req.BusinessID, req.RefreshURL, req.ReturnURL)
		if err != nil {
			return handler.Fail(err)
		}
		out := onboardingResponse{Business: res.Business, AlreadyComplete: res.AlreadyComplete, URL: res.URL}
		if !res.ExpiresAt.IsZero() {
			out.ExpiresAt = &res.ExpiresAt
		}
		return handler.JSON(out)
	}, bindPath, bindJSON)
}

type syncResponse struct {
	Business *merchant.Business  `json:"business"`
	Result   merchant.SyncResult `json:"result"`
}

func (a *api) syncAccount() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req businessPath) handler.Response {
		b, res, err := a.opts.Merchants.SyncAccount(logger.WithTrigger(ctx, "manual"), req.BusinessID, merchant.ReasonManualSync)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(syncResponse{Business: b, Result: res})
	}, bindPath)
}

func (a *api) nextAction() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req businessPath) handler.Response {
		next, err := a.opts.Merchants.NextAction(ctx, req.BusinessID)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(next)
	}, bindPath)
}

func (a *api) countMembers() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req businessPath) handler.Response {
		n, err := a.opts.Subscriptions.CountMembers(ctx, req.BusinessID)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(map[string]int{"members": n})
	}, bindPath)
}
