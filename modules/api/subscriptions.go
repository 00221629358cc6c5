package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/svc/subscription"
)

type subscriptionPath struct {
	BusinessID     uuid.UUID `path:"businessID" json:"-"`
	SubscriptionID uuid.UUID `path:"subscriptionID" json:"-"`
}

func (a *api) listSubscriptions() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req businessPath) handler.Response {
		list, err := a.opts.Subscriptions.List(ctx, req.BusinessID)
		if err != nil {
			return handler.Fail(err)
		}
		if list == nil {
			list = []*subscription.PlanSubscription{}
		}
		return handler.JSON(list)
	}, bindPath)
}

func (a *api) getSubscription() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req subscriptionPath) handler.Response {
		ps, err := a.opts.Subscriptions.Get(ctx, req.BusinessID, req.SubscriptionID)
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(ps)
	}, bindPath)
}

type subscriptionActionRequest struct {
	BusinessID     uuid.UUID `path:"businessID" json:"-"`
	SubscriptionID uuid.UUID `path:"subscriptionID" json:"-"`
	Action         string    `path:"action" json:"-"`
	AtPeriodEnd    bool      `json:"atPeriodEnd"`
}

// subscriptionAction runs pause, resume or cancel at most once per
// subscription and action within the debounce window.
func (a *api) subscriptionAction() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req subscriptionActionRequest) handler.Response {
		var run func(context.Context) (*subscription.PlanSubscription, error)
		switch req.Action {
		case "pause":
			run = func(ctx context.Context) (*subscription.PlanSubscription, error) {
				return a.opts.Subscriptions.Pause(ctx, req.BusinessID, req.SubscriptionID)
			}
		case "resume":
			run = func(ctx context.Context) (*subscription.PlanSubscription, error) {
				return a.opts.Subscriptions.Resume(ctx, req.BusinessID, req.SubscriptionID)
			}
		case "cancel":
			run = func(ctx context.Context) (*subscription.PlanSubscription, error) {
				return a.opts.Subscriptions.Cancel(ctx, req.BusinessID, req.SubscriptionID, req.AtPeriodEnd)
			}
		default:
			return handler.Fail(handler.ErrNotFound)
		}

		var ps *subscription.PlanSubscription
		key := fmt.Sprintf("subscription:%s:%s", req.SubscriptionID, req.Action)
		err := a.opts.Guard.Do(ctx, key, func(ctx context.Context) error {
			var err error
			ps, err = run(logger.WithTrigger(ctx, "admin"))
			return err
		})
		if err != nil {
			return handler.Fail(err)
		}
		return handler.JSON(ps)
	}, bindPath, bindJSON)
}
