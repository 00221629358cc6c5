// Package handler provides typed JSON HTTP handlers.
//
// A handler is a generic function from a bound request struct to a Response.
// Wrap turns it into an http.HandlerFunc, running the configured binders
// first and routing binder and render failures to an ErrorHandler:
//
//	type PauseRequest struct {
//		BusinessID     uuid.UUID `path:"businessID"`
//		SubscriptionID uuid.UUID `path:"subscriptionID"`
//	}
//
//	func pause(ctx handler.Context, req PauseRequest) handler.Response {
//		sub, err := subs.Pause(ctx, req.BusinessID, req.SubscriptionID)
//		if err != nil {
//			return handler.JSONError(mapper.Map(err))
//		}
//		return handler.JSON(sub)
//	}
//
//	r.Post("/businesses/{businessID}/subscriptions/{subscriptionID}/pause",
//		handler.Wrap(pause, handler.WithBinders[handler.Context, PauseRequest](binder.Path(chi.URLParam))))
//
// # Errors
//
// Every error body has the shape {"error": {"code": "KEY", "message": "..."}}.
// HTTPError carries the status and key; ValidationError becomes a 422 with
// per-field details. Domain sentinels are translated through an ErrorMapper:
//
//	mapper := handler.NewErrorMapper().
//		Register(merchant.ErrBusinessNotFound, http.StatusNotFound, "BUSINESS_NOT_FOUND").
//		Register(billing.ErrDynamicPriceNotSet, http.StatusServiceUnavailable, "DYNAMIC_PRICE_NOT_SET")
//
// Unmapped errors render as a 500 without leaking their message.
package handler
