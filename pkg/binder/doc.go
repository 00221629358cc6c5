// Package binder decodes HTTP requests into typed request structs.
//
// Two binders are provided:
//
//	binder.JSON()              // strict JSON body, unknown fields rejected
//	binder.Path(chi.URLParam)  // `path:"name"` tags filled from router params
//
// Binders share one signature, func(*http.Request, any) error, and are
// applied in order by handler.Wrap. A binder that has nothing to do for a
// request returns ErrBinderNotApplicable and is skipped; JSON does this for
// requests without a body so optional bodies need no special casing.
//
// Path fields may be any basic kind, a pointer to one, or a type
// implementing encoding.TextUnmarshaler such as uuid.UUID:
//
//	type PauseRequest struct {
//		BusinessID     uuid.UUID `path:"businessID"`
//		SubscriptionID uuid.UUID `path:"subscriptionID"`
//	}
//
// Every failure wraps one of the package errors, so callers can map them
// to HTTP statuses with errors.Is.
package binder
