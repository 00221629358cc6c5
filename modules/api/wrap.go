package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/binder"
	"github.com/dmitrymomot/clubkit/pkg/validator"
)

// maxNameLen bounds every display name and slug accepted by the API.
const maxNameLen = 120

var (
	bindPath = binder.Path(chi.URLParam)
	bindJSON = binder.JSON()
)

func wrap[R any](a *api, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](a.onErr),
	)
}

// validate returns a 422 response listing every failed rule, or nil.
func validate(rules ...validator.Rule) handler.Response {
	errs := validator.ExtractValidationErrors(validator.Apply(rules...))
	if errs.IsEmpty() {
		return nil
	}
	v := handler.ValidationError{}
	for _, e := range errs {
		v.Add(e.Field, e.Message)
	}
	return handler.Fail(v)
}
