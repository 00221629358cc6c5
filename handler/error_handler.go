package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/clubkit/pkg/binder"
	"github.com/dmitrymomot/clubkit/pkg/logger"
)

// ErrorMapper turns domain errors into HTTPErrors. Configure it before
// serving; it is not safe for concurrent registration.
type ErrorMapper struct {
	funcs []func(error) (HTTPError, bool)
	rules []errorRule
}

type errorRule struct {
	target error
	code   int
	key    string
}

// NewErrorMapper returns a mapper that already knows the binder errors.
func NewErrorMapper() *ErrorMapper {
	m := &ErrorMapper{}
	m.Register(binder.ErrMissingContentType, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE")
	m.Register(binder.ErrUnsupportedMediaType, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE")
	m.Register(binder.ErrFailedToParseJSON, http.StatusBadRequest, "INVALID_JSON")
	m.Register(binder.ErrFailedToParsePath, http.StatusBadRequest, "INVALID_PATH")
	return m
}

// Register maps every error matching target with errors.Is. Earlier
// registrations win. The client sees target's message, never the wrapped
// chain.
func (m *ErrorMapper) Register(target error, code int, key string) *ErrorMapper {
	m.rules = append(m.rules, errorRule{target: target, code: code, key: key})
	return m
}

// RegisterFunc adds a classifier consulted before the Register rules.
func (m *ErrorMapper) RegisterFunc(fn func(error) (HTTPError, bool)) *ErrorMapper {
	m.funcs = append(m.funcs, fn)
	return m
}

// Map returns err as an HTTPError when a rule matches, otherwise err.
func (m *ErrorMapper) Map(err error) error {
	var httpErr HTTPError
	var valErr ValidationError
	if errors.As(err, &httpErr) || errors.As(err, &valErr) {
		return err
	}
	for _, fn := range m.funcs {
		if he, ok := fn(err); ok {
			return he
		}
	}
	for _, r := range m.rules {
		if errors.Is(err, r.target) {
			return HTTPError{Code: r.code, Key: r.key, Message: r.target.Error()}
		}
	}
	return err
}

// NewErrorHandler logs err and renders it as JSON. Client errors are
// logged at warn level, server errors at error level.
func NewErrorHandler(log *slog.Logger, m *ErrorMapper) ErrorHandler[Context] {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = NewErrorMapper()
	}
	log = log.With(logger.Component("http"))
	return func(ctx Context, err error) {
		mapped := m.Map(err)
		status := httpErrorOf(mapped).Code
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		r := ctx.Request()
		log.LogAttrs(ctx, level, "request failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Error(err),
			slog.Int("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		if rerr := JSONError(mapped).Render(ctx.ResponseWriter(), r); rerr != nil {
			log.ErrorContext(ctx, "failed to render error", logger.Error(rerr))
		}
	}
}
