package handler_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/handler"
)

var (
	errNotFound = errors.New("business not found")
	errCannot   = errors.New("business cannot accept charges yet")
)

type upstreamError struct{ code string }

func (e *upstreamError) Error() string { return "upstream: " + e.code }

func newMapper() *handler.ErrorMapper {
	return handler.NewErrorMapper().
		Register(errNotFound, http.StatusNotFound, "BUSINESS_NOT_FOUND").
		Register(errCannot, http.StatusPreconditionFailed, "CHARGES_NOT_ENABLED").
		RegisterFunc(func(err error) (handler.HTTPError, bool) {
			var ue *upstreamError
			if !errors.As(err, &ue) {
				return handler.HTTPError{}, false
			}
			return handler.HTTPError{Code: http.StatusBadGateway, Key: "PROCESSOR_ERROR", Details: map[string][]string{"code": {ue.code}}}, true
		})
}

func TestErrorMapper(t *testing.T) {
	t.Parallel()
	m := newMapper()

	t.Run("wrapped sentinel", func(t *testing.T) {
		t.Parallel()
		var he handler.HTTPError
		require.ErrorAs(t, m.Map(fmt.Errorf("sync: %w", errCannot)), &he)
		assert.Equal(t, http.StatusPreconditionFailed, he.Code)
		assert.Equal(t, "CHARGES_NOT_ENABLED", he.Key)
		assert.Equal(t, errCannot.Error(), he.Message)
	})

	t.Run("classifier wins over rules", func(t *testing.T) {
		t.Parallel()
		var he handler.HTTPError
		require.ErrorAs(t, m.Map(errors.Join(errNotFound, &upstreamError{code: "card_declined"})), &he)
		assert.Equal(t, http.StatusBadGateway, he.Code)
		assert.Equal(t, []string{"card_declined"}, he.Details["code"])
	})

	t.Run("http errors pass through", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, handler.ErrTooManyRequests, m.Map(handler.ErrTooManyRequests))
	})

	t.Run("unknown stays unknown", func(t *testing.T) {
		t.Parallel()
		err := errors.New("boom")
		assert.Equal(t, err, m.Map(err))
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
		level  string
	}{
		{"mapped client error", errNotFound, http.StatusNotFound, "BUSINESS_NOT_FOUND", "level=WARN"},
		{"unmapped error", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR", "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/businesses/x/sync", nil)

			handler.NewErrorHandler(log, newMapper())(handler.NewContext(w, r), tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), "path=/businesses/x/sync")
		})
	}
}

func TestFailGoesThroughErrorHandler(t *testing.T) {
	t.Parallel()
	h := handler.Wrap(func(handler.Context, struct{}) handler.Response {
		return handler.Fail(fmt.Errorf("checkout: %w", errCannot))
	}, handler.WithErrorHandler[handler.Context, struct{}](handler.NewErrorHandler(nil, newMapper())))

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/businesses/x/checkout", nil))

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	body := decode(t, w)
	assert.Equal(t, "CHARGES_NOT_ENABLED", body.Error.Code)
	assert.Equal(t, errCannot.Error(), body.Error.Message)
}
