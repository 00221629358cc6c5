package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/binder"
)

type runRequest struct {
	Type    string `path:"type" json:"-"`
	PriceID string `json:"priceId"`
}

func pathParams(m map[string]string) func(*http.Request, string) string {
	return func(_ *http.Request, key string) string { return m[key] }
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var got handler.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	return got
}

func TestWrap(t *testing.T) {
	t.Parallel()

	echo := handler.HandlerFunc[handler.Context, runRequest](func(_ handler.Context, req runRequest) handler.Response {
		return handler.JSON(map[string]string{"type": req.Type, "priceId": req.PriceID}, handler.WithJSONStatus(http.StatusAccepted))
	})
	binders := handler.WithBinders[handler.Context, runRequest](
		binder.Path(pathParams(map[string]string{"type": "rolling"})),
		binder.JSON(),
	)

	t.Run("binds path and body", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"priceId":"price_1"}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.Wrap(echo, binders)(w, r)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, map[string]any{"type": "rolling", "priceId": "price_1"}, decode(t, w).Data)
	})

	t.Run("optional body", func(t *testing.T) {
		t.Parallel()
		w := httptest.NewRecorder()
		handler.Wrap(echo, binders)(w, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("binder failure goes to the error handler", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":1}`))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		handler.Wrap(echo, binders,
			handler.WithErrorHandler[handler.Context, runRequest](handler.NewErrorHandler(nil, nil)),
		)(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_JSON", decode(t, w).Error.Code)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var seen error
		h := handler.HandlerFunc[handler.Context, runRequest](func(handler.Context, runRequest) handler.Response { return nil })
		handler.Wrap(h, handler.WithErrorHandler[handler.Context, runRequest](func(_ handler.Context, err error) {
			seen = err
		}))(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.ErrorIs(t, seen, handler.ErrNilResponse)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		mark := func(name string) handler.Decorator[handler.Context, runRequest] {
			return func(next handler.HandlerFunc[handler.Context, runRequest]) handler.HandlerFunc[handler.Context, runRequest] {
				return func(ctx handler.Context, req runRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		handler.Wrap(echo, handler.WithDecorators(mark("outer"), mark("inner")))(
			httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"http error", handler.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Not Found"},
		{"http error with message", handler.HTTPError{Code: http.StatusConflict, Key: "ALREADY_SUBSCRIBED", Message: "already subscribed"}, http.StatusConflict, "ALREADY_SUBSCRIBED", "already subscribed"},
		{"validation", handler.ValidationError{"startDate": {"must be a date"}}, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "validation failed: startDate: must be a date"},
		{"unknown error hides message", errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err).Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))
			assert.Equal(t, tt.status, w.Code)
			got := decode(t, w)
			require.NotNil(t, got.Error)
			assert.Equal(t, tt.code, got.Error.Code)
			assert.Equal(t, tt.message, got.Error.Message)
		})
	}
}

func TestEmpty(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	require.NoError(t, handler.Empty(http.StatusNoContent).Render(w, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
