package handler

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
)

// JSONResponse is the envelope of every JSON body.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type JSONOption func(*jsonResponse)

func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) { r.status = status }
}

func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) { r.body.Meta = meta }
}

// JSON renders v as {"data": v} with status 200.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{status: http.StatusOK, body: JSONResponse{Data: v}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError renders err as {"error": {...}}. HTTPError and ValidationError
// keep their status and key; anything else is a 500 whose message is hidden.
func JSONError(err error, opts ...JSONOption) Response {
	httpErr := httpErrorOf(err)
	r := &jsonResponse{
		status: httpErr.Code,
		body: JSONResponse{Error: &ErrorDetail{
			Code:    httpErr.Key,
			Message: httpErr.Message,
			Details: maps.Clone(httpErr.Details),
		}},
	}
	if r.body.Error.Message == "" {
		r.body.Error.Message = http.StatusText(httpErr.Code)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func httpErrorOf(err error) HTTPError {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return HTTPError{
			Code:    http.StatusUnprocessableEntity,
			Key:     "VALIDATION_ERROR",
			Message: valErr.Error(),
			Details: map[string][]string(valErr),
		}
	}
	return ErrInternal
}

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty writes only a status code.
func Empty(status int) Response {
	return emptyResponse{status: status}
}

type failResponse struct {
	err error
}

func (f failResponse) Render(http.ResponseWriter, *http.Request) error { return f.err }

// Fail hands err to the ErrorHandler configured on Wrap, so domain errors go
// through the same mapping and logging as binding errors.
func Fail(err error) Response {
	return failResponse{err: err}
}
