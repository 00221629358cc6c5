package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with an HTTP status and a stable machine-readable
// key. Message, when set, is shown to the client instead of the status text.
type HTTPError struct {
	Code    int
	Key     string
	Message string
	Details map[string][]string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Key
}

// NewHTTPError creates an HTTPError.
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}

var (
	ErrBadRequest      = HTTPError{Code: http.StatusBadRequest, Key: "BAD_REQUEST"}
	ErrUnauthorized    = HTTPError{Code: http.StatusUnauthorized, Key: "UNAUTHORIZED"}
	ErrNotFound        = HTTPError{Code: http.StatusNotFound, Key: "NOT_FOUND"}
	ErrConflict        = HTTPError{Code: http.StatusConflict, Key: "CONFLICT"}
	ErrTooManyRequests = HTTPError{Code: http.StatusTooManyRequests, Key: "TOO_MANY_REQUESTS"}
	ErrInternal        = HTTPError{Code: http.StatusInternalServerError, Key: "INTERNAL_ERROR"}
)

// ValidationError lists problems per request field.
type ValidationError map[string][]string

func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(e[f]) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", f, e[f][0]))
		}
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Add appends a message for field.
func (e ValidationError) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e ValidationError) IsEmpty() bool { return len(e) == 0 }
