package stripeconnect

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
)

var (
	ErrMissingSecretKey     = errors.New("stripeconnect: secret key is required")
	ErrInvalidSignature     = errors.New("stripeconnect: webhook signature verification failed")
	ErrMissingWebhookSecret = errors.New("stripeconnect: webhook secret is not configured")
	ErrUnexpectedPayload    = errors.New("stripeconnect: unexpected webhook payload")
)

// Error is a processor failure with the processor's classification preserved.
type Error struct {
	Op         string
	Type       string
	Code       string
	Param      string
	Message    string
	RequestID  string
	StatusCode int

	err error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe %s: %s (%s/%s)", e.Op, e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("stripe %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// wrap converts a stripe-go error into *Error. Non-API errors are wrapped
// with the operation name only.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return &Error{
			Op:         op,
			Type:       string(se.Type),
			Code:       string(se.Code),
			Param:      se.Param,
			Message:    se.Msg,
			RequestID:  se.RequestID,
			StatusCode: se.HTTPStatusCode,
			err:        err,
		}
	}
	return &Error{Op: op, Message: err.Error(), err: err}
}

// AsError extracts *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsNotFound reports whether the processor answered resource_missing.
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && (e.Code == string(stripe.ErrorCodeResourceMissing) || e.StatusCode == 404)
}
