package billing

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/clubkit/pkg/logger"
)

type options struct {
	log      *slog.Logger
	now      func() time.Time
	loc      *time.Location
	currency string
}

func defaultOptions() options {
	return options{
		log:      logger.Nop(),
		now:      time.Now,
		loc:      time.UTC,
		currency: "usd",
	}
}

// Option configures Catalog and Checkout.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone cohort dates are computed in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithCurrency sets the ISO currency of new prices. Defaults to usd.
func WithCurrency(c string) Option {
	return func(o *options) {
		if c != "" {
			o.currency = c
		}
	}
}
