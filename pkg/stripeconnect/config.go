package stripeconnect

import "time"

type Config struct {
	SecretKey        string        `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
	// APIBase overrides the API endpoint, e.g. for stripe-mock.
	APIBase    string `env:"STRIPE_API_BASE"`
	MaxRetries int64  `env:"STRIPE_MAX_RETRIES" envDefault:"2"`
	Currency   string `env:"STRIPE_CURRENCY" envDefault:"usd"`
}
