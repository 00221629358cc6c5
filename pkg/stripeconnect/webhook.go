package stripeconnect

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Webhook event types the platform reacts to.
const (
	EventAccountUpdated             = "account.updated"
	EventSubscriptionCreated        = "customer.subscription.created"
	EventSubscriptionUpdated        = "customer.subscription.updated"
	EventSubscriptionDeleted        = "customer.subscription.deleted"
	EventSubscriptionPaused         = "customer.subscription.paused"
	EventSubscriptionResumed        = "customer.subscription.resumed"
	EventInvoicePaid                = "invoice.paid"
	EventInvoicePaymentFailed       = "invoice.payment_failed"
	EventInvoicePaymentActionNeeded = "invoice.payment_action_required"
)

// ParseWebhook verifies the Stripe-Signature header and decodes the event
// object for the event types listed above. Other types are returned with
// no decoded object.
func (c *Client) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if c.cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	return decodeEvent(evt)
}

func decodeEvent(evt stripe.Event) (*Event, error) {
	out := &Event{
		ID:        evt.ID,
		Type:      string(evt.Type),
		AccountID: evt.Account,
		Created:   unix(evt.Created),
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return out, nil
	}

	switch {
	case out.Type == EventAccountUpdated:
		var a stripe.Account
		if err := json.Unmarshal(evt.Data.Raw, &a); err != nil {
			return nil, errors.Join(ErrUnexpectedPayload, err)
		}
		out.Account = accountFromStripe(&a)
	case strings.HasPrefix(out.Type, "customer.subscription."):
		var s stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return nil, errors.Join(ErrUnexpectedPayload, err)
		}
		out.Subscription = subscriptionFromStripe(&s)
	case strings.HasPrefix(out.Type, "invoice."):
		var in stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &in); err != nil {
			return nil, errors.Join(ErrUnexpectedPayload, err)
		}
		out.Invoice = invoiceFromStripe(&in)
	}
	return out, nil
}
