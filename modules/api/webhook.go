package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/clubkit/handler"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

const maxWebhookBody = 1 << 20

type webhookRequest struct {
	Payload   []byte
	Signature string
}

// bindWebhook keeps the body verbatim; signature verification needs the
// exact bytes Stripe signed.
func bindWebhook(r *http.Request, v any) error {
	req, ok := v.(*webhookRequest)
	if !ok {
		return fmt.Errorf("%w: unexpected target %T", stripeconnect.ErrUnexpectedPayload, v)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		return errors.Join(stripeconnect.ErrUnexpectedPayload, err)
	}
	if len(body) > maxWebhookBody {
		return fmt.Errorf("%w: body exceeds %d bytes", stripeconnect.ErrUnexpectedPayload, maxWebhookBody)
	}
	req.Payload = body
	req.Signature = r.Header.Get("Stripe-Signature")
	return nil
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   string `json:"ignored,omitempty"`
}

// webhook acknowledges redelivered events without work. When dispatch
// fails the event id is forgotten and a 5xx makes Stripe retry.
func (a *api) webhook() http.HandlerFunc {
	return wrap(a, func(ctx handler.Context, req webhookRequest) handler.Response {
		evt, err := a.opts.Webhooks.ParseWebhook(req.Payload, req.Signature)
		if err != nil {
			return handler.Fail(err)
		}
		log := a.log.With(logger.EventID(evt.ID), logger.EventType(evt.Type), logger.AccountID(evt.AccountID))

		first, err := a.opts.Guard.FirstSeen(ctx, evt.ID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "webhook dedup unavailable, processing anyway", logger.Error(err))
		case !first:
			log.DebugContext(ctx, "duplicate webhook event")
			return handler.JSON(webhookResponse{Received: true, Duplicate: true})
		}

		ignored, err := a.dispatch(logger.WithTrigger(ctx, "webhook"), evt)
		if err != nil {
			if ferr := a.opts.Guard.Forget(context.WithoutCancel(ctx), evt.ID); ferr != nil {
				log.WarnContext(ctx, "failed to forget webhook event", logger.Error(ferr))
			}
			return handler.Fail(err)
		}
		if ignored != "" {
			log.InfoContext(ctx, "webhook event ignored", slog.String("reason", ignored))
		}
		return handler.JSON(webhookResponse{Received: true, Ignored: ignored})
	}, bindWebhook)
}

// dispatch returns a non-empty reason for events that need no work.
func (a *api) dispatch(ctx context.Context, evt *stripeconnect.Event) (string, error) {
	switch {
	case evt.Type == stripeconnect.EventAccountUpdated:
		accountID := evt.AccountID
		if evt.Account != nil && evt.Account.ID != "" {
			accountID = evt.Account.ID
		}
		_, _, err := a.opts.Merchants.SyncAccountByStripeID(ctx, accountID, merchant.ReasonWebhookSync)
		if errors.Is(err, merchant.ErrBusinessNotFound) {
			return "unknown account", nil
		}
		return "", err

	case strings.HasPrefix(evt.Type, "customer.subscription."):
		if evt.Subscription == nil {
			return "no subscription in payload", nil
		}
		return a.syncSubscription(ctx, evt.AccountID, evt.Subscription.ID)

	case evt.Type == stripeconnect.EventInvoicePaid,
		evt.Type == stripeconnect.EventInvoicePaymentFailed,
		evt.Type == stripeconnect.EventInvoicePaymentActionNeeded:
		if evt.Invoice == nil || evt.Invoice.SubscriptionID == "" {
			return "invoice without subscription", nil
		}
		return a.syncSubscription(ctx, evt.AccountID, evt.Invoice.SubscriptionID)
	}
	return "unhandled event type", nil
}

func (a *api) syncSubscription(ctx context.Context, accountID, subscriptionID string) (string, error) {
	if accountID == "" {
		return "event not from a connected account", nil
	}
	res, err := a.opts.Subscriptions.SyncSubscription(ctx, accountID, subscriptionID)
	if errors.Is(err, merchant.ErrBusinessNotFound) {
		return "unknown account", nil
	}
	if err != nil {
		return "", err
	}
	a.log.DebugContext(ctx, "subscription reconciled from webhook",
		logger.SubscriptionID(subscriptionID),
		logger.Action(string(res.Action)),
	)
	return "", nil
}
