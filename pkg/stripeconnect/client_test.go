package stripeconnect_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
)

type captured struct {
	Method        string
	Path          string
	Form          url.Values
	StripeAccount string
	Idempotency   string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []captured
	routes   map[string]func(w http.ResponseWriter)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *stripeconnect.Client) {
	t.Helper()
	f := &fakeAPI{routes: map[string]func(http.ResponseWriter){}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := stripeconnect.New(stripeconnect.Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
	}, stripeconnect.WithBackends(stripeconnect.NewBackends(srv.URL, 0)))
	require.NoError(t, err)
	return f, c
}

func (f *fakeAPI) on(methodPath string, status int, body string) {
	f.routes[methodPath] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.requests = append(f.requests, captured{
		Method:        r.Method,
		Path:          r.URL.Path,
		Form:          r.Form,
		StripeAccount: r.Header.Get("Stripe-Account"),
		Idempotency:   r.Header.Get("Idempotency-Key"),
	})
	f.mu.Unlock()

	if h, ok := f.routes[r.Method+" "+r.URL.Path]; ok {
		h(w)
		return
	}
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such route"}}`))
}

func (f *fakeAPI) last() captured {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

const subscriptionJSON = `{
  "id": "sub_123",
  "object": "subscription",
  "status": "trialing",
  "customer": "cus_1",
  "cancel_at_period_end": false,
  "trial_end": 1736899200,
  "items": {"object": "list", "data": [{
    "id": "si_1",
    "object": "subscription_item",
    "current_period_start": 1734307200,
    "current_period_end": 1736899200,
    "price": {"id": "price_1", "object": "price"}
  }]}
}`

func TestCreateSubscription(t *testing.T) {
	t.Parallel()

	f, c := newFakeAPI(t)
	f.on("POST /v1/subscriptions", http.StatusOK, subscriptionJSON)

	trialEnd := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
	sub, err := c.CreateSubscription(context.Background(), "acct_1", stripeconnect.CreateSubscriptionParams{
		CustomerID:            "cus_1",
		PriceID:               "price_1",
		TrialEnd:              trialEnd,
		BillingCycleAnchorDay: 15,
		Metadata:              map[string]string{"plan_id": "p1"},
	}, "checkout-key")
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, "acct_1", req.StripeAccount)
	assert.Equal(t, "checkout-key", req.Idempotency)
	assert.Equal(t, "cus_1", req.Form.Get("customer"))
	assert.Equal(t, "price_1", req.Form.Get("items[0][price]"))
	assert.Equal(t, "1736899200", req.Form.Get("trial_end"))
	assert.Equal(t, "15", req.Form.Get("billing_cycle_anchor_config[day_of_month]"))
	assert.Equal(t, "p1", req.Form.Get("metadata[plan_id]"))
	assert.NotContains(t, req.Form, "billing_cycle_anchor")
	assert.NotContains(t, req.Form, "proration_behavior")

	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "price_1", sub.PriceID)
	assert.Equal(t, stripeconnect.StatusTrialing, sub.Status)
	assert.Equal(t, trialEnd, sub.CurrentPeriodEnd)
	assert.Equal(t, trialEnd, sub.TrialEnd)
	assert.False(t, sub.Paused())
}

func TestCreateSubscriptionCohortImmediate(t *testing.T) {
	t.Parallel()

	f, c := newFakeAPI(t)
	f.on("POST /v1/subscriptions", http.StatusOK, subscriptionJSON)

	anchor := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.CreateSubscription(context.Background(), "acct_1", stripeconnect.CreateSubscriptionParams{
		CustomerID:         "cus_1",
		PriceID:            "price_1",
		BillingCycleAnchor: anchor,
		ProrationBehavior:  "none",
	}, "")
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, "1738368000", req.Form.Get("billing_cycle_anchor"))
	assert.Equal(t, "none", req.Form.Get("proration_behavior"))
	assert.NotContains(t, req.Form, "trial_end")
	assert.Empty(t, req.Idempotency)
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()

	f, c := newFakeAPI(t)
	f.on("POST /v1/subscriptions/sub_123", http.StatusOK, subscriptionJSON)

	_, err := c.PauseSubscription(context.Background(), "acct_1", "sub_123")
	require.NoError(t, err)
	assert.Equal(t, "void", f.last().Form.Get("pause_collection[behavior]"))

	_, err = c.ResumeSubscription(context.Background(), "acct_1", "sub_123")
	require.NoError(t, err)
	form := f.last().Form
	assert.Contains(t, form, "pause_collection")
	assert.Equal(t, "", form.Get("pause_collection"))
}

func TestErrorsPreserveProcessorCode(t *testing.T) {
	t.Parallel()

	f, c := newFakeAPI(t)
	f.on("POST /v1/subscriptions", http.StatusPaymentRequired,
		`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined.","param":"payment_method"}}`)

	_, err := c.CreateSubscription(context.Background(), "acct_1", stripeconnect.CreateSubscriptionParams{
		CustomerID: "cus_1", PriceID: "price_1",
	}, "")
	require.Error(t, err)

	se, ok := stripeconnect.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "subscription.create", se.Op)
	assert.Equal(t, "card_error", se.Type)
	assert.Equal(t, "card_declined", se.Code)
	assert.Equal(t, "payment_method", se.Param)
	assert.Equal(t, http.StatusPaymentRequired, se.StatusCode)

	_, err = c.GetAccount(context.Background(), "acct_missing")
	assert.True(t, stripeconnect.IsNotFound(err))
}

func TestGetAccount(t *testing.T) {
	t.Parallel()

	f, c := newFakeAPI(t)
	f.on("GET /v1/accounts/acct_1", http.StatusOK, `{
	  "id": "acct_1", "object": "account",
	  "charges_enabled": false, "details_submitted": true, "payouts_enabled": false,
	  "requirements": {"currently_due": ["external_account"], "past_due": [], "pending_verification": ["individual.id_number"], "disabled_reason": "requirements.pending_verification"},
	  "capabilities": {"card_payments": "pending", "transfers": "inactive"}
	}`)

	acct, err := c.GetAccount(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.True(t, acct.DetailsSubmitted)
	assert.False(t, acct.ChargesEnabled)
	assert.Equal(t, []string{"external_account"}, acct.Requirements.CurrentlyDue)
	assert.Equal(t, []string{"individual.id_number"}, acct.Requirements.PendingVerification)
	assert.Equal(t, "requirements.pending_verification", acct.Requirements.DisabledReason)
	assert.Equal(t, "pending", acct.Capabilities["card_payments"])
}

func TestListSubscriptionsPaginates(t *testing.T) {
	t.Parallel()

	f, c := newFakeAPI(t)
	f.on("GET /v1/subscriptions", http.StatusOK, `{"object":"list","url":"/v1/subscriptions","has_more":false,"data":[`+subscriptionJSON+`]}`)

	subs, err := c.ListSubscriptions(context.Background(), "acct_1", stripeconnect.ListSubscriptionsParams{TestClockID: "clock_1"})
	require.NoError(t, err)
	require.Len(t, subs, 1)

	req := f.last()
	assert.Equal(t, "all", req.Form.Get("status"))
	assert.Equal(t, "clock_1", req.Form.Get("test_clock"))
}

func TestParseWebhook(t *testing.T) {
	t.Parallel()

	_, c := newFakeAPI(t)

	var sub map[string]any
	require.NoError(t, json.Unmarshal([]byte(subscriptionJSON), &sub))
	body, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        "customer.subscription.updated",
		"account":     "acct_1",
		"created":     1734307200,
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": sub},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	evt, err := c.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, "acct_1", evt.AccountID)
	require.NotNil(t, evt.Subscription)
	assert.Equal(t, "sub_123", evt.Subscription.ID)

	_, err = c.ParseWebhook(signed.Payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, stripeconnect.ErrInvalidSignature)
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()
	_, err := stripeconnect.New(stripeconnect.Config{})
	assert.ErrorIs(t, err, stripeconnect.ErrMissingSecretKey)
}
