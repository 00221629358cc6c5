package stripeconnect

import (
	"time"

	"github.com/stripe/stripe-go/v82"
)

func unix(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func accountFromStripe(a *stripe.Account) *Account {
	if a == nil {
		return nil
	}
	out := &Account{
		ID:               a.ID,
		ChargesEnabled:   a.ChargesEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
		PayoutsEnabled:   a.PayoutsEnabled,
	}
	if r := a.Requirements; r != nil {
		out.Requirements = Requirements{
			CurrentlyDue:        r.CurrentlyDue,
			EventuallyDue:       r.EventuallyDue,
			PastDue:             r.PastDue,
			PendingVerification: r.PendingVerification,
			DisabledReason:      string(r.DisabledReason),
		}
	}
	if c := a.Capabilities; c != nil {
		out.Capabilities = map[string]string{}
		if c.CardPayments != "" {
			out.Capabilities["card_payments"] = string(c.CardPayments)
		}
		if c.Transfers != "" {
			out.Capabilities["transfers"] = string(c.Transfers)
		}
	}
	return out
}

func priceFromStripe(p *stripe.Price) *Price {
	out := &Price{
		ID:         p.ID,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Active:     p.Active,
	}
	if p.Product != nil {
		out.ProductID = p.Product.ID
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
	}
	return out
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialEnd:          unix(s.TrialEnd),
		CanceledAt:        unix(s.CanceledAt),
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.TestClock != nil {
		out.TestClockID = s.TestClock.ID
	}
	if s.PauseCollection != nil {
		out.PauseCollection = string(s.PauseCollection.Behavior)
	}
	// Billing periods live on the items since the 2025-03-31 API version.
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.CurrentPeriodStart = unix(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unix(item.CurrentPeriodEnd)
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	return out
}

func invoiceFromStripe(in *stripe.Invoice) *Invoice {
	if in == nil {
		return nil
	}
	out := &Invoice{
		ID:          in.ID,
		Status:      string(in.Status),
		AmountDue:   in.AmountDue,
		AmountPaid:  in.AmountPaid,
		Currency:    string(in.Currency),
		PeriodStart: unix(in.PeriodStart),
		PeriodEnd:   unix(in.PeriodEnd),
		Created:     unix(in.Created),
	}
	if in.Customer != nil {
		out.CustomerID = in.Customer.ID
	}
	if p := in.Parent; p != nil && p.SubscriptionDetails != nil && p.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = p.SubscriptionDetails.Subscription.ID
	}
	return out
}

func testClockFromStripe(tc *stripe.TestHelpersTestClock) *TestClock {
	return &TestClock{
		ID:         tc.ID,
		Name:       tc.Name,
		FrozenTime: unix(tc.FrozenTime),
		Status:     string(tc.Status),
	}
}
