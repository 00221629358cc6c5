package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/pkg/audit"
	"github.com/dmitrymomot/clubkit/pkg/logger"
	"github.com/dmitrymomot/clubkit/pkg/stripeconnect"
	"github.com/dmitrymomot/clubkit/svc/merchant"
)

// DrainResult is the outcome for one dynamic plan.
type DrainResult struct {
	PlanID      uuid.UUID `json:"planId"`
	ItemID      uuid.UUID `json:"itemId,omitzero"`
	Action      string    `json:"action"`
	StripePrice string    `json:"stripePriceId,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

const (
	DrainApplied = "applied"
	DrainSkipped = "skipped"
	DrainFailed  = "failed"
)

// DrainReport summarizes DrainPrices.
type DrainReport struct {
	Applied int           `json:"applied"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Results []DrainResult `json:"results"`
}

// DrainPrices applies the due queue item of every dynamic plan: it creates
// the processor price, marks the item applied, points the plan at the new
// price and archives the one it replaces. Running it again with nothing
// due changes nothing. A failing plan does not stop the others.
func (c *Catalog) DrainPrices(ctx context.Context) (*DrainReport, error) {
	plans, err := c.store.ListDynamicPlans(ctx)
	if err != nil {
		return nil, err
	}

	report := &DrainReport{Results: make([]DrainResult, 0, len(plans))}
	for _, p := range plans {
		res := c.drainPlan(ctx, p)
		switch res.Action {
		case DrainApplied:
			report.Applied++
		case DrainFailed:
			report.Failed++
			c.log.ErrorContext(ctx, "price drain failed",
				logger.BusinessID(p.BusinessID),
				logger.PlanID(p.ID),
				logger.Error(errors.New(res.Reason)),
			)
		default:
			report.Skipped++
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (c *Catalog) drainPlan(ctx context.Context, p *Plan) DrainResult {
	res := DrainResult{PlanID: p.ID, Action: DrainFailed}
	now := c.opts.now()

	items, err := c.store.ListPriceItems(ctx, p.ID)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	due := DueItem(items, now)
	if due == nil {
		res.Action, res.Reason = DrainSkipped, "No price due"
		return res
	}
	res.ItemID = due.ID

	amount, err := MinorUnits(due.Price)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	b, err := c.merchants.Get(ctx, p.BusinessID)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	if !b.Connected() {
		res.Reason = merchant.ErrAccountNotConnected.Error()
		return res
	}

	previous := p.StripePrice
	price, err := c.prices.CreatePrice(ctx, b.StripeAccountID, stripeconnect.CreatePriceParams{
		ProductID:  p.StripeProduct,
		UnitAmount: amount,
		Currency:   p.Currency,
		Interval:   "month",
	})
	if err != nil {
		res.Reason = errors.Join(ErrFailedToCreatePrice, err).Error()
		return res
	}

	next := *p
	next.StripePrice = price.ID
	next.UpdatedAt = now.UTC()
	if err := c.store.ApplyPriceItem(ctx, due.ID, &next, now.UTC()); err != nil {
		// The item stays due and nothing points at the new price.
		if aerr := c.prices.ArchivePrice(ctx, b.StripeAccountID, price.ID); aerr != nil {
			c.log.WarnContext(ctx, "archive unused price",
				logger.PlanID(p.ID),
				logger.Error(aerr),
			)
		}
		res.Reason = err.Error()
		return res
	}

	if previous != "" && previous != price.ID {
		if err := c.prices.ArchivePrice(ctx, b.StripeAccountID, previous); err != nil {
			c.log.WarnContext(ctx, "archive replaced price",
				logger.PlanID(p.ID),
				logger.Error(err),
			)
		}
	}

	c.record(ctx, p.BusinessID, AuditPriceApplied,
		audit.WithMetadata("plan_id", p.ID.String()),
		audit.WithMetadata("stripe_price_id", price.ID),
		audit.WithMetadata("replaced_price_id", previous),
		audit.WithMetadata("price", due.Price.StringFixed(2)),
	)
	res.Action, res.StripePrice = DrainApplied, price.ID
	return res
}
