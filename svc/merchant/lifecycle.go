package merchant

import (
	"context"

	"github.com/dmitrymomot/clubkit/pkg/statemachine"
)

// Event is an explicit onboarding step taken by the platform. Status
// changes driven by the processor go through DetermineBusinessState instead.
type Event string

const (
	EventDetailsCollected  Event = "details_collected"
	EventAccountCreated    Event = "account_created"
	EventOnboardingStarted Event = "onboarding_started"
)

type lifecycle = statemachine.Machine[Status, Event, *Business]

func requires(pred func(*Business) bool) statemachine.TransitionOption[Status, Event, *Business] {
	return statemachine.WithGuard[Status, Event, *Business](func(_ context.Context, _ Status, _ Event, b *Business) bool {
		return pred(b)
	})
}

func newLifecycle() *lifecycle {
	return statemachine.New(
		statemachine.WithTransition(StatusCreated, EventDetailsCollected, StatusDetailsCollected,
			requires((*Business).HasDetails)),
		statemachine.WithTransition(StatusDetailsCollected, EventAccountCreated, StatusStripeAccountCreated,
			requires((*Business).Connected)),
		statemachine.WithTransitionFrom[Status, Event, *Business](
			[]Status{StatusStripeAccountCreated, StatusStripeOnboardingRequired},
			EventOnboardingStarted,
			StatusStripeOnboardingInProgress,
		),
	)
}
