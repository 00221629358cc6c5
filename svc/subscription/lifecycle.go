package subscription

import (
	"context"

	"github.com/dmitrymomot/clubkit/pkg/statemachine"
)

// Action is a member-facing change requested by the business.
type Action string

const (
	ActionPause          Action = "pause"
	ActionResume         Action = "resume"
	ActionCancel         Action = "cancel"
	ActionCancelAtPeriod Action = "cancel_at_period_end"
)

type lifecycle = statemachine.Machine[Status, Action, *PlanSubscription]

func notScheduled() statemachine.TransitionOption[Status, Action, *PlanSubscription] {
	return statemachine.WithGuard[Status, Action, *PlanSubscription](func(_ context.Context, _ Status, _ Action, s *PlanSubscription) bool {
		return !s.CancelAtPeriodEnd
	})
}

// newLifecycle only decides which actions are allowed. The resulting
// status always comes from the processor response.
func newLifecycle() *lifecycle {
	billable := []Status{StatusActive, StatusTrialing, StatusPastDue}
	opts := []statemachine.Option[Status, Action, *PlanSubscription]{
		statemachine.WithTransitionFrom[Status, Action, *PlanSubscription](billable, ActionPause, StatusPaused),
		statemachine.WithTransition[Status, Action, *PlanSubscription](StatusPaused, ActionResume, StatusActive),
		statemachine.WithTransitionFrom[Status, Action, *PlanSubscription](
			[]Status{StatusActive, StatusTrialing, StatusPastDue, StatusPaused, StatusUnpaid, StatusIncomplete},
			ActionCancel, StatusCanceled,
		),
	}
	for _, s := range append(billable, StatusPaused) {
		opts = append(opts, statemachine.WithTransition(s, ActionCancelAtPeriod, s, notScheduled()))
	}
	return statemachine.New(opts...)
}
