// Package statemachine provides a generic, guard-aware finite state machine.
//
// A Machine is parameterised by its state type S, event type E and the
// payload type D handed to guards and actions. It stores only the rules;
// the current state lives with the caller (usually a database row), so one
// Machine can serve every record concurrently.
//
//	m := statemachine.New(
//	    statemachine.WithTransition[Status, Event, *Row](Active, Pause, Paused),
//	    statemachine.WithTransition[Status, Event, *Row](Paused, Resume, Active),
//	)
//
//	next, err := m.Fire(ctx, row.Status, Pause, row)
//	if statemachine.IsNoTransitionAvailableError(err) {
//	    // event not defined for row.Status
//	}
//
// Transitions sharing a source state and event are tried in registration
// order; the first whose guards all pass is taken, and IsTransitionRejectedError
// reports the case where every candidate was vetoed.
package statemachine
