package statemachine

// Option configures a machine during construction.
type Option[S, E comparable, D any] func(*Machine[S, E, D])

// TransitionOption attaches guards or actions to a single transition.
type TransitionOption[S, E comparable, D any] func(*Transition[S, E, D])

// WithTransition registers from --event--> to.
func WithTransition[S, E comparable, D any](from S, event E, to S, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) {
		t := Transition[S, E, D]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		m.Add(t)
	}
}

// WithTransitionFrom registers the same event and destination for several source states.
func WithTransitionFrom[S, E comparable, D any](from []S, event E, to S, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) {
		for _, f := range from {
			WithTransition(f, event, to, opts...)(m)
		}
	}
}

func WithGuard[S, E comparable, D any](g Guard[S, E, D]) TransitionOption[S, E, D] {
	return func(t *Transition[S, E, D]) {
		if g != nil {
			t.Guards = append(t.Guards, g)
		}
	}
}

func WithAction[S, E comparable, D any](a Action[S, E, D]) TransitionOption[S, E, D] {
	return func(t *Transition[S, E, D]) {
		if a != nil {
			t.Actions = append(t.Actions, a)
		}
	}
}
