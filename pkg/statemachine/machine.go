package statemachine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Guard decides whether a transition may run for the given payload.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Action runs as part of a transition. An error aborts the transition.
type Action[S, E comparable, D any] func(ctx context.Context, from, to S, event E, data D) error

// Transition describes one edge of the machine.
type Transition[S, E comparable, D any] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E, D]
	Actions []Action[S, E, D]
}

// Machine holds transition rules. It carries no current state: callers
// pass the state they loaded, which suits records persisted elsewhere.
type Machine[S, E comparable, D any] struct {
	mu          sync.RWMutex
	transitions map[S]map[E][]Transition[S, E, D]
}

// New builds a machine from options.
func New[S, E comparable, D any](opts ...Option[S, E, D]) *Machine[S, E, D] {
	m := &Machine[S, E, D]{transitions: make(map[S]map[E][]Transition[S, E, D])}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a transition. Several transitions may share from and event;
// the first whose guards pass wins.
func (m *Machine[S, E, D]) Add(t Transition[S, E, D]) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transitions[t.From]; !ok {
		m.transitions[t.From] = make(map[E][]Transition[S, E, D])
	}
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
}

// Fire resolves event from the given state, runs the transition's actions
// and returns the destination state. The source state is returned with an
// error when no transition applies or an action fails.
func (m *Machine[S, E, D]) Fire(ctx context.Context, from S, event E, data D) (S, error) {
	t, err := m.resolve(ctx, from, event, data)
	if err != nil {
		return from, err
	}
	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}
	return t.To, nil
}

// Target reports where event would lead without running actions.
func (m *Machine[S, E, D]) Target(ctx context.Context, from S, event E, data D) (S, error) {
	t, err := m.resolve(ctx, from, event, data)
	if err != nil {
		return from, err
	}
	return t.To, nil
}

// Can reports whether event is allowed from the given state.
func (m *Machine[S, E, D]) Can(ctx context.Context, from S, event E, data D) bool {
	_, err := m.resolve(ctx, from, event, data)
	return err == nil
}

// Events lists the events defined for a state, ignoring guards.
func (m *Machine[S, E, D]) Events(from S) []E {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]E, 0, len(m.transitions[from]))
	for e := range m.transitions[from] {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b E) int {
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	})
	return out
}

func (m *Machine[S, E, D]) resolve(ctx context.Context, from S, event E, data D) (Transition[S, E, D], error) {
	m.mu.RLock()
	candidates := m.transitions[from][event]
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return Transition[S, E, D]{}, NewErrNoTransitionAvailable(fmt.Sprint(from), fmt.Sprint(event))
	}

	for _, t := range candidates {
		if guardsPass(ctx, t, from, event, data) {
			return t, nil
		}
	}
	return Transition[S, E, D]{}, NewErrTransitionRejected(fmt.Sprint(from), fmt.Sprint(event))
}

func guardsPass[S, E comparable, D any](ctx context.Context, t Transition[S, E, D], from S, event E, data D) bool {
	for _, g := range t.Guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
