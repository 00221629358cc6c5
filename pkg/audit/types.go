package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one append-only audit record.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	BusinessID  string         `json:"business_id,omitempty"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	Type        string         `json:"type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Validate checks the fields every record must carry.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: type is required", ErrEventValidation)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrEventValidation)
	}
	return nil
}

// EventOption customises an Event before it is stored.
type EventOption func(*Event)

// Storage persists audit events. Implementations must never update or
// delete stored events.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	BusinessID string
	Type       string
	Since      time.Time
	Limit      int
}

// Reader reads audit events back, newest first.
type Reader interface {
	Query(ctx context.Context, f Filter) ([]Event, error)
}
