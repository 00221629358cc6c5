package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/clubkit/pkg/logger"
)

// ContextExtractor pulls a string value out of a request context.
type ContextExtractor func(context.Context) (string, bool)

// Logger builds events from context and hands them to Storage.
type Logger struct {
	storage   Storage
	actor     ContextExtractor
	requestID ContextExtractor
	now       func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithActorExtractor overrides how the acting user is resolved.
func WithActorExtractor(fn ContextExtractor) Option {
	return func(l *Logger) {
		if fn != nil {
			l.actor = fn
		}
	}
}

func WithRequestIDExtractor(fn ContextExtractor) Option {
	return func(l *Logger) { l.requestID = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger creates a Logger. It panics on nil storage.
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	l := &Logger{
		storage: storage,
		actor: func(ctx context.Context) (string, bool) {
			a := logger.ActorFromContext(ctx)
			return a, a != ""
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records an event of eventType for businessID. An empty businessID
// marks a platform-level event.
func (l *Logger) Log(ctx context.Context, businessID, eventType string, opts ...EventOption) error {
	e := Event{
		ID:         uuid.New(),
		BusinessID: businessID,
		Type:       eventType,
		Timestamp:  l.now().UTC(),
	}
	if v, ok := l.actor(ctx); ok {
		e.ActorUserID = v
	}
	if l.requestID != nil {
		if v, ok := l.requestID(ctx); ok {
			e.RequestID = v
		}
	}
	for _, opt := range opts {
		opt(&e)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	return l.storage.Store(ctx, e)
}
