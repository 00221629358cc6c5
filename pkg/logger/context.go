package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{ name string }

var (
	businessKey = ctxKey{"business_id"}
	actorKey    = ctxKey{"actor_id"}
	triggerKey  = ctxKey{"trigger"}
)

// WithBusinessID stores the tenant id for BusinessIDExtractor.
func WithBusinessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, businessKey, id)
}

// WithActorID stores the acting user (or system job name).
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorKey, id)
}

// WithTrigger stores what started the current unit of work
// (webhook, admin, cron, onboarding_return).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey, trigger)
}

// ActorFromContext returns the actor stored by WithActorID.
func ActorFromContext(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}

// TriggerFromContext returns the trigger stored by WithTrigger.
func TriggerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(triggerKey).(string)
	return v
}

func stringExtractor(key ctxKey) ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			return slog.String(key.name, v), true
		}
		return slog.Attr{}, false
	}
}

// BusinessIDExtractor, ActorIDExtractor and TriggerExtractor inject the
// values stored by the matching With* helpers.
func BusinessIDExtractor() ContextExtractor { return stringExtractor(businessKey) }
func ActorIDExtractor() ContextExtractor    { return stringExtractor(actorKey) }
func TriggerExtractor() ContextExtractor    { return stringExtractor(triggerKey) }

// ValueExtractor injects any context value found under key as name.
func ValueExtractor(name string, key any) ContextExtractor {
	if name == "" || key == nil {
		return nil
	}
	return func(ctx context.Context) (slog.Attr, bool) {
		if v := ctx.Value(key); v != nil {
			return slog.Any(name, v), true
		}
		return slog.Attr{}, false
	}
}
