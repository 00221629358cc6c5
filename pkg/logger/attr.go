package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// BusinessID records the tenant identifier under the key "business_id".
func BusinessID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("business_id", id)
}

// ActorID records who triggered an operation under the key "actor_id".
func ActorID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("actor_id", id)
}

// AccountID records a connected account reference under the key "account_id".
func AccountID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("account_id", id)
}

// SubscriptionID records an external subscription reference.
func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

// PlanID records a plan identifier under the key "plan_id".
func PlanID(id any) slog.Attr {
	return slog.Any("plan_id", id)
}

// Status records a status value under the key "status".
func Status(s any) slog.Attr {
	return slog.Any("status", s)
}

// Transition records a from/to status pair.
func Transition(from, to any) slog.Attr {
	return Group("transition", slog.Any("from", from), slog.Any("to", to))
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// EventID records the event identifier under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// Action records a reconciliation or admin action under the key "action".
func Action(name string) slog.Attr {
	return slog.String("action", name)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Count records a counter under the given key.
func Count(key string, n int) slog.Attr {
	return slog.Int(key, n)
}
