package audit

// WithMetadata adds one metadata entry.
func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithFields merges several metadata entries.
func WithFields(fields map[string]any) EventOption {
	return func(e *Event) {
		for k, v := range fields {
			WithMetadata(k, v)(e)
		}
	}
}

// WithActor sets the actor explicitly, overriding the context value.
func WithActor(userID string) EventOption {
	return func(e *Event) {
		if userID != "" {
			e.ActorUserID = userID
		}
	}
}
