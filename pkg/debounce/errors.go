package debounce

import "errors"

var (
	// ErrDuplicate is returned while an identical action is still inside its window.
	ErrDuplicate = errors.New("debounce: action already in progress")
	// ErrEmptyKey is returned for an empty action key or event id.
	ErrEmptyKey = errors.New("debounce: empty key")
	// ErrUnavailable wraps redis failures.
	ErrUnavailable = errors.New("debounce: backend unavailable")
)
