package history

import "errors"

var (
	// ErrUnavailable is returned when no backend is configured.
	ErrUnavailable = errors.New("history: no backend configured")

	// ErrInvalidRange is returned for an empty or inverted time range.
	ErrInvalidRange = errors.New("history: invalid time range")
)
