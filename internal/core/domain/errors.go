package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownEvent is returned for insights events of an unsupported type.
	ErrUnknownEvent = errors.New("unknown insights event type")
	// ErrInvalidEvent is returned for malformed insights events.
	ErrInvalidEvent = errors.New("invalid insights event")
)
