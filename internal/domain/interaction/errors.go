package interaction

import "errors"

// Validation errors for decoded event batches.
var (
	ErrUnknownEventType = errors.New("unknown key event type")
	ErrUnorderedEvents  = errors.New("events are not in timestamp order")
)
