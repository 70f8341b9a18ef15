// Package interaction reduces keyboard and pointer event batches into scalar
// kinematic and typing features.
package interaction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BackspaceKey is the key label counted as a correction.
const BackspaceKey = "BACKSPACE"

// KeyEventType distinguishes key presses from releases.
type KeyEventType string

// Key event types.
const (
	Press   KeyEventType = "PRESS"
	Release KeyEventType = "RELEASE"
)

// ParseKeyEventType accepts PRESS or RELEASE in any case.
func ParseKeyEventType(s string) (KeyEventType, error) {
	switch KeyEventType(strings.ToUpper(strings.TrimSpace(s))) {
	case Press:
		return Press, nil
	case Release:
		return Release, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
}

// UnmarshalJSON normalizes the event type.
func (t *KeyEventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseKeyEventType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// KeyEvent is one keyboard transition. Timestamp is in milliseconds.
type KeyEvent struct {
	Timestamp float64      `json:"timestamp"`
	Key       string       `json:"key"`
	Type      KeyEventType `json:"type"`
}

// PointerEvent is one pointer sample. Timestamp is in milliseconds, X and Y in pixels.
type PointerEvent struct {
	Timestamp float64 `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Batch is a bounded, already-collected window of events.
type Batch struct {
	Keys    []KeyEvent     `json:"keys"`
	Pointer []PointerEvent `json:"pointer"`
}

// Validate reports whether both sequences are ordered by timestamp.
func (b Batch) Validate() error {
	for i := 1; i < len(b.Keys); i++ {
		if b.Keys[i].Timestamp < b.Keys[i-1].Timestamp {
			return fmt.Errorf("%w: keys[%d]", ErrUnorderedEvents, i)
		}
	}
	for i := 1; i < len(b.Pointer); i++ {
		if b.Pointer[i].Timestamp < b.Pointer[i-1].Timestamp {
			return fmt.Errorf("%w: pointer[%d]", ErrUnorderedEvents, i)
		}
	}
	return nil
}
