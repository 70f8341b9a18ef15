package vision

// EyeState is the debounce state of the blink tracker.
type EyeState int

// Blink tracker states.
const (
	EyesOpenStable EyeState = iota
	EyesClosedPending
)

func (s EyeState) String() string {
	if s == EyesClosedPending {
		return "EYES_CLOSED_PENDING"
	}
	return "EYES_OPEN_STABLE"
}

// DefaultBlinkThreshold is the closed-frame count that must be exceeded
// before reopening commits a blink.
const DefaultBlinkThreshold = 2

// BlinkTracker debounces per-frame eye visibility into blink events.
// It is owned by one session and is not safe for concurrent use.
type BlinkTracker struct {
	threshold int
	closed    int
	count     int
}

// NewBlinkTracker creates a tracker in EyesOpenStable. A negative threshold
// is treated as zero.
func NewBlinkTracker(threshold int) *BlinkTracker {
	if threshold < 0 {
		threshold = 0
	}
	return &BlinkTracker{threshold: threshold}
}

// Observe feeds one frame and reports whether it committed a blink.
func (t *BlinkTracker) Observe(eyesVisible bool) bool {
	if !eyesVisible {
		t.closed++
		return false
	}
	committed := t.closed > t.threshold
	if committed {
		t.count++
	}
	t.closed = 0
	return committed
}

// State returns the current debounce state.
func (t *BlinkTracker) State() EyeState {
	if t.closed > 0 {
		return EyesClosedPending
	}
	return EyesOpenStable
}

// Count is the number of committed blinks.
func (t *BlinkTracker) Count() int { return t.count }

// ClosedFrames is the current run of consecutive eyes-closed frames.
func (t *BlinkTracker) ClosedFrames() int { return t.closed }

// Threshold returns the debounce threshold.
func (t *BlinkTracker) Threshold() int { return t.threshold }
