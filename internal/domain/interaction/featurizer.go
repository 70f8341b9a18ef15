package interaction

import "math"

const (
	minStepMillis    = 1e-3 // dt floor for duplicate timestamps
	idleVelocity     = 0.1  // px/ms
	defaultIdleRatio = 1.0
)

// KeystrokeFeatures summarizes a keyboard batch.
type KeystrokeFeatures struct {
	FlightTimeVar float64 `json:"flight_time_var"`
	DwellTimeAvg  float64 `json:"dwell_time_avg"`
	ErrorRate     float64 `json:"error_rate"`
}

// PointerFeatures summarizes a pointer batch.
type PointerFeatures struct {
	VelocityAvg float64 `json:"velocity_avg"`
	JerkAvg     float64 `json:"jerk_avg"`
	IdleRatio   float64 `json:"idle_ratio"`
}

// Features is the merged interaction feature set consumed by fusion.
type Features struct {
	KeystrokeFeatures
	PointerFeatures
}

// DefaultFeatures stands in for live interaction data when a session only
// has video.
var DefaultFeatures = Features{
	KeystrokeFeatures: KeystrokeFeatures{FlightTimeVar: 150, DwellTimeAvg: 0.1, ErrorRate: 0.02},
	PointerFeatures:   PointerFeatures{VelocityAvg: 0.8, JerkAvg: 0.2, IdleRatio: 0.1},
}

// Featurizer reduces event batches. The zero value is not usable; call New.
type Featurizer struct {
	matchedDwell bool
}

// Option applies a configuration option to the Featurizer.
type Option func(*Featurizer)

// WithMatchedDwell pairs each RELEASE with the oldest open PRESS of the same
// key instead of only adjacent PRESS/RELEASE pairs.
func WithMatchedDwell(enabled bool) Option {
	return func(f *Featurizer) {
		f.matchedDwell = enabled
	}
}

// New creates a Featurizer.
func New(opts ...Option) *Featurizer {
	f := &Featurizer{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Process featurizes a whole batch.
func (f *Featurizer) Process(b Batch) Features {
	return Features{
		KeystrokeFeatures: f.ProcessKeystrokes(b.Keys),
		PointerFeatures:   ProcessPointer(b.Pointer),
	}
}

// ProcessKeystrokes computes flight-time variance, mean dwell time and the
// backspace rate. Empty input yields zeros.
func (f *Featurizer) ProcessKeystrokes(events []KeyEvent) KeystrokeFeatures {
	if len(events) == 0 {
		return KeystrokeFeatures{}
	}

	flights := make([]float64, 0, len(events)-1)
	backspaces := 0
	for i, e := range events {
		if e.Key == BackspaceKey {
			backspaces++
		}
		if i > 0 {
			flights = append(flights, e.Timestamp-events[i-1].Timestamp)
		}
	}

	var dwells []float64
	if f.matchedDwell {
		dwells = matchedDwells(events)
	} else {
		dwells = adjacentDwells(events)
	}

	return KeystrokeFeatures{
		FlightTimeVar: variance(flights),
		DwellTimeAvg:  mean(dwells),
		ErrorRate:     float64(backspaces) / float64(len(events)),
	}
}

// adjacentDwells pairs a PRESS with an immediately following RELEASE of the
// same key label. Interleaved presses are not matched.
func adjacentDwells(events []KeyEvent) []float64 {
	var out []float64
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if prev.Type == Press && cur.Type == Release && prev.Key == cur.Key {
			out = append(out, cur.Timestamp-prev.Timestamp)
		}
	}
	return out
}

// matchedDwells keeps a FIFO of open presses per key. Releases with no open
// press are ignored.
func matchedDwells(events []KeyEvent) []float64 {
	open := make(map[string][]float64)
	var out []float64
	for _, e := range events {
		switch e.Type {
		case Press:
			open[e.Key] = append(open[e.Key], e.Timestamp)
		case Release:
			pending := open[e.Key]
			if len(pending) == 0 {
				continue
			}
			out = append(out, e.Timestamp-pending[0])
			open[e.Key] = pending[1:]
		}
	}
	return out
}

// ProcessPointer computes mean velocity, mean absolute jerk and the idle
// ratio. Fewer than two samples is fully idle.
func ProcessPointer(events []PointerEvent) PointerFeatures {
	if len(events) < 2 {
		return PointerFeatures{IdleRatio: defaultIdleRatio}
	}

	velocities := make([]float64, 0, len(events)-1)
	idle := 0
	for i := 1; i < len(events); i++ {
		a, b := events[i-1], events[i]
		dt := b.Timestamp - a.Timestamp
		if dt <= 0 {
			dt = minStepMillis
		}
		v := math.Hypot(b.X-a.X, b.Y-a.Y) / dt
		if v < idleVelocity {
			idle++
		}
		velocities = append(velocities, v)
	}

	// jerk is the second difference of the velocity sequence
	var jerkSum float64
	jerks := 0
	for i := 2; i < len(velocities); i++ {
		jerkSum += math.Abs(velocities[i] - 2*velocities[i-1] + velocities[i-2])
		jerks++
	}
	jerk := 0.0
	if jerks > 0 {
		jerk = jerkSum / float64(jerks)
	}

	return PointerFeatures{
		VelocityAvg: mean(velocities),
		JerkAvg:     jerk,
		// idle steps over sample count, so n samples never reach 1.0
		IdleRatio: float64(idle) / float64(len(events)),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variance is the population variance.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}
