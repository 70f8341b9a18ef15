package session

import (
	"encoding/json"
	"time"

	"github.com/okian/neurobloom/internal/domain/fusion"
)

// Result is the outcome of one session: either a full report or an error,
// never both.
type Result struct {
	Report   fusion.Snapshot
	Err      error
	Frames   int           // frames read from the source
	Ticks    int           // frames analyzed and fused
	Blinks   int           // blinks committed by the end of the run
	Partial  bool          // stopped by cancellation before the source ended
	Duration time.Duration // wall time of the run
}

// OK reports whether the result carries a report.
func (r Result) OK() bool { return r.Err == nil }

// Map renders the report keyed by metric name, or a single "error" entry.
func (r Result) Map() map[string]any {
	if r.Err != nil {
		return map[string]any{"error": ErrorMessage(r.Err)}
	}
	out := make(map[string]any, len(fusion.Names))
	for k, v := range r.Report.Map() {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the same shape as Map.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}
