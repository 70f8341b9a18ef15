package model

import (
	"time"

	"github.com/okian/neurobloom/internal/domain/assessment"
	"github.com/okian/neurobloom/internal/domain/fusion"
)

// Record is the stored state of one session.
type Record struct {
	SessionID   string
	Status      Status
	Report      *fusion.Snapshot // set only when Status is completed
	Error       string           // set only when Status is failed
	Predictions []assessment.Prediction
	Frames      int
	Ticks       int
	Partial     bool
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Metrics renders the report keyed by metric name, or a single "error" entry.
func (r Record) Metrics() map[string]any {
	if r.Status == StatusFailed {
		return map[string]any{"error": r.Error}
	}
	if r.Report == nil {
		return nil
	}
	out := make(map[string]any, len(fusion.Names))
	for k, v := range r.Report.Map() {
		out[k] = v
	}
	return out
}
