// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/neurobloom/internal/domain/interaction"
)

// Job is a queued request to analyze one recorded session.
type Job struct {
	SessionID   string                // unique id for idempotency
	Source      string                // video URL or local path
	Features    *interaction.Features // live interaction features; nil uses defaults
	SubmittedAt time.Time
}

// Status is the lifecycle stage of a session analysis.
type Status string

// Session lifecycle.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
