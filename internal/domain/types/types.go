// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/neurobloom/internal/domain/eeg"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/vision"
)

// SessionSummary is one row of the recent-sessions listing.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	Status      string    `json:"status"`
	Ticks       int       `json:"ticks"`
	Partial     bool      `json:"partial,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// SubmitRequest asks the service to analyze a recorded session. Interaction
// is optional; without it default features are fused.
type SubmitRequest struct {
	SessionID   string             `json:"session_id"`
	VideoURL    string             `json:"video_url"`
	Interaction *interaction.Batch `json:"interaction,omitempty"`
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// FuseRequest carries one tick's inputs for a stateless fusion call.
// Missing interaction features fall back to defaults.
type FuseRequest struct {
	EEG         eeg.BandPowers        `json:"eeg"`
	Interaction *interaction.Features `json:"interaction,omitempty"`
	Vision      vision.Metrics        `json:"vision"`
}
