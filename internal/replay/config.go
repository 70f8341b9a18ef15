// Package replay drives a running neurobloom service with synthetic sessions
// and verifies the reports it produces.
package replay

import (
	"time"

	"github.com/okian/neurobloom/internal/domain/interaction"
)

// Config holds configuration for a replay run.
type Config struct {
	BaseURL      string        // Base URL of the service
	VideoURL     string        // Video every session points at
	Sessions     int           // Number of sessions to submit
	Workers      int           // Number of concurrent HTTP workers
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Delay between report polls
	Wait         time.Duration // Upper bound on waiting for terminal reports
	Seed         int64         // Interaction generator seed; zero is time-seeded
	OutputFile   string        // Output file for generated submissions
	LogFile      string        // Log file for replay output
	Verbose      bool          // Enable verbose logging
}

// Submission is one POST /sessions body.
type Submission struct {
	SessionID   string             `json:"session_id"`
	VideoURL    string             `json:"video_url"`
	Interaction *interaction.Batch `json:"interaction,omitempty"`
}

// AckResponse is the body returned for a submission.
type AckResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Report is the subset of GET /sessions/{id} the replay inspects.
type Report struct {
	SessionID string         `json:"session_id"`
	Status    string         `json:"status"`
	Report    map[string]any `json:"report"`
	Ticks     int            `json:"ticks"`
	Partial   bool           `json:"partial"`
}

// Terminal reports whether the session has stopped changing.
func (r Report) Terminal() bool {
	return r.Status == statusCompleted || r.Status == statusFailed
}

// Stats holds replay statistics.
type Stats struct {
	SessionsGenerated int
	SessionsSubmitted int
	SessionsAccepted  int
	SessionsDuplicate int
	SessionsRejected  int
	ReportsCompleted  int
	ReportsFailed     int
	ReportsPending    int
	ReportsInvalid    int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
