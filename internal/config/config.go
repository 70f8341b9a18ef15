// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Defaults come from New(ctx); Load(ctx) layers .env, YAML and env vars on top.
//   - Validation errors wrap ErrInvalidConfig, provider errors wrap ErrLoadConfig.
package config

import (
	"context"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory session job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of session workers. Each worker runs one
	// session at a time, so this is the session concurrency limit.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the session ID deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ReportStoreSize caps the number of retained session records.
	ReportStoreSize int `koanf:"report_store_size"`

	// MaxRecentLimit caps GET /sessions?limit.
	MaxRecentLimit int `koanf:"max_recent_limit"`

	// FrameStride analyzes every Nth decoded frame.
	FrameStride int `koanf:"frame_stride"`

	// BlinkDebounceFrames is the closed-frame count a blink must exceed.
	BlinkDebounceFrames int `koanf:"blink_debounce_frames"`

	// GazeDistractedThreshold labels a tick DISTRACTED above this gaze deviation.
	GazeDistractedThreshold float64 `koanf:"gaze_distracted_threshold"`

	// FaceCascadePath and EyeCascadePath point at Haar cascade XML files.
	FaceCascadePath string `koanf:"face_cascade_path"`
	EyeCascadePath  string `koanf:"eye_cascade_path"`

	// EEGSeed seeds the band power synthesizer. Zero means time-seeded.
	EEGSeed int64 `koanf:"eeg_seed"`

	// BasePowers overrides resting-state band powers, keyed by band name.
	BasePowers map[string]float64 `koanf:"base_powers"`

	// MatchedDwell pairs key releases with their own press instead of the
	// immediately preceding event.
	MatchedDwell bool `koanf:"matched_dwell"`

	// DownloadDir receives downloaded session videos. Empty means os.TempDir().
	DownloadDir string `koanf:"download_dir"`

	// DownloadTimeoutMS bounds a single download attempt.
	DownloadTimeoutMS int `koanf:"download_timeout_ms"`

	// DownloadRetries is the number of extra attempts on 5xx or transport errors.
	DownloadRetries int `koanf:"download_retries"`

	// StreamBuffer is the per-client outbound buffer of the tick stream.
	StreamBuffer int `koanf:"stream_buffer"`

	// PredictorLatencyMinMS and PredictorLatencyMaxMS simulate external model latency.
	PredictorLatencyMinMS int `koanf:"predictor_latency_min_ms"`
	PredictorLatencyMaxMS int `koanf:"predictor_latency_max_ms"`

	// CORSOrigins is a comma separated list of browser origins allowed to
	// call the API. Empty disables CORS headers.
	CORSOrigins string `koanf:"cors_origins"`

	// LocalVideoDir confines server-local video paths submitted over the
	// API. Empty accepts only http(s) URLs.
	LocalVideoDir string `koanf:"local_video_dir"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "json",
		Addr:                    ":9080",
		QueueSize:               1024,
		WorkerCount:             runtime.NumCPU(),
		DedupeSize:              10_000,
		ReportStoreSize:         10_000,
		MaxRecentLimit:          100,
		FrameStride:             3,
		BlinkDebounceFrames:     2,
		GazeDistractedThreshold: 0.5,
		FaceCascadePath:         "data/haarcascade_frontalface_default.xml",
		EyeCascadePath:          "data/haarcascade_eye.xml",
		DownloadTimeoutMS:       60_000,
		DownloadRetries:         2,
		StreamBuffer:            64,
		PredictorLatencyMinMS:   0,
		PredictorLatencyMaxMS:   0,
	}
}

// AllowedOrigins splits CORSOrigins, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DownloadTimeout returns DownloadTimeoutMS as a duration.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutMS) * time.Millisecond
}
