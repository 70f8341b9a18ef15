package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/neurobloom/pkg/logger"
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) (func() error, error) {
	if logFile == "" {
		logFile = "replay_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWith(io.MultiWriter(os.Stdout, file), "text"); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	os.Stdout.WriteString(`Neurobloom Session Replay
=========================

Submits synthetic sessions to a running neurobloom service, waits for their
reports and checks every report is either the full metric set within bounds
or a single error.

Usage:
  go run ./cmd/session-replay [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -video string
        Video path or URL every session analyzes (required)
  -sessions int
        Number of sessions to submit (default 20)
  -workers int
        Number of concurrent HTTP workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -poll duration
        Delay between report polls (default 500ms)
  -wait duration
        Upper bound on waiting for terminal reports (default 5m)
  -seed int
        Interaction generator seed, 0 for time-seeded (default 0)
  -output string
        Output file for generated sessions (default: replay_sessions_TIMESTAMP.json)
  -log string
        Log file for replay output (default: replay_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Replay against a local service
  go run ./cmd/session-replay -video /data/sample.mp4

  # Remote video, more sessions, fixed seed
  go run ./cmd/session-replay -video https://example.com/s.mp4 -sessions 100 -seed 7
`)
}
