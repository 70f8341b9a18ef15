package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/neurobloom/internal/replay"
)

// Default configuration constants.
const (
	defaultSessions     = 20
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultWait         = 5 * time.Minute
	defaultRunTimeout   = 15 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		videoURL   = flag.String("video", "", "Video path or URL every session analyzes")
		sessions   = flag.Int("sessions", defaultSessions, "Number of sessions to submit")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent HTTP workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		poll       = flag.Duration("poll", defaultPollInterval, "Delay between report polls")
		wait       = flag.Duration("wait", defaultWait, "Upper bound on waiting for terminal reports")
		seed       = flag.Int64("seed", 0, "Interaction generator seed, 0 for time-seeded")
		outputFile = flag.String("output", "", "Output file for generated sessions (default: replay_sessions_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for replay output (default: replay_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}
	if *videoURL == "" || *sessions < 1 || *workers < 1 || *poll <= 0 {
		replay.ShowHelp()
		os.Exit(2)
	}

	closeLog, err := replay.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	config := &replay.Config{
		BaseURL:      *baseURL,
		VideoURL:     *videoURL,
		Sessions:     *sessions,
		Workers:      *workers,
		Timeout:      *timeout,
		PollInterval: *poll,
		Wait:         *wait,
		Seed:         *seed,
		OutputFile:   *outputFile,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	if _, err := replay.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		cancel()
		stop()
		_ = closeLog()
		os.Exit(1)
	}
}
