package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/neurobloom/pkg/logger"
)

// Run executes a complete replay and returns its statistics. Invalid
// reports fail the run with ErrVerification; stats are returned either way.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("replay")

	log.Info(ctx, "starting session replay",
		logger.String("baseURL", config.BaseURL),
		logger.String("videoURL", config.VideoURL),
		logger.Int("sessions", config.Sessions),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Duration("wait", config.Wait),
		logger.Bool("verbose", config.Verbose))

	client := NewClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	log.Info(ctx, "checking service health")
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate sessions
	subs, err := generateSubmissions(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("session generation failed: %w", err)
	}

	// Step 3: Submit sessions concurrently
	submitSessions(ctx, config, client, subs, stats)

	// Step 4: Poll reports until terminal or the wait budget runs out
	waitCtx, cancel := context.WithTimeout(ctx, config.Wait)
	defer cancel()
	ids := make([]string, len(subs))
	for i := range subs {
		ids[i] = subs[i].SessionID
	}
	reports := collectReports(waitCtx, config, client, ids)

	// Step 5: Verify results
	verifyErr := verifyReports(ctx, config, reports, stats)

	// Step 6: Save submissions to file
	if err := saveSubmissions(ctx, config, subs); err != nil {
		log.Warn(ctx, "failed to save submissions", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if verifyErr != nil {
		return stats, verifyErr
	}
	log.Info(ctx, "replay completed successfully")
	return stats, nil
}

// saveSubmissions writes the generated submissions as a JSON array.
func saveSubmissions(ctx context.Context, config *Config, subs []Submission) error {
	if len(subs) == 0 {
		return errors.New("no submissions to save")
	}

	filename := config.OutputFile
	if filename == "" {
		filename = "replay_sessions_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(ctx, "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(subs); err != nil {
		return fmt.Errorf("failed to write submissions: %w", err)
	}

	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final replay statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, sessionsPerSecond float64

	if stats.SessionsSubmitted > 0 {
		acceptRate = float64(stats.SessionsAccepted) / float64(stats.SessionsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		sessionsPerSecond = float64(stats.ReportsCompleted+stats.ReportsFailed) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("sessionsGenerated", stats.SessionsGenerated),
		logger.Int("sessionsSubmitted", stats.SessionsSubmitted),
		logger.Int("sessionsAccepted", stats.SessionsAccepted),
		logger.Int("sessionsDuplicate", stats.SessionsDuplicate),
		logger.Int("sessionsRejected", stats.SessionsRejected),
		logger.Int("reportsCompleted", stats.ReportsCompleted),
		logger.Int("reportsFailed", stats.ReportsFailed),
		logger.Int("reportsPending", stats.ReportsPending),
		logger.Int("reportsInvalid", stats.ReportsInvalid),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("sessionsPerSecond", sessionsPerSecond))
}
