// Command analyze runs the session pipeline over one video without the
// service and prints the report as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/neurobloom/internal/adapters/cascade"
	app "github.com/okian/neurobloom/internal/app"
	"github.com/okian/neurobloom/internal/config"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/pkg/logger"
)

var errNoVideo = errors.New("missing -video")

type options struct {
	video       string
	keysPath    string
	pointerPath string
	seed        int64
	timeout     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.video, "video", "", "Video file path or http(s) URL to analyze")
	flag.StringVar(&opts.keysPath, "keys", "", "JSON array of keystroke events")
	flag.StringVar(&opts.pointerPath, "pointer", "", "JSON array of pointer events")
	flag.Int64Var(&opts.seed, "seed", 0, "EEG synthesizer seed; overrides eeg_seed")
	flag.DurationVar(&opts.timeout, "timeout", 0, "Stop after this long and report what was analyzed")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	// stdout carries the report
	if err := logger.InitWith(os.Stderr, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	_ = logger.SetLevelString(cfg.LogLevel)

	ok, err := analyze(ctx, cfg, opts, os.Stdout)
	if err != nil {
		logger.Get().Error(ctx, "analyze failed", logger.Error(err))
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

// analyze writes the report map to w. ok is false when the report is an error.
func analyze(ctx context.Context, cfg *config.Config, opts options, w io.Writer) (bool, error) {
	if opts.video == "" {
		return false, errNoVideo
	}
	batch, err := loadBatch(opts.keysPath, opts.pointerPath)
	if err != nil {
		return false, err
	}

	detectors, err := cascade.LoadPair(cfg.FaceCascadePath, cfg.EyeCascadePath)
	if err != nil {
		return false, fmt.Errorf("load cascades: %w", err)
	}
	defer func() { _ = detectors.Close() }()

	runnerOpts, err := app.RunnerOptions(cfg)
	if err != nil {
		return false, err
	}
	if opts.seed != 0 {
		runnerOpts = append(runnerOpts, app.WithSeed(opts.seed))
	}
	runner := app.NewSessionRunner(detectors.Face, detectors.Eye, runnerOpts...)

	job := model.Job{SessionID: "offline", Source: opts.video, SubmittedAt: time.Now()}
	if batch != nil {
		features := interaction.New(interaction.WithMatchedDwell(cfg.MatchedDwell)).Process(*batch)
		job.Features = &features
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	res := runner.Analyze(ctx, job, nil)
	logger.Get().Info(ctx, "analysis finished",
		logger.Int("frames", res.Frames),
		logger.Int("ticks", res.Ticks),
		logger.Bool("partial", res.Partial),
		logger.Duration("elapsed", res.Duration),
	)

	if err := writeReport(w, res.Map()); err != nil {
		return false, err
	}
	return res.OK(), nil
}

// loadBatch reads optional keystroke and pointer files. Both empty yields nil.
func loadBatch(keysPath, pointerPath string) (*interaction.Batch, error) {
	if keysPath == "" && pointerPath == "" {
		return nil, nil
	}
	var batch interaction.Batch
	if err := readJSON(keysPath, &batch.Keys); err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	if err := readJSON(pointerPath, &batch.Pointer); err != nil {
		return nil, fmt.Errorf("pointer: %w", err)
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return &batch, nil
}

func readJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeReport(w io.Writer, report map[string]any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
