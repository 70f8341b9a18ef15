package service

import (
	"context"
	"fmt"

	"github.com/okian/neurobloom/internal/adapters/media"
	"github.com/okian/neurobloom/internal/domain/eeg"
	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/internal/domain/session"
	"github.com/okian/neurobloom/internal/domain/vision"
	"github.com/okian/neurobloom/pkg/logger"
)

// Fetcher resolves a job source to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, src string) (path string, cleanup func(), err error)
}

// Opener turns a local file into a frame source that runs cleanup on Close.
type Opener func(path string, cleanup func()) session.FrameSource

func openCapture(path string, cleanup func()) session.FrameSource {
	return media.OpenCapture(path, cleanup)
}

// SessionRunner runs one job end to end: fetch, decode, analyze, fuse.
// Every call builds a fresh analyzer and synthesizer, so concurrent jobs
// never share blink or noise state. Detectors are shared and must be safe
// for concurrent use.
type SessionRunner struct {
	fetcher Fetcher
	open    Opener
	faces   vision.Detector
	eyes    vision.Detector

	blinkThreshold int
	stride         int
	gazeThreshold  float64
	seed           int64
	basePowers     *eeg.BandPowers

	logger logger.Logger
}

// RunnerOption applies a configuration option to the SessionRunner.
type RunnerOption func(*SessionRunner)

// WithFetcher replaces the media fetcher.
func WithFetcher(f Fetcher) RunnerOption {
	return func(r *SessionRunner) {
		if f != nil {
			r.fetcher = f
		}
	}
}

// WithOpener replaces the video decoder.
func WithOpener(o Opener) RunnerOption {
	return func(r *SessionRunner) {
		if o != nil {
			r.open = o
		}
	}
}

// WithBlinkThreshold sets the closed-frame count a blink must exceed.
func WithBlinkThreshold(frames int) RunnerOption {
	return func(r *SessionRunner) {
		r.blinkThreshold = frames
	}
}

// WithStride analyzes every n-th frame.
func WithStride(n int) RunnerOption {
	return func(r *SessionRunner) {
		r.stride = n
	}
}

// WithGazeThreshold sets the DISTRACTED gaze cutoff.
func WithGazeThreshold(t float64) RunnerOption {
	return func(r *SessionRunner) {
		r.gazeThreshold = t
	}
}

// WithSeed makes every session's synthetic EEG deterministic. Zero keeps
// time seeding.
func WithSeed(seed int64) RunnerOption {
	return func(r *SessionRunner) {
		r.seed = seed
	}
}

// WithBasePowers overrides the resting-state baselines.
func WithBasePowers(p eeg.BandPowers) RunnerOption {
	return func(r *SessionRunner) {
		r.basePowers = &p
	}
}

// WithRunnerLogger sets a custom logger for the runner.
func WithRunnerLogger(l logger.Logger) RunnerOption {
	return func(r *SessionRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewSessionRunner creates a runner over shared face and eye detectors.
func NewSessionRunner(faces, eyes vision.Detector, opts ...RunnerOption) *SessionRunner {
	r := &SessionRunner{
		open:           openCapture,
		faces:          faces,
		eyes:           eyes,
		blinkThreshold: vision.DefaultBlinkThreshold,
		stride:         session.DefaultStride,
		gazeThreshold:  session.DefaultGazeDistractedThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("runner")
	}
	if r.fetcher == nil {
		r.fetcher = media.NewFetcher(media.WithLogger(r.logger.Named("media")))
	}
	return r
}

// Analyze implements the worker's Analyzer.
func (r *SessionRunner) Analyze(ctx context.Context, job model.Job, onTick func(session.Tick)) session.Result { //nolint:gocritic // hugeParam: read-only
	log := r.logger.With(logger.SessionID(job.SessionID))

	path, cleanup, err := r.fetcher.Fetch(ctx, job.Source)
	if err != nil {
		log.Warn(ctx, "video unavailable", logger.Error(err))
		return session.Result{Err: fmt.Errorf("%w: %w", session.ErrSourceOpen, err)}
	}

	analyzer, err := vision.NewAnalyzer(r.faces, r.eyes,
		vision.WithBlinkThreshold(r.blinkThreshold),
		vision.WithLogger(log.Named("vision")),
	)
	if err != nil {
		cleanup()
		return session.Result{Err: err}
	}

	synthOpts := []eeg.Option{}
	if r.seed != 0 {
		synthOpts = append(synthOpts, eeg.WithSeed(r.seed))
	}
	if r.basePowers != nil {
		synthOpts = append(synthOpts, eeg.WithBasePowers(*r.basePowers))
	}

	opts := []session.Option{
		session.WithStride(r.stride),
		session.WithGazeThreshold(r.gazeThreshold),
		session.WithTickHandler(onTick),
		session.WithLogger(log),
	}
	if job.Features != nil {
		opts = append(opts, session.WithFeatures(*job.Features))
	}

	p := session.NewPipeline(r.open(path, cleanup), analyzer, eeg.NewSynthesizer(synthOpts...), opts...)
	return p.Run(ctx)
}
