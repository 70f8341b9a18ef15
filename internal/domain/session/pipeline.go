// Package session drives the per-frame loop that fuses vision, synthetic EEG
// and interaction features into one averaged report.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/neurobloom/internal/domain/eeg"
	"github.com/okian/neurobloom/internal/domain/fusion"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/vision"
	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"
	"gocv.io/x/gocv"
)

// Pipeline defaults.
const (
	DefaultStride                  = 3
	DefaultGazeDistractedThreshold = 0.5
)

// FrameSource is an ordered frame stream. *gocv.VideoCapture satisfies it.
type FrameSource interface {
	IsOpened() bool
	Read(m *gocv.Mat) bool
	Close() error
}

// FrameAnalyzer turns one frame into vision metrics.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, frame gocv.Mat) vision.Metrics
}

// EpochGenerator produces one synthetic EEG epoch per tick.
type EpochGenerator interface {
	GenerateEpoch(state eeg.State, mods *eeg.Modifiers) eeg.BandPowers
}

// Tick is everything produced for one analyzed frame.
type Tick struct {
	Frame    int             `json:"frame"`
	State    eeg.State       `json:"state"`
	Vision   vision.Metrics  `json:"vision"`
	EEG      eeg.BandPowers  `json:"eeg"`
	Snapshot fusion.Snapshot `json:"snapshot"`
}

// Pipeline runs one session. The analyzer and generator carry session state
// and must not be shared with another Pipeline.
type Pipeline struct {
	source        FrameSource
	analyzer      FrameAnalyzer
	epochs        EpochGenerator
	features      interaction.Features
	stride        int
	gazeThreshold float64
	onTick        func(Tick)
	logger        logger.Logger
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithStride analyzes every n-th frame.
func WithStride(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.stride = n
		}
	}
}

// WithGazeThreshold sets the gaze deviation above which a tick is labeled
// DISTRACTED.
func WithGazeThreshold(t float64) Option {
	return func(p *Pipeline) {
		p.gazeThreshold = t
	}
}

// WithFeatures supplies interaction features for every tick.
func WithFeatures(f interaction.Features) Option {
	return func(p *Pipeline) {
		p.features = f
	}
}

// WithTickHandler is called synchronously after each tick is fused.
func WithTickHandler(fn func(Tick)) Option {
	return func(p *Pipeline) {
		p.onTick = fn
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline takes ownership of source; Run always closes it.
func NewPipeline(source FrameSource, analyzer FrameAnalyzer, epochs EpochGenerator, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:        source,
		analyzer:      analyzer,
		epochs:        epochs,
		features:      interaction.DefaultFeatures,
		stride:        DefaultStride,
		gazeThreshold: DefaultGazeDistractedThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("session")
	}
	return p
}

// Run consumes the source until it ends or ctx is canceled and returns the
// averaged report. A canceled run with at least one tick still reports.
func (p *Pipeline) Run(ctx context.Context) (res Result) {
	start := time.Now()
	defer func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn(ctx, "closing frame source", logger.Error(err))
		}
		res.Duration = time.Since(start)
	}()

	if !p.source.IsOpened() {
		return Result{Err: ErrSourceOpen}
	}

	frame := gocv.NewMat()
	defer frame.Close()

	var snaps []fusion.Snapshot
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "session aborted", logger.Any("panic", r), logger.Int("frames", res.Frames))
			res.Ticks = len(snaps)
			report, err := Aggregate(snaps)
			if err != nil {
				res.Err = fmt.Errorf("%v", r)
				return
			}
			// snapshots fused before the failure still make a report
			res.Report = report
			res.Partial = true
		}
	}()

	for p.source.IsOpened() {
		if ctx.Err() != nil {
			res.Partial = true
			break
		}
		if !p.source.Read(&frame) || frame.Empty() {
			break
		}
		res.Frames++
		metrics.RecordFrameRead()
		if res.Frames%p.stride != 0 {
			continue
		}

		tick := p.step(ctx, res.Frames, frame)
		snaps = append(snaps, tick.Snapshot)
		res.Blinks = tick.Vision.BlinkCount
		if p.onTick != nil {
			p.onTick(tick)
		}
	}

	res.Ticks = len(snaps)
	report, err := Aggregate(snaps)
	if err != nil {
		res.Err = err
		return res
	}
	res.Report = report
	return res
}

func (p *Pipeline) step(ctx context.Context, index int, frame gocv.Mat) Tick {
	start := time.Now()
	defer func() {
		metrics.RecordTickLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	v := p.analyzer.Analyze(ctx, frame)
	state := Label(v.GazeDeviation, p.gazeThreshold)
	metrics.RecordEpoch(string(state))

	powers := p.epochs.GenerateEpoch(state, &eeg.Modifiers{MouseJerk: p.features.JerkAvg})
	return Tick{
		Frame:    index,
		State:    state,
		Vision:   v,
		EEG:      powers,
		Snapshot: fusion.Compute(powers, p.features, v),
	}
}

// Label maps gaze deviation to the attentional state fed to the synthesizer.
func Label(gazeDeviation, threshold float64) eeg.State {
	if gazeDeviation > threshold {
		return eeg.StateDistracted
	}
	return eeg.StateFocused
}
