// Package vision turns webcam frames into head-yaw, gaze and blink metrics.
package vision

import (
	"context"
	"image"
	"math"

	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"
	"gocv.io/x/gocv"
)

const mirrorHorizontal = 1

// Metrics are the per-frame vision outputs. BlinkCount is cumulative for the
// session.
type Metrics struct {
	YawVelocity   float64 `json:"yaw_velocity"`
	GazeDeviation float64 `json:"gaze_deviation"`
	BlinkCount    int     `json:"blink_count"`
	FaceFound     bool    `json:"face_found"`
}

// Analyzer runs face and eye detection on frames and owns the session's
// blink state. It is not safe for concurrent use.
type Analyzer struct {
	faces  Detector
	eyes   Detector
	blink  *BlinkTracker
	logger logger.Logger
}

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithBlinkThreshold sets the closed-frame debounce threshold.
func WithBlinkThreshold(frames int) Option {
	return func(a *Analyzer) {
		a.blink = NewBlinkTracker(frames)
	}
}

// WithLogger sets a custom logger for the analyzer.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAnalyzer creates an analyzer with fresh blink state.
func NewAnalyzer(faces, eyes Detector, opts ...Option) (*Analyzer, error) {
	if faces == nil || eyes == nil {
		return nil, ErrNilDetector
	}
	a := &Analyzer{
		faces: faces,
		eyes:  eyes,
		blink: NewBlinkTracker(DefaultBlinkThreshold),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("vision")
	}
	return a, nil
}

// Analyze mirrors the frame, finds the largest face, updates blink state from
// eye visibility and measures yaw and gaze. A frame without a face counts as
// eyes closed.
func (a *Analyzer) Analyze(ctx context.Context, frame gocv.Mat) Metrics {
	metrics.RecordFrameAnalyzed()

	if frame.Empty() {
		a.observe(ctx, false)
		return Metrics{BlinkCount: a.blink.Count()}
	}

	mirrored := gocv.NewMat()
	defer mirrored.Close()
	gocv.Flip(frame, &mirrored, mirrorHorizontal)

	gray := gocv.NewMat()
	defer gray.Close()
	toGray(mirrored, &gray)

	bounds := image.Rect(0, 0, gray.Cols(), gray.Rows())
	face, ok := Largest(a.faces.Detect(gray))
	face = face.Intersect(bounds)
	if !ok || face.Empty() {
		metrics.RecordFaceMissing()
		a.observe(ctx, false)
		return Metrics{BlinkCount: a.blink.Count()}
	}

	m := Metrics{
		YawVelocity: yaw(face, gray.Cols()),
		FaceFound:   true,
	}

	roi := gray.Region(face)
	defer roi.Close()

	eyes := a.eyes.Detect(roi)
	a.observe(ctx, len(eyes) > 0)
	if len(eyes) > 0 {
		dev, fallbacks := gazeDeviation(roi, eyes)
		for i := 0; i < fallbacks; i++ {
			metrics.RecordGazeFallback()
		}
		m.GazeDeviation = dev
	}

	m.BlinkCount = a.blink.Count()
	return m
}

// Blinks exposes the session's blink tracker.
func (a *Analyzer) Blinks() *BlinkTracker { return a.blink }

func (a *Analyzer) observe(ctx context.Context, eyesVisible bool) {
	if a.blink.Observe(eyesVisible) {
		metrics.RecordBlink()
		a.logger.Debug(ctx, "blink committed", logger.Int("count", a.blink.Count()))
	}
}

// yaw is the face-center offset from the frame center as a percentage of
// half the frame width.
func yaw(face image.Rectangle, frameWidth int) float64 {
	if frameWidth <= 0 {
		return 0
	}
	half := float64(frameWidth) / 2
	center := float64(face.Min.X) + float64(face.Dx())/2
	return math.Abs(center-half) / half * 100
}
