// Package cascade provides Haar cascade face and eye detectors.
package cascade

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrLoad is returned when a cascade file cannot be parsed.
var ErrLoad = errors.New("cascade load failed")

// Detection parameters for the two stock cascades.
const (
	ScaleFactor      = 1.1
	FaceMinNeighbors = 4
	EyeMinNeighbors  = 5
)

// Detector wraps a CascadeClassifier. The classifier is not reentrant, so
// Detect serializes callers.
type Detector struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scale        float64
	minNeighbors int
	minSize      image.Point
}

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithScaleFactor sets the image pyramid step.
func WithScaleFactor(f float64) Option {
	return func(d *Detector) {
		if f > 1 {
			d.scale = f
		}
	}
}

// WithMinNeighbors sets how many overlapping hits a detection needs.
func WithMinNeighbors(n int) Option {
	return func(d *Detector) {
		if n >= 0 {
			d.minNeighbors = n
		}
	}
}

// WithMinSize drops detections smaller than size.
func WithMinSize(size image.Point) Option {
	return func(d *Detector) {
		d.minSize = size
	}
}

// Load reads a cascade XML file.
func Load(path string, opts ...Option) (*Detector, error) {
	d := &Detector{
		classifier:   gocv.NewCascadeClassifier(),
		scale:        ScaleFactor,
		minNeighbors: FaceMinNeighbors,
	}
	if !d.classifier.Load(path) {
		_ = d.classifier.Close()
		return nil, fmt.Errorf("%w: %s", ErrLoad, path)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// LoadFace loads a frontal face cascade with face parameters.
func LoadFace(path string) (*Detector, error) {
	return Load(path, WithMinNeighbors(FaceMinNeighbors))
}

// LoadEye loads an eye cascade with eye parameters.
func LoadEye(path string) (*Detector, error) {
	return Load(path, WithMinNeighbors(EyeMinNeighbors))
}

// Detect returns detections in gray's coordinates.
func (d *Detector) Detect(gray gocv.Mat) []image.Rectangle {
	if gray.Empty() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.DetectMultiScaleWithParams(gray, d.scale, d.minNeighbors, 0, d.minSize, image.Point{})
}

// Close releases the classifier.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

// Pair holds the face and eye detectors needed by a frame analyzer.
type Pair struct {
	Face *Detector
	Eye  *Detector
}

// LoadPair loads both cascades, closing the first if the second fails.
func LoadPair(facePath, eyePath string) (*Pair, error) {
	face, err := LoadFace(facePath)
	if err != nil {
		return nil, err
	}
	eye, err := LoadEye(eyePath)
	if err != nil {
		_ = face.Close()
		return nil, err
	}
	return &Pair{Face: face, Eye: eye}, nil
}

// Close releases both detectors.
func (p *Pair) Close() error {
	return errors.Join(p.Face.Close(), p.Eye.Close())
}
