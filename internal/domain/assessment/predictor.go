package assessment

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Default predictor configuration constants.
const (
	defaultRandomSeed     = 42
	defaultLabelThreshold = 0.5
	LabelElevated         = "elevated"
	LabelTypical          = "typical"
)

// Prediction is one predictor's opinion about a session.
type Prediction struct {
	Predictor   string  `json:"predictor"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Predictor is an opaque model that labels a feature vector.
type Predictor interface {
	Name() string
	// Predict labels v, honoring ctx for cancellation.
	Predict(ctx context.Context, v FeatureVector) (Prediction, error)
}

// LinearPredictor scores a weighted sum of named features through a logistic
// link. It can simulate model-serving latency.
type LinearPredictor struct {
	name      string
	weights   map[string]float64
	bias      float64
	threshold float64
	// Simulated latency range
	minLatency time.Duration
	maxLatency time.Duration
	rngMu      sync.Mutex
	rng        *rand.Rand
}

// Option applies a configuration option to the LinearPredictor.
type Option func(*LinearPredictor)

// WithLatencyRange sets the simulated latency range. A zero minimum is valid.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(p *LinearPredictor) {
		if minLatency >= 0 && maxLatency > minLatency {
			p.minLatency = minLatency
			p.maxLatency = maxLatency
		}
	}
}

// WithWeights replaces the feature weights. Zero weights are dropped.
func WithWeights(weights map[string]float64, bias float64) Option {
	return func(p *LinearPredictor) {
		p.weights = make(map[string]float64, len(weights))
		for name, w := range weights {
			if w != 0 {
				p.weights[name] = w
			}
		}
		p.bias = bias
	}
}

// WithThreshold sets the probability at or above which the label is elevated.
func WithThreshold(t float64) Option {
	return func(p *LinearPredictor) {
		if t > 0 && t < 1 {
			p.threshold = t
		}
	}
}

// NewLinearPredictor creates a predictor with no weights; it always returns
// the logistic of zero unless configured.
func NewLinearPredictor(name string, opts ...Option) *LinearPredictor {
	p := &LinearPredictor{
		name:      name,
		weights:   make(map[string]float64),
		threshold: defaultLabelThreshold,
		rng:       rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic latency jitter
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewAttentionPredictor flags attention-regulation risk from theta/beta,
// focus, hyperactivity and lookaway.
func NewAttentionPredictor(opts ...Option) *LinearPredictor {
	base := []Option{WithWeights(map[string]float64{
		"theta_beta_ratio":    1.5,
		"focus_ratio":         -4.0,
		"hyperactivity_index": 0.04,
		"lookaway_frequency":  0.25,
	}, -0.5)}
	return NewLinearPredictor("attention", append(base, opts...)...)
}

// NewMotorPredictor flags handwriting and motor-control risk from writing
// consistency, motor fatigue and pointer jerk.
func NewMotorPredictor(opts ...Option) *LinearPredictor {
	base := []Option{WithWeights(map[string]float64{
		"writing_consistency_score": -5.0,
		"motor_fatigue_rate":        1.0,
		FeatureJerkAvg:              2.0,
	}, 2.5)}
	return NewLinearPredictor("motor", append(base, opts...)...)
}

// Name returns the registry key.
func (p *LinearPredictor) Name() string { return p.name }

// Predict computes the label for v.
func (p *LinearPredictor) Predict(ctx context.Context, v FeatureVector) (Prediction, error) {
	if err := v.Validate(); err != nil {
		return Prediction{}, err
	}

	if p.maxLatency > 0 {
		p.rngMu.Lock()
		latency := p.minLatency + time.Duration(p.rng.Int63n(int64(p.maxLatency-p.minLatency)))
		p.rngMu.Unlock()
		select {
		case <-ctx.Done():
			return Prediction{}, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(latency):
		}
	} else if err := ctx.Err(); err != nil {
		return Prediction{}, fmt.Errorf("context cancelled: %w", err)
	}

	z := p.bias
	for _, name := range p.features() {
		x, err := v.Lookup(name)
		if err != nil {
			return Prediction{}, fmt.Errorf("predictor %s: %w", p.name, err)
		}
		z += p.weights[name] * x
	}
	prob := 1 / (1 + math.Exp(-z))

	label := LabelTypical
	if prob >= p.threshold {
		label = LabelElevated
	}
	return Prediction{Predictor: p.name, Label: label, Probability: math.Round(prob*1000) / 1000}, nil
}

// features returns weight names in a stable order so sums are reproducible.
func (p *LinearPredictor) features() []string {
	names := make([]string, 0, len(p.weights))
	for name := range p.weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
