package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds predictors constructed once at startup and shared by
// handlers. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	predictors map[string]Predictor
}

// NewRegistry creates a registry with the given predictors.
func NewRegistry(predictors ...Predictor) (*Registry, error) {
	r := &Registry{predictors: make(map[string]Predictor)}
	for _, p := range predictors {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds the attention and motor predictors.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(NewAttentionPredictor(), NewMotorPredictor()) //nolint:errcheck // names are distinct
	return r
}

// Register adds p. Names must be unique.
func (r *Registry) Register(p Predictor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.predictors[p.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePredictor, p.Name())
	}
	r.predictors[p.Name()] = p
	return nil
}

// Get returns the predictor registered under name.
func (r *Registry) Get(name string) (Predictor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predictors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPredictor, name)
	}
	return p, nil
}

// Names lists registered predictors in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.predictors))
	for name := range r.predictors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PredictAll runs every predictor in name order. The first error stops the run.
func (r *Registry) PredictAll(ctx context.Context, v FeatureVector) ([]Prediction, error) {
	out := make([]Prediction, 0, len(r.Names()))
	for _, name := range r.Names() {
		p, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		pred, err := p.Predict(ctx, v)
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, nil
}
