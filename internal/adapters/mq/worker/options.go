package worker

import (
	"github.com/okian/neurobloom/pkg/logger"
)

// Option applies a configuration option to the SessionWorker.
type Option func(*SessionWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *SessionWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *SessionWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithPublisher streams ticks and final reports as sessions progress.
func WithPublisher(p Publisher) Option {
	return func(w *SessionWorker) {
		if p != nil {
			w.publisher = p
		}
	}
}

// WithAssessor attaches predictions to completed reports.
func WithAssessor(a Assessor) Option {
	return func(w *SessionWorker) {
		if a != nil {
			w.assessor = a
		}
	}
}
