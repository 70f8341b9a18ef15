// Package worker runs queued session analyses and records their outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/neurobloom/internal/domain/assessment"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/internal/domain/session"
	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"
)

// Default worker configuration constants.
const (
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
	failureReasonSource   = "source"
	failureReasonNoData   = "no_data"
	failureReasonPanic    = "aborted"
)

// Message kinds sent to a Publisher.
const (
	KindTick   = "tick"
	KindReport = "report"
)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Analyzer runs one session end to end. onTick may be nil.
type Analyzer interface {
	Analyze(ctx context.Context, job model.Job, onTick func(session.Tick)) session.Result
}

// Recorder persists session records.
type Recorder interface {
	Put(ctx context.Context, rec model.Record) error
}

// Assessor produces predictions from a finished report.
type Assessor interface {
	PredictAll(ctx context.Context, v assessment.FeatureVector) ([]assessment.Prediction, error)
}

// Publisher fans session progress out to live subscribers.
type Publisher interface {
	Publish(sessionID string, msg Message)
}

// Message is one streamed update.
type Message struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	Tick      *session.Tick  `json:"tick,omitempty"`
	Report    map[string]any `json:"report,omitempty"`
	Status    model.Status   `json:"status,omitempty"`
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// SessionWorker implements Worker for session jobs.
type SessionWorker struct {
	queue     Queue
	analyzer  Analyzer
	recorder  Recorder
	assessor  Assessor
	publisher Publisher
	name      string

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewSessionWorker creates a new worker with configuration options.
func NewSessionWorker(queue Queue, analyzer Analyzer, recorder Recorder, opts ...Option) *SessionWorker {
	w := &SessionWorker{
		queue:    queue,
		analyzer: analyzer,
		recorder: recorder,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *SessionWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "error processing session", logger.SessionID(job.SessionID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *SessionWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *SessionWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// process runs one job and records its terminal state.
func (w *SessionWorker) process(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	idle := metrics.WorkerBusy()
	defer idle()

	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	log := w.logger.With(logger.SessionID(job.SessionID))
	rec := model.Record{
		SessionID:   job.SessionID,
		Status:      model.StatusRunning,
		SubmittedAt: job.SubmittedAt,
	}
	if err := w.recorder.Put(ctx, rec); err != nil {
		return fmt.Errorf("record running state: %w", err)
	}
	log.Info(ctx, "session started", logger.String("source", job.Source))

	res := w.analyzer.Analyze(ctx, job, func(t session.Tick) {
		if w.publisher != nil {
			tick := t
			w.publisher.Publish(job.SessionID, Message{Kind: KindTick, SessionID: job.SessionID, Tick: &tick})
		}
	})

	rec.Frames, rec.Ticks, rec.Partial = res.Frames, res.Ticks, res.Partial
	rec.CompletedAt = time.Now()

	if res.OK() {
		report := res.Report
		rec.Status = model.StatusCompleted
		rec.Report = &report
		rec.Predictions = w.predict(ctx, log, job, res)
		metrics.RecordSessionCompleted(float64(res.Duration.Milliseconds()), res.Ticks)
		log.Info(ctx, "session completed",
			logger.Int("frames", res.Frames),
			logger.Int("ticks", res.Ticks),
			logger.Bool("partial", res.Partial),
			logger.Duration("elapsed", res.Duration),
		)
	} else {
		rec.Status = model.StatusFailed
		rec.Error = session.ErrorMessage(res.Err)
		metrics.RecordSessionFailed(failureReason(res.Err))
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", failureReason(res.Err))
		log.Warn(ctx, "session failed", logger.Error(res.Err), logger.Int("frames", res.Frames))
	}

	// Store before publishing so a subscriber that finds no report in the
	// stream finds it in the store.
	putErr := w.recorder.Put(ctx, rec)
	if w.publisher != nil {
		w.publisher.Publish(job.SessionID, Message{
			Kind:      KindReport,
			SessionID: job.SessionID,
			Report:    rec.Metrics(),
			Status:    rec.Status,
		})
	}
	if putErr != nil {
		return fmt.Errorf("record final state: %w", putErr)
	}
	return nil
}

func (w *SessionWorker) predict(ctx context.Context, log logger.Logger, job model.Job, res session.Result) []assessment.Prediction { //nolint:gocritic // hugeParam: read-only
	if w.assessor == nil {
		return nil
	}
	features := interaction.DefaultFeatures
	if job.Features != nil {
		features = *job.Features
	}
	preds, err := w.assessor.PredictAll(ctx, assessment.NewFeatureVector(res.Report, features, res.Blinks))
	if err != nil {
		metrics.RecordErrorByComponent("worker", "assessment_error")
		log.Warn(ctx, "assessment failed", logger.Error(err))
		return nil
	}
	for _, p := range preds {
		metrics.RecordPrediction(p.Predictor, p.Label)
	}
	return preds
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, session.ErrSourceOpen):
		return failureReasonSource
	case errors.Is(err, session.ErrNoData):
		return failureReasonNoData
	default:
		return failureReasonPanic
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers []*SessionWorker
	queue   Queue

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one uses
// one worker per CPU.
func NewPool(workerCount int, queue Queue, analyzer Analyzer, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*SessionWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := make([]Option, 0, len(opts)+1)
		workerOpts = append(workerOpts, opts...)
		workerOpts = append(workerOpts, WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewSessionWorker(queue, analyzer, recorder, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stop signals every worker and waits briefly for each.
func (p *Pool) Stop() {
	for _, worker := range p.workers {
		worker.stop()
	}
	for _, worker := range p.workers {
		select {
		case <-worker.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue so no new jobs arrive, then waits for workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for _, worker := range p.workers {
		worker.stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
