// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jobqueue "github.com/okian/neurobloom/internal/adapters/mq/queue"
	"github.com/okian/neurobloom/internal/adapters/mq/worker"
	"github.com/okian/neurobloom/internal/adapters/repository"
	"github.com/okian/neurobloom/internal/domain/assessment"
	"github.com/okian/neurobloom/internal/domain/dedupe"
	"github.com/okian/neurobloom/internal/domain/fusion"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/internal/domain/types"
	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"
)

const queueFullMessage = "queue full"

// Service implements the API dependencies for session analysis.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *repository.MemoryStore
	deduper    dedupe.Deduper
	queue      *jobqueue.InMemoryQueue
	pool       *worker.Pool
	registry   *assessment.Registry
	analyzer   worker.Analyzer
	publisher  worker.Publisher
	featurizer *interaction.Featurizer

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	reportStoreSize int
	matchedDwell    bool
	predictMin      time.Duration
	predictMax      time.Duration

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of session workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending sessions.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the session ID deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithReportStoreSize caps retained session records.
func WithReportStoreSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.reportStoreSize = size
		}
	}
}

// WithMatchedDwell selects press/release matching by key for dwell times.
func WithMatchedDwell(enabled bool) Option {
	return func(s *Service) {
		s.matchedDwell = enabled
	}
}

// WithPredictorLatencyRange simulates external model latency for the
// default predictors. Ignored when WithRegistry is used.
func WithPredictorLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Service) {
		s.predictMin, s.predictMax = minLatency, maxLatency
	}
}

// WithAnalyzer sets the per-session analyzer run by workers.
func WithAnalyzer(a worker.Analyzer) Option {
	return func(s *Service) {
		s.analyzer = a
	}
}

// WithPublisher streams ticks and reports to live subscribers.
func WithPublisher(p worker.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithRegistry sets the predictors run on finished reports.
func WithRegistry(r *assessment.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       1024,
		dedupeSize:      10_000,
		reportStoreSize: 10_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.registry == nil {
		s.registry = defaultRegistry(s.predictMin, s.predictMax)
	}
	s.featurizer = interaction.New(interaction.WithMatchedDwell(s.matchedDwell))
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.analyzer == nil {
		return ErrNoAnalyzer
	}

	s.logger.Info(ctx, "starting session service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.store = repository.NewMemoryStore(runCtx, repository.WithMaxRecords(s.reportStoreSize))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))

	workerOpts := []worker.Option{worker.WithAssessor(s.registry)}
	if s.publisher != nil {
		workerOpts = append(workerOpts, worker.WithPublisher(s.publisher))
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, s.analyzer, s.store, workerOpts...)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "session service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Any("predictors", s.registry.Names()),
	)
	return nil
}

// Stop closes the queue, lets running sessions finish within the pool's
// shutdown timeout, then cancels whatever is left.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping session service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "workers did not stop in time", logger.Error(err))
	}
	s.cancel()
	_ = s.store.Close()

	s.started = false
	s.logger.Info(ctx, "session service stopped")
}

// Submit queues a session for analysis. A session ID seen before is
// acknowledged as a duplicate without running again.
func (s *Service) Submit(ctx context.Context, req types.SubmitRequest) (types.SubmitResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return types.SubmitResponse{}, ErrNotStarted
	}

	source := strings.TrimSpace(req.VideoURL)
	if source == "" {
		return types.SubmitResponse{}, fmt.Errorf("%w: missing video_url", ErrInvalidRequest)
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = uuid.NewString()
	}

	job := model.Job{SessionID: id, Source: source, SubmittedAt: time.Now()}
	if req.Interaction != nil {
		if err := req.Interaction.Validate(); err != nil {
			return types.SubmitResponse{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		features := s.featurizer.Process(*req.Interaction)
		job.Features = &features
	}

	if s.deduper.SeenAndRecord(ctx, id) {
		metrics.RecordSessionDuplicate()
		status := model.StatusQueued
		if rec, err := s.store.Get(ctx, id); err == nil {
			status = rec.Status
		}
		return types.SubmitResponse{SessionID: id, Status: string(status), Duplicate: true}, nil
	}

	queued := model.Record{SessionID: id, Status: model.StatusQueued, SubmittedAt: job.SubmittedAt}
	if err := s.store.Put(ctx, queued); err != nil {
		s.deduper.Unrecord(ctx, id)
		return types.SubmitResponse{}, err
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, id)
		queued.Status = model.StatusFailed
		queued.Error = queueFullMessage
		queued.CompletedAt = time.Now()
		_ = s.store.Put(ctx, queued)
		s.logger.Warn(ctx, "session rejected", logger.SessionID(id), logger.Error(err))
		return types.SubmitResponse{}, err
	}

	metrics.RecordSessionSubmitted()
	s.logger.Debug(ctx, "session queued", logger.SessionID(id), logger.String("source", source))
	return types.SubmitResponse{SessionID: id, Status: string(model.StatusQueued)}, nil
}

// Report returns the stored record for a session.
func (s *Service) Report(ctx context.Context, id string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return model.Record{}, ErrNotStarted
	}
	return s.store.Get(ctx, id)
}

// Recent lists up to n sessions, newest submission first.
func (s *Service) Recent(ctx context.Context, n int) ([]types.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	recs, err := s.store.Recent(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.SessionSummary, len(recs))
	for i, r := range recs {
		out[i] = types.SessionSummary{
			SessionID:   r.SessionID,
			Status:      string(r.Status),
			Ticks:       r.Ticks,
			Partial:     r.Partial,
			CompletedAt: r.CompletedAt,
		}
	}
	return out, nil
}

// Features extracts interaction features from one event batch.
func (s *Service) Features(_ context.Context, batch interaction.Batch) (interaction.Features, error) {
	if err := batch.Validate(); err != nil {
		return interaction.Features{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return s.featurizer.Process(batch), nil
}

// Fuse computes one snapshot from caller-supplied inputs.
func (s *Service) Fuse(_ context.Context, req types.FuseRequest) fusion.Snapshot {
	features := interaction.DefaultFeatures
	if req.Interaction != nil {
		features = *req.Interaction
	}
	return fusion.Compute(req.EEG, features, req.Vision)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"reportStoreSize": s.reportStoreSize,
		"predictors":      s.registry.Names(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		sessions := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["sessions"] = sessions
		stats["seenSessions"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateReportStoreSize(sessions)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

func defaultRegistry(minLatency, maxLatency time.Duration) *assessment.Registry {
	if maxLatency <= 0 {
		return assessment.DefaultRegistry()
	}
	latency := assessment.WithLatencyRange(minLatency, maxLatency)
	r, _ := assessment.NewRegistry( //nolint:errcheck // names are distinct
		assessment.NewAttentionPredictor(latency),
		assessment.NewMotorPredictor(latency),
	)
	return r
}
