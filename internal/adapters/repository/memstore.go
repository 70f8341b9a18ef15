package repository

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/pkg/metrics"
)

const (
	defaultMaxRecords            = 5000
	defaultMetricsUpdateInterval = 5 * time.Second
)

// MemoryStore is a bounded in-memory Store. When full, the oldest finished
// session is evicted; in-flight sessions are evicted only if nothing has
// finished.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*list.Element // value is *model.Record
	order *list.List               // front is newest submission

	maxRecords            int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryStore creates a store and starts its metrics updater, which runs
// until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]*list.Element),
		order:                 list.New(),
		maxRecords:            defaultMaxRecords,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Put inserts or replaces a record. Replacing keeps the original position.
func (s *MemoryStore) Put(_ context.Context, rec model.Record) error { //nolint:gocritic // hugeParam: records are stored by value
	if rec.SessionID == "" {
		return ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.byID[rec.SessionID]; ok {
		stored := rec
		el.Value = &stored
		return nil
	}
	if s.maxRecords > 0 && len(s.byID) >= s.maxRecords {
		s.evict()
	}
	stored := rec
	s.byID[rec.SessionID] = s.order.PushFront(&stored)
	return nil
}

// Get returns a copy of the record.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.byID[sessionID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Record{}, ErrNotFound
	}
	return *el.Value.(*model.Record), nil //nolint:forcetypeassert // only records are stored
}

// Recent lists up to n records, newest first.
func (s *MemoryStore) Recent(_ context.Context, n int) ([]model.Record, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, 0, min(n, len(s.byID)))
	for el := s.order.Front(); el != nil && len(out) < n; el = el.Next() {
		out = append(out, *el.Value.(*model.Record)) //nolint:forcetypeassert // only records are stored
	}
	return out, nil
}

// Count returns the number of records.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// evict must be called with s.mu held.
func (s *MemoryStore) evict() {
	victim := s.order.Back()
	for el := s.order.Back(); el != nil; el = el.Prev() {
		if el.Value.(*model.Record).Status.Terminal() { //nolint:forcetypeassert // only records are stored
			victim = el
			break
		}
	}
	if victim == nil {
		return
	}
	s.order.Remove(victim)
	delete(s.byID, victim.Value.(*model.Record).SessionID) //nolint:forcetypeassert // only records are stored
	metrics.RecordReportEviction()
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateReportStoreSize(s.Count(ctx))
			}
		}
	}()
}
