// Package metrics provides Prometheus metrics for the neurobloom analysis service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Session lifecycle
	sessionsSubmitted prometheus.Counter
	sessionsDuplicate prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsFailed    *prometheus.CounterVec
	sessionDuration   prometheus.Histogram
	sessionTicks      prometheus.Histogram

	// Per-tick pipeline
	framesRead         prometheus.Counter
	framesAnalyzed     prometheus.Counter
	facesMissing       prometheus.Counter
	blinksCommitted    prometheus.Counter
	gazeFallbacks      prometheus.Counter
	tickLatency        prometheus.Histogram
	epochsByState      *prometheus.CounterVec
	predictionsByLabel *prometheus.CounterVec

	// Video acquisition
	downloadDuration prometheus.Histogram
	downloadRetries  prometheus.Counter
	downloadFailures prometheus.Counter

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerBusy              prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Report store
	reportStoreSize      prometheus.Gauge
	reportStoreEvictions prometheus.Counter

	// Live stream
	streamClients  prometheus.Gauge
	streamDropped  prometheus.Counter
	streamMessages prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry keeps the default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "neurobloom",
		subsystem:        "analysis",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval returns how often sampled gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// RefreshInterval returns the global manager's gauge refresh interval.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.sessionsSubmitted = m.counter("sessions_submitted_total", "Analysis sessions accepted for processing")
	m.sessionsDuplicate = m.counter("sessions_duplicate_total", "Analysis submissions rejected as duplicates")
	m.sessionsCompleted = m.counter("sessions_completed_total", "Analysis sessions that produced a report")
	m.sessionsFailed = m.counterVec("sessions_failed_total", "Analysis sessions that ended with an error", "reason")
	m.sessionDuration = m.histogram("session_duration_milliseconds", "Wall time to analyze one session",
		[]float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000})
	m.sessionTicks = m.histogram("session_ticks", "Number of fused snapshots per session",
		[]float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000})

	m.framesRead = m.counter("frames_read_total", "Video frames decoded")
	m.framesAnalyzed = m.counter("frames_analyzed_total", "Sampled frames run through the vision analyzer")
	m.facesMissing = m.counter("faces_missing_total", "Analyzed frames with no detected face")
	m.blinksCommitted = m.counter("blinks_committed_total", "Blinks committed by the debounce state machine")
	m.gazeFallbacks = m.counter("gaze_fallbacks_total", "Gaze ratio computations that fell back to the neutral value")
	m.tickLatency = m.histogram("tick_latency_milliseconds", "Analyze+synthesize+fuse latency of one tick",
		[]float64{0.5, 1, 2, 5, 10, 20, 50, 100, 250})
	m.epochsByState = m.counterVec("epochs_total", "Synthetic EEG epochs generated by behavioral state", "state")
	m.predictionsByLabel = m.counterVec("predictions_total", "Assessment predictions by predictor and label", "predictor", "label")

	m.downloadDuration = m.histogram("video_download_duration_milliseconds", "Video download wall time", m.histogramBuckets)
	m.downloadRetries = m.counter("video_download_retries_total", "Video download retry attempts")
	m.downloadFailures = m.counter("video_download_failures_total", "Video downloads that failed after retries")

	m.queueSize = m.gauge("queue_size", "Current number of queued analysis jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts that were rejected")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Configured analysis workers")
	m.workerBusy = m.gauge("worker_busy_count", "Workers currently analyzing a session")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "End-to-end job latency inside a worker",
		[]float64{100, 500, 1000, 5000, 10000, 30000, 60000, 300000})
	m.workerErrors = m.counter("worker_errors_total", "Jobs that a worker could not complete")

	m.reportStoreSize = m.gauge("report_store_size", "Session records held in memory")
	m.reportStoreEvictions = m.counter("report_store_evictions_total", "Session records evicted to honor the store bound")

	m.streamClients = m.gauge("stream_clients", "Connected live tick stream clients")
	m.streamDropped = m.counter("stream_dropped_total", "Stream messages dropped for slow clients")
	m.streamMessages = m.counter("stream_messages_total", "Stream messages published")

	auto := promauto.With(m.registry)
	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total", "Errors by type", "error_type", "severity")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "error_latency_milliseconds",
		Help:      "Latency of operations that resulted in errors",
		Buckets:   m.histogramBuckets,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Session lifecycle.

// RecordSessionSubmitted increments accepted submissions.
func RecordSessionSubmitted() { globalManager.sessionsSubmitted.Inc() }

// RecordSessionDuplicate increments duplicate submissions.
func RecordSessionDuplicate() { globalManager.sessionsDuplicate.Inc() }

// RecordSessionCompleted records a finished session, its wall time and tick count.
func RecordSessionCompleted(durationMs float64, ticks int) {
	globalManager.sessionsCompleted.Inc()
	globalManager.sessionDuration.Observe(durationMs)
	globalManager.sessionTicks.Observe(float64(ticks))
}

// RecordSessionFailed records a failed session by reason.
func RecordSessionFailed(reason string) {
	globalManager.sessionsFailed.WithLabelValues(reason).Inc()
}

// Pipeline.

// RecordFrameRead counts one decoded frame.
func RecordFrameRead() { globalManager.framesRead.Inc() }

// RecordFrameAnalyzed counts one analyzed frame.
func RecordFrameAnalyzed() { globalManager.framesAnalyzed.Inc() }

// RecordFaceMissing counts an analyzed frame without a face.
func RecordFaceMissing() { globalManager.facesMissing.Inc() }

// RecordBlink counts one committed blink.
func RecordBlink() { globalManager.blinksCommitted.Inc() }

// RecordGazeFallback counts one neutral gaze substitution.
func RecordGazeFallback() { globalManager.gazeFallbacks.Inc() }

// RecordTickLatency records one tick's processing latency.
func RecordTickLatency(latencyMs float64) { globalManager.tickLatency.Observe(latencyMs) }

// RecordEpoch counts a synthetic epoch for state.
func RecordEpoch(state string) { globalManager.epochsByState.WithLabelValues(state).Inc() }

// RecordPrediction counts an assessment outcome.
func RecordPrediction(predictor, label string) {
	globalManager.predictionsByLabel.WithLabelValues(predictor, label).Inc()
}

// Video acquisition.

// RecordDownload records a successful download's duration.
func RecordDownload(durationMs float64) { globalManager.downloadDuration.Observe(durationMs) }

// RecordDownloadRetry counts one retry attempt.
func RecordDownloadRetry() { globalManager.downloadRetries.Inc() }

// RecordDownloadFailure counts a download that gave up.
func RecordDownloadFailure() { globalManager.downloadFailures.Inc() }

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// WorkerBusy marks one worker as busy until the returned func is called.
func WorkerBusy() func() {
	globalManager.workerBusy.Inc()
	return globalManager.workerBusy.Dec
}

// RecordWorkerProcessingLatency records one job's latency inside a worker.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// Report store.

// UpdateReportStoreSize sets the number of stored records.
func UpdateReportStoreSize(size int) { globalManager.reportStoreSize.Set(float64(size)) }

// RecordReportEviction counts one evicted record.
func RecordReportEviction() { globalManager.reportStoreEvictions.Inc() }

// Stream.

// UpdateStreamClients sets the connected stream client count.
func UpdateStreamClients(count int) { globalManager.streamClients.Set(float64(count)) }

// RecordStreamDropped counts a message dropped for a slow client.
func RecordStreamDropped() { globalManager.streamDropped.Inc() }

// RecordStreamMessage counts a published stream message.
func RecordStreamMessage() { globalManager.streamMessages.Inc() }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
