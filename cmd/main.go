package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/neurobloom/internal/adapters/cascade"
	"github.com/okian/neurobloom/internal/adapters/http/api"
	"github.com/okian/neurobloom/internal/adapters/http/stream"
	"github.com/okian/neurobloom/internal/adapters/http/swagger"
	app "github.com/okian/neurobloom/internal/app"
	"github.com/okian/neurobloom/internal/config"
	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants. WriteTimeout stays zero so tick streams
// outlive a single request window.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "neurobloom exited", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service and serves HTTP until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	detectors, err := cascade.LoadPair(cfg.FaceCascadePath, cfg.EyeCascadePath)
	if err != nil {
		return fmt.Errorf("load cascades: %w", err)
	}
	defer func() {
		if err := detectors.Close(); err != nil {
			log.Warn(ctx, "closing cascades", logger.Error(err))
		}
	}()

	runner, err := newRunner(cfg, detectors)
	if err != nil {
		return err
	}

	svc, hub := newService(cfg, runner, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, hub),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newRunner builds the per-session analyzer from configuration.
func newRunner(cfg *config.Config, detectors *cascade.Pair) (*app.SessionRunner, error) {
	opts, err := app.RunnerOptions(cfg)
	if err != nil {
		return nil, err
	}
	return app.NewSessionRunner(detectors.Face, detectors.Eye, opts...), nil
}

// newService builds the service and the tick stream hub that publishes its progress.
func newService(cfg *config.Config, analyzer *app.SessionRunner, log logger.Logger) (*app.Service, *stream.Hub) {
	hub := stream.NewHub(
		stream.WithBuffer(cfg.StreamBuffer),
		stream.WithAllowedOrigins(cfg.AllowedOrigins()),
	)
	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithReportStoreSize(cfg.ReportStoreSize),
		app.WithMatchedDwell(cfg.MatchedDwell),
		app.WithPredictorLatencyRange(
			time.Duration(cfg.PredictorLatencyMinMS)*time.Millisecond,
			time.Duration(cfg.PredictorLatencyMaxMS)*time.Millisecond,
		),
		app.WithAnalyzer(analyzer),
		app.WithPublisher(hub),
	)
	stream.WithRecords(svc)(hub)
	return svc, hub
}

// newMux registers every HTTP surface on a fresh mux, behind CORS when
// origins are configured.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service, hub *stream.Hub) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithMaxLimit(cfg.MaxRecentLimit),
		api.WithLocalVideoDir(cfg.LocalVideoDir),
	).Register(ctx, mux)
	hub.Register(ctx, mux)

	origins := cfg.AllowedOrigins()
	if len(origins) == 0 {
		return mux
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(mux)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes queue and store gauges from GetStats.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if sessions, ok := stats["sessions"].(int); ok {
		metrics.UpdateReportStoreSize(sessions)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
