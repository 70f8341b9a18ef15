package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/neurobloom/internal/adapters/cascade"
	"github.com/okian/neurobloom/internal/adapters/http/api"
	app "github.com/okian/neurobloom/internal/app"
	"github.com/okian/neurobloom/internal/config"
	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("NEUROBLOOM_ADDR", ":8080")
			_ = os.Setenv("NEUROBLOOM_QUEUE_SIZE", "1000")
			_ = os.Setenv("NEUROBLOOM_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("NEUROBLOOM_ADDR")
				_ = os.Unsetenv("NEUROBLOOM_QUEUE_SIZE")
				_ = os.Unsetenv("NEUROBLOOM_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				svc := app.New()
				convey.So(svc, convey.ShouldNotBeNil)
			})

			convey.Convey("And service should refuse to start without an analyzer", func() {
				svc := app.New(app.WithWorkerCount(1))
				convey.So(svc.Start(context.Background()), convey.ShouldEqual, app.ErrNoAnalyzer)
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			convey.Convey("Then metrics manager should be creatable", func() {
				manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestNewRunner(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		cfg := config.New(context.Background())
		detectors := &cascade.Pair{}

		convey.Convey("When base powers are unset", func() {
			runner, err := newRunner(cfg, detectors)

			convey.Convey("Then a runner is built", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(runner, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When base powers name known bands", func() {
			cfg.BasePowers = map[string]float64{"delta": 30, "theta": 18}
			runner, err := newRunner(cfg, detectors)

			convey.Convey("Then a runner is built", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(runner, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When base powers name an unknown band", func() {
			cfg.BasePowers = map[string]float64{"kappa": 1}
			runner, err := newRunner(cfg, detectors)

			convey.Convey("Then configuration is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(runner, convey.ShouldBeNil)
			})
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a wired but unstarted service", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)

		runner, err := newRunner(cfg, &cascade.Pair{})
		convey.So(err, convey.ShouldBeNil)
		svc, hub := newService(cfg, runner, logger.Get())
		mux := newMux(ctx, cfg, svc, hub)

		convey.Convey("Then every surface is routed", func() {
			for _, path := range []string{"/healthz", "/stats", "/api-docs", "/openapi.yaml"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then the stream route rejects plain requests", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc/stream", http.NoBody))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("Then CORS headers are absent without origins", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
			req.Header.Set("Origin", "http://app.local")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			convey.So(rec.Header().Get("Access-Control-Allow-Origin"), convey.ShouldBeEmpty)
		})

		convey.Convey("Then configured origins get CORS headers", func() {
			cfg.CORSOrigins = "http://app.local, http://other.local"
			handler := newMux(ctx, cfg, svc, hub)
			req := httptest.NewRequest(http.MethodGet, "/stats", http.NoBody)
			req.Header.Set("Origin", "http://app.local")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Header().Get("Access-Control-Allow-Origin"), convey.ShouldEqual, "http://app.local")
		})

		convey.Convey("Then local video paths follow the configured directory", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions",
				strings.NewReader(`{"video_url":"/tmp/clip.mp4"}`)))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("Then the OpenAPI document is gzipped on request", func() {
			req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody)
			req.Header.Set("Accept-Encoding", "gzip")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			convey.So(rec.Header().Get("Content-Encoding"), convey.ShouldEqual, "gzip")
		})

		convey.Convey("Then the API server honors the configured limit", func() {
			server := api.NewServer(svc, svc, api.WithMaxLimit(cfg.MaxRecentLimit))
			convey.So(server, convey.ShouldNotBeNil)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := app.New()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("When updating metrics directly", func() {
			svc := app.New()
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the listen address is blank", func() {
			_ = os.Setenv("NEUROBLOOM_ADDR", "")
			defer func() { _ = os.Unsetenv("NEUROBLOOM_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When cascades are missing", func() {
			cfg := config.New(context.Background())
			cfg.FaceCascadePath = "does/not/exist.xml"

			convey.Convey("Then run fails before serving", func() {
				err := run(context.Background(), cfg, logger.Get())
				convey.So(errors.Is(err, cascade.ErrLoad), convey.ShouldBeTrue)
			})
		})
	})
}
