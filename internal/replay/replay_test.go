package replay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/neurobloom/internal/domain/fusion"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func validReport() map[string]any {
	snap := fusion.Snapshot{
		EngagementScore:         0.4,
		FocusRatio:              0.8,
		ThetaBetaRatio:          1.2,
		HeadStability:           -12.5,
		WritingConsistencyScore: 0.9,
		BlinkVariability:        fusion.BlinkVariabilityPlaceholder,
		DistractionTimeSec:      12,
	}
	out := make(map[string]any, len(fusion.Names))
	for k, v := range snap.Map() {
		out[k] = v
	}
	return out
}

// fakeService answers like the session API. Every session reports running
// on its first poll; sessions whose interaction has no keys fail.
type fakeService struct {
	mu         sync.Mutex
	polls      map[string]int
	failing    map[string]bool
	badMetrics bool
}

func newFakeService() *fakeService {
	return &fakeService{polls: make(map[string]int), failing: make(map[string]bool)}
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var sub Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		_, seen := f.polls[sub.SessionID]
		f.polls[sub.SessionID] = 0
		f.failing[sub.SessionID] = sub.Interaction == nil || len(sub.Interaction.Keys) == 0
		f.mu.Unlock()

		status := http.StatusAccepted
		if seen {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(AckResponse{SessionID: sub.SessionID, Status: "queued", Duplicate: seen})
	})
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		n, ok := f.polls[id]
		f.polls[id] = n + 1
		failing := f.failing[id]
		bad := f.badMetrics
		f.mu.Unlock()

		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		rep := Report{SessionID: id, Status: "running"}
		if n > 0 {
			rep.Status = statusCompleted
			rep.Report = validReport()
			if bad {
				rep.Report[fusion.FocusRatio] = 1.5
			}
			if failing {
				rep.Status = statusFailed
				rep.Report = map[string]any{"error": "No data analyzed"}
			}
		}
		_ = json.NewEncoder(w).Encode(rep)
	})
	return mux
}

func testConfig(baseURL string, dir string) *Config {
	return &Config{
		BaseURL:      baseURL,
		VideoURL:     "/data/sample.mp4",
		Sessions:     6,
		Workers:      3,
		Timeout:      time.Second,
		PollInterval: 5 * time.Millisecond,
		Wait:         2 * time.Second,
		Seed:         7,
		OutputFile:   filepath.Join(dir, "out", "sessions.json"),
	}
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		gen := NewGenerator(42)

		Convey("When a batch is generated", func() {
			batch := gen.Batch()

			Convey("Then it is ordered and non-trivial", func() {
				So(batch.Validate(), ShouldBeNil)
				So(len(batch.Keys), ShouldBeGreaterThanOrEqualTo, 2*minKeystrokes)
				So(len(batch.Keys)%2, ShouldEqual, 0)
				So(len(batch.Pointer), ShouldEqual, pointerSamples)
			})

			Convey("Then it produces plausible features", func() {
				f := interaction.New().Process(batch)
				So(f.DwellTimeAvg, ShouldBeGreaterThanOrEqualTo, dwellMin)
				So(f.DwellTimeAvg, ShouldBeLessThanOrEqualTo, dwellMin+dwellRange)
				So(f.ErrorRate, ShouldBeBetweenOrEqual, 0, 1)
				So(f.IdleRatio, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When two generators share a seed", func() {
			a, b := NewGenerator(9).Batch(), NewGenerator(9).Batch()

			Convey("Then they produce identical batches", func() {
				So(a, ShouldResemble, b)
			})
		})
	})
}

func TestVerifyReport(t *testing.T) {
	Convey("Given report maps", t, func() {
		Convey("When the report is a full metric set within bounds", func() {
			So(VerifyReport(validReport()), ShouldBeNil)
		})

		Convey("When head stability is negative", func() {
			rep := validReport()
			rep[fusion.HeadStability] = -250.0
			So(VerifyReport(rep), ShouldBeNil)
		})

		Convey("When the report is a single error", func() {
			So(VerifyReport(map[string]any{"error": "Could not open video file"}), ShouldBeNil)
		})

		Convey("When an error report carries metrics", func() {
			rep := validReport()
			rep["error"] = "boom"
			So(errors.Is(VerifyReport(rep), ErrInvalidReport), ShouldBeTrue)
		})

		Convey("When the error is blank", func() {
			So(errors.Is(VerifyReport(map[string]any{"error": " "}), ErrInvalidReport), ShouldBeTrue)
		})

		Convey("When a field is missing", func() {
			rep := validReport()
			delete(rep, fusion.StressIndex)
			err := VerifyReport(rep)
			So(errors.Is(err, ErrInvalidReport), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "11 fields")
		})

		Convey("When a field is renamed", func() {
			rep := validReport()
			delete(rep, fusion.StressIndex)
			rep["stress"] = 0.1
			err := VerifyReport(rep)
			So(err.Error(), ShouldContainSubstring, "missing stress_index")
		})

		Convey("When a bounded field is out of range", func() {
			rep := validReport()
			rep[fusion.DistractionTimeSec] = 61.0
			err := VerifyReport(rep)
			So(err.Error(), ShouldContainSubstring, "distraction_time_sec=61")
		})

		Convey("When a field is not numeric", func() {
			rep := validReport()
			rep[fusion.FocusRatio] = "high"
			So(errors.Is(VerifyReport(rep), ErrInvalidReport), ShouldBeTrue)
		})

		Convey("When the report is empty", func() {
			So(errors.Is(VerifyReport(nil), ErrInvalidReport), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a fake session service", t, func() {
		fake := newFakeService()
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()
		dir := t.TempDir()
		cfg := testConfig(srv.URL, dir)

		Convey("When every report is valid", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then the run succeeds", func() {
				So(err, ShouldBeNil)
				So(stats.SessionsGenerated, ShouldEqual, 6)
				So(stats.SessionsAccepted, ShouldEqual, 6)
				So(stats.ReportsCompleted, ShouldEqual, 6)
				So(stats.ReportsPending, ShouldEqual, 0)
				So(stats.ReportsInvalid, ShouldEqual, 0)
			})

			Convey("Then the submissions are saved", func() {
				data, err := os.ReadFile(cfg.OutputFile)
				So(err, ShouldBeNil)
				var subs []Submission
				So(json.Unmarshal(data, &subs), ShouldBeNil)
				So(subs, ShouldHaveLength, 6)
				So(subs[0].VideoURL, ShouldEqual, "/data/sample.mp4")
				So(subs[0].Interaction, ShouldNotBeNil)
			})
		})

		Convey("When reports break their bounds", func() {
			fake.badMetrics = true
			stats, err := Run(context.Background(), cfg)

			Convey("Then verification fails", func() {
				So(errors.Is(err, ErrVerification), ShouldBeTrue)
				So(stats.ReportsInvalid, ShouldEqual, 6)
			})
		})
	})

	Convey("Given an unreachable service", t, func() {
		cfg := testConfig("http://127.0.0.1:1", t.TempDir())

		Convey("When a run starts", func() {
			_, err := Run(context.Background(), cfg)

			Convey("Then the health check fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "health check")
			})
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a fake session service", t, func() {
		fake := newFakeService()
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()
		client := NewClient(srv.URL, time.Second)
		ctx := context.Background()

		Convey("When the same session is submitted twice", func() {
			sub := Submission{SessionID: "s-1", VideoURL: "v.mp4"}
			first, err1 := client.Submit(ctx, sub)
			second, err2 := client.Submit(ctx, sub)

			Convey("Then the second is a duplicate", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldEqual, outcomeAccepted)
				So(second, ShouldEqual, outcomeDuplicate)
			})

			Convey("Then a session without keys fails with an error report", func() {
				rep := pollReport(ctx, &Config{PollInterval: time.Millisecond}, client, "s-1")
				So(rep.Status, ShouldEqual, statusFailed)
				So(rep.Report, ShouldResemble, map[string]any{"error": "No data analyzed"})
			})
		})

		Convey("When an unknown report is requested", func() {
			_, err := client.Report(ctx, "missing")

			Convey("Then the status is surfaced", func() {
				So(errors.Is(err, ErrUnexpectedStatus), ShouldBeTrue)
				So(strings.Contains(err.Error(), "404"), ShouldBeTrue)
			})
		})
	})
}
