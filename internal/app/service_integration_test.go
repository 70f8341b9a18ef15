package service_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/okian/neurobloom/internal/adapters/mq/worker"
	service "github.com/okian/neurobloom/internal/app"
	"github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/internal/domain/session"
	"github.com/okian/neurobloom/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
	"gocv.io/x/gocv"
)

// noFaces never detects anything, so every tick is FOCUSED with zero vision.
type noFaces struct{}

func (noFaces) Detect(gocv.Mat) []image.Rectangle { return nil }

// localFetcher resolves every source in place and fails on "missing".
type localFetcher struct {
	mu       sync.Mutex
	cleanups int
}

func (f *localFetcher) Fetch(_ context.Context, src string) (string, func(), error) {
	if src == "missing" {
		return "", func() {}, errors.New("404")
	}
	return src, func() {
		f.mu.Lock()
		f.cleanups++
		f.mu.Unlock()
	}, nil
}

func (f *localFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups
}

// frameSource yields n small color frames.
type frameSource struct {
	n       int
	cleanup func()
	proto   gocv.Mat
}

func openFrames(n int) service.Opener {
	return func(_ string, cleanup func()) session.FrameSource {
		return &frameSource{n: n, cleanup: cleanup, proto: gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)}
	}
}

func (s *frameSource) IsOpened() bool { return s.n >= 0 }

func (s *frameSource) Read(m *gocv.Mat) bool {
	if s.n <= 0 {
		return false
	}
	s.n--
	s.proto.CopyTo(m)
	return true
}

func (s *frameSource) Close() error {
	s.n = -1
	s.cleanup()
	return s.proto.Close()
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []worker.Message
}

func (p *capturePublisher) Publish(_ string, msg worker.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *capturePublisher) kinds() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]int{}
	for _, m := range p.msgs {
		out[m.Kind]++
	}
	return out
}

func waitTerminal(svc *service.Service, id string) model.Record {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := svc.Report(context.Background(), id)
		if err == nil && rec.Status.Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := svc.Report(context.Background(), id)
	return rec
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service running sessions through the full pipeline", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		fetcher := &localFetcher{}
		pub := &capturePublisher{}
		runner := service.NewSessionRunner(noFaces{}, noFaces{},
			service.WithFetcher(fetcher),
			service.WithOpener(openFrames(9)),
			service.WithSeed(7),
		)
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(16),
			service.WithAnalyzer(runner),
			service.WithPublisher(pub),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a session completes", func() {
			_, err := svc.Submit(ctx, types.SubmitRequest{SessionID: "s-ok", VideoURL: "clip.mp4"})
			So(err, ShouldBeNil)
			rec := waitTerminal(svc, "s-ok")

			Convey("Then the record carries the averaged report and predictions", func() {
				So(rec.Status, ShouldEqual, model.StatusCompleted)
				So(rec.Frames, ShouldEqual, 9)
				So(rec.Ticks, ShouldEqual, 3)
				So(rec.Report, ShouldNotBeNil)
				So(rec.Report.HeadStability, ShouldEqual, 100)
				So(rec.Report.LookawayFrequency, ShouldEqual, 0)
				So(rec.Report.FocusRatio, ShouldBeBetweenOrEqual, 0, 1)
				So(len(rec.Predictions), ShouldEqual, 2)
			})

			Convey("And ticks then the report were streamed", func() {
				So(pub.kinds()[worker.KindTick], ShouldEqual, 3)
				So(pub.kinds()[worker.KindReport], ShouldEqual, 1)
			})

			Convey("And the fetched file was cleaned up", func() {
				So(fetcher.count(), ShouldEqual, 1)
			})

			Convey("And it is listed among recent sessions", func() {
				recent, err := svc.Recent(ctx, 10)
				So(err, ShouldBeNil)
				So(recent, ShouldNotBeEmpty)
				So(recent[0].SessionID, ShouldEqual, "s-ok")
				So(recent[0].Ticks, ShouldEqual, 3)
			})
		})

		Convey("When the video cannot be fetched", func() {
			_, err := svc.Submit(ctx, types.SubmitRequest{SessionID: "s-missing", VideoURL: "missing"})
			So(err, ShouldBeNil)
			rec := waitTerminal(svc, "s-missing")

			Convey("Then the session fails with the open error", func() {
				So(rec.Status, ShouldEqual, model.StatusFailed)
				So(rec.Metrics(), ShouldResemble, map[string]any{"error": "Could not open video file"})
			})
		})

		Convey("When the stats are read", func() {
			stats := svc.GetStats()

			Convey("Then the running components are reported", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["queueLength"], ShouldEqual, 0)
			})
		})
	})
}

func TestSessionRunner_TooShort(t *testing.T) {
	Convey("Given a runner over a two-frame video", t, func() {
		runner := service.NewSessionRunner(noFaces{}, noFaces{},
			service.WithFetcher(&localFetcher{}),
			service.WithOpener(openFrames(2)),
		)

		Convey("When it runs", func() {
			res := runner.Analyze(context.Background(), model.Job{SessionID: "short", Source: "a.mp4"}, nil)

			Convey("Then no frame reaches the stride", func() {
				So(errors.Is(res.Err, session.ErrNoData), ShouldBeTrue)
				So(res.Frames, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a runner without detectors", t, func() {
		runner := service.NewSessionRunner(nil, nil, service.WithFetcher(&localFetcher{}), service.WithOpener(openFrames(3)))

		Convey("Then analysis fails before decoding", func() {
			res := runner.Analyze(context.Background(), model.Job{SessionID: "x", Source: "a.mp4"}, nil)
			So(res.OK(), ShouldBeFalse)
		})
	})
}
