package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/neurobloom/internal/adapters/mq/worker"
	"github.com/okian/neurobloom/internal/domain/assessment"
	"github.com/okian/neurobloom/internal/domain/fusion"
	model "github.com/okian/neurobloom/internal/domain/model"
	"github.com/okian/neurobloom/internal/domain/session"
	logging "github.com/okian/neurobloom/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

type mockQueue struct {
	jobs chan model.Job
}

func newMockQueue() *mockQueue { return &mockQueue{jobs: make(chan model.Job, 10)} }

func (q *mockQueue) Dequeue(context.Context) <-chan model.Job { return q.jobs }

func (q *mockQueue) Close() error {
	close(q.jobs)
	return nil
}

// mockAnalyzer emits one tick per session and returns a canned result.
type mockAnalyzer struct {
	results map[string]session.Result
}

func (a *mockAnalyzer) Analyze(_ context.Context, job model.Job, onTick func(session.Tick)) session.Result { //nolint:gocritic // test double
	res, ok := a.results[job.SessionID]
	if !ok {
		return session.Result{Err: session.ErrSourceOpen}
	}
	if onTick != nil && res.OK() {
		onTick(session.Tick{Frame: 3, Snapshot: res.Report})
	}
	return res
}

type mockRecorder struct {
	mu      sync.Mutex
	history map[string][]model.Record
	fail    error
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{history: make(map[string][]model.Record)}
}

func (r *mockRecorder) Put(_ context.Context, rec model.Record) error { //nolint:gocritic // test double
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.history[rec.SessionID] = append(r.history[rec.SessionID], rec)
	return nil
}

func (r *mockRecorder) last(id string) (model.Record, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.history[id]
	if len(h) == 0 {
		return model.Record{}, 0
	}
	return h[len(h)-1], len(h)
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []worker.Message

	// stored, when set, captures the recorded status at report time.
	stored         *mockRecorder
	statusAtReport model.Status
}

func (p *mockPublisher) Publish(id string, msg worker.Message) {
	var status model.Status
	if p.stored != nil && msg.Kind == worker.KindReport {
		r, _ := p.stored.last(id)
		status = r.Status
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	if status != "" {
		p.statusAtReport = status
	}
}

func (p *mockPublisher) reportStatus() model.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusAtReport
}

func (p *mockPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Kind
	}
	return out
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestSessionWorker(t *testing.T) {
	convey.Convey("Given a running session worker", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := newMockQueue()
		analyzer := &mockAnalyzer{results: map[string]session.Result{
			"good":  {Report: fusion.Snapshot{FocusRatio: 0.2, ThetaBetaRatio: 4, BlinkVariability: 0.5}, Frames: 9, Ticks: 3},
			"empty": {Err: session.ErrNoData, Frames: 2},
		}}
		rec := newMockRecorder()
		pub := &mockPublisher{stored: rec}

		w := worker.NewSessionWorker(q, analyzer, rec,
			worker.WithName("test"),
			worker.WithPublisher(pub),
			worker.WithAssessor(assessment.DefaultRegistry()),
		)
		go w.Run(ctx)

		convey.Convey("When a good session is processed", func() {
			q.jobs <- model.Job{SessionID: "good", SubmittedAt: time.Now()}

			ok := waitFor(func() bool {
				r, _ := rec.last("good")
				return r.Status.Terminal()
			})

			convey.Convey("Then it moves through running to completed with predictions", func() {
				convey.So(ok, convey.ShouldBeTrue)
				final, puts := rec.last("good")
				convey.So(puts, convey.ShouldEqual, 2)
				convey.So(rec.history["good"][0].Status, convey.ShouldEqual, model.StatusRunning)
				convey.So(final.Status, convey.ShouldEqual, model.StatusCompleted)
				convey.So(final.Report.FocusRatio, convey.ShouldEqual, 0.2)
				convey.So(final.Ticks, convey.ShouldEqual, 3)
				convey.So(len(final.Predictions), convey.ShouldEqual, 2)
				convey.So(final.Predictions[0].Label, convey.ShouldEqual, assessment.LabelElevated)
			})

			convey.Convey("And ticks then the report are published", func() {
				convey.So(pub.kinds(), convey.ShouldResemble, []string{worker.KindTick, worker.KindReport})
			})

			convey.Convey("And the completed record is stored before the report is published", func() {
				convey.So(waitFor(func() bool { return pub.reportStatus() != "" }), convey.ShouldBeTrue)
				convey.So(pub.reportStatus(), convey.ShouldEqual, model.StatusCompleted)
			})
		})

		convey.Convey("When a session has no analyzable frames", func() {
			q.jobs <- model.Job{SessionID: "empty"}

			ok := waitFor(func() bool {
				r, _ := rec.last("empty")
				return r.Status.Terminal()
			})

			convey.Convey("Then it is recorded as failed with the report error", func() {
				convey.So(ok, convey.ShouldBeTrue)
				final, _ := rec.last("empty")
				convey.So(final.Status, convey.ShouldEqual, model.StatusFailed)
				convey.So(final.Metrics(), convey.ShouldResemble, map[string]any{"error": "No data analyzed"})
				convey.So(final.Predictions, convey.ShouldBeNil)
			})
		})

		convey.Convey("When shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then it stops promptly", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestSessionWorker_RecorderFailure(t *testing.T) {
	convey.Convey("Given a recorder that rejects writes", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := newMockQueue()
		analyzer := &mockAnalyzer{results: map[string]session.Result{}}
		rec := newMockRecorder()
		rec.fail = errors.New("disk full")

		w := worker.NewSessionWorker(q, analyzer, rec)
		go w.Run(ctx)
		q.jobs <- model.Job{SessionID: "x"}
		q.jobs <- model.Job{SessionID: "y"}

		convey.Convey("Then the worker keeps consuming", func() {
			convey.So(waitFor(func() bool { return len(q.jobs) == 0 }), convey.ShouldBeTrue)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := newMockQueue()
		results := map[string]session.Result{}
		for _, id := range []string{"a", "b", "c", "d"} {
			results[id] = session.Result{Report: fusion.Snapshot{FocusRatio: 1}, Ticks: 1}
		}
		rec := newMockRecorder()
		pool := worker.NewPool(3, q, &mockAnalyzer{results: results}, rec)
		pool.Start(ctx)

		for id := range results {
			q.jobs <- model.Job{SessionID: id}
		}

		convey.Convey("Then every job completes and shutdown drains cleanly", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 3)
			convey.So(waitFor(func() bool {
				for id := range results {
					if r, _ := rec.last(id); r.Status != model.StatusCompleted {
						return false
					}
				}
				return true
			}), convey.ShouldBeTrue)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}
