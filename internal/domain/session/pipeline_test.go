package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/neurobloom/internal/domain/eeg"
	"github.com/okian/neurobloom/internal/domain/fusion"
	"github.com/okian/neurobloom/internal/domain/interaction"
	"github.com/okian/neurobloom/internal/domain/session"
	"github.com/okian/neurobloom/internal/domain/vision"
	"github.com/okian/neurobloom/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"gocv.io/x/gocv"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeSource struct {
	opened bool
	frames int
	reads  int
	closed int
	proto  gocv.Mat
}

func newFakeSource(frames int) *fakeSource {
	return &fakeSource{
		opened: true,
		frames: frames,
		proto:  gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3),
	}
}

func (s *fakeSource) IsOpened() bool { return s.opened && s.closed == 0 }

func (s *fakeSource) Read(m *gocv.Mat) bool {
	if s.reads >= s.frames {
		return false
	}
	s.reads++
	s.proto.CopyTo(m)
	return true
}

func (s *fakeSource) Close() error {
	s.closed++
	return s.proto.Close()
}

// gazeScript returns one gaze deviation per call, cycling.
type gazeScript struct {
	gaze    []float64
	calls   int
	panic   bool
	panicAt int // 1-based call that panics; 0 never
}

func (g *gazeScript) Analyze(context.Context, gocv.Mat) vision.Metrics {
	if g.panic || (g.panicAt > 0 && g.calls+1 == g.panicAt) {
		panic("decoder exploded")
	}
	v := g.gaze[g.calls%len(g.gaze)]
	g.calls++
	return vision.Metrics{GazeDeviation: v, YawVelocity: 10 * v, FaceFound: true}
}

// stateRecorder wraps a synthesizer and remembers the labels it was given.
type stateRecorder struct {
	*eeg.Synthesizer
	states []eeg.State
	jerks  []float64
}

func (r *stateRecorder) GenerateEpoch(s eeg.State, m *eeg.Modifiers) eeg.BandPowers {
	r.states = append(r.states, s)
	if m != nil {
		r.jerks = append(r.jerks, m.MouseJerk)
	}
	return r.Synthesizer.GenerateEpoch(s, m)
}

func newRecorder() *stateRecorder {
	return &stateRecorder{Synthesizer: eeg.NewSynthesizer(eeg.WithSeed(1))}
}

func TestPipeline_SourceNotOpened(t *testing.T) {
	Convey("Given a source that failed to open", t, func() {
		src := newFakeSource(9)
		src.opened = false
		analyzer := &gazeScript{gaze: []float64{0}}

		res := session.NewPipeline(src, analyzer, newRecorder()).Run(context.Background())

		Convey("Then the report is exactly the open error", func() {
			So(res.Map(), ShouldResemble, map[string]any{"error": "Could not open video file"})
			So(errors.Is(res.Err, session.ErrSourceOpen), ShouldBeTrue)
			So(res.Ticks, ShouldEqual, 0)
			So(analyzer.calls, ShouldEqual, 0)
			So(src.closed, ShouldEqual, 1)
		})
	})
}

func TestPipeline_Run(t *testing.T) {
	Convey("Given a 10-frame source and the default stride", t, func() {
		src := newFakeSource(10)
		analyzer := &gazeScript{gaze: []float64{0.2, 0.8, 0.5}}
		rec := newRecorder()

		var ticks []session.Tick
		p := session.NewPipeline(src, analyzer, rec,
			session.WithTickHandler(func(tk session.Tick) { ticks = append(ticks, tk) }),
		)
		res := p.Run(context.Background())

		Convey("Then every third frame is analyzed", func() {
			So(res.OK(), ShouldBeTrue)
			So(res.Frames, ShouldEqual, 10)
			So(res.Ticks, ShouldEqual, 3)
			So(len(ticks), ShouldEqual, 3)
			So(ticks[0].Frame, ShouldEqual, 3)
			So(ticks[2].Frame, ShouldEqual, 9)
			So(src.closed, ShouldEqual, 1)
		})

		Convey("Then gaze above 0.5 labels the tick DISTRACTED", func() {
			So(rec.states, ShouldResemble, []eeg.State{eeg.StateFocused, eeg.StateDistracted, eeg.StateFocused})
			So(rec.jerks, ShouldResemble, []float64{0.2, 0.2, 0.2})
		})

		Convey("Then each aggregated field is the mean of the tick snapshots", func() {
			got := res.Report.Values()
			for i := range fusion.Names {
				sum := 0.0
				for _, tk := range ticks {
					sum += tk.Snapshot.Values()[i]
				}
				So(got[i], ShouldAlmostEqual, sum/float64(len(ticks)), 0.005+1e-9)
			}
		})

		Convey("Then the report renders all twelve metrics", func() {
			m := res.Map()
			So(len(m), ShouldEqual, 12)
			So(m, ShouldNotContainKey, "error")

			data, err := json.Marshal(res)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"blink_variability":0.5`)
		})
	})

	Convey("Given a source shorter than the stride", t, func() {
		src := newFakeSource(2)
		res := session.NewPipeline(src, &gazeScript{gaze: []float64{0}}, newRecorder()).Run(context.Background())

		Convey("Then there is no data to report", func() {
			So(errors.Is(res.Err, session.ErrNoData), ShouldBeTrue)
			So(res.Map(), ShouldResemble, map[string]any{"error": "No data analyzed"})
			So(src.closed, ShouldEqual, 1)
		})
	})

	Convey("Given custom stride, threshold and features", t, func() {
		src := newFakeSource(4)
		rec := newRecorder()
		features := interaction.Features{PointerFeatures: interaction.PointerFeatures{JerkAvg: 3}}

		res := session.NewPipeline(src, &gazeScript{gaze: []float64{0.3}}, rec,
			session.WithStride(1),
			session.WithGazeThreshold(0.25),
			session.WithFeatures(features),
		).Run(context.Background())

		Convey("Then every frame is fused with those settings", func() {
			So(res.Ticks, ShouldEqual, 4)
			So(rec.states[0], ShouldEqual, eeg.StateDistracted)
			So(rec.jerks[0], ShouldEqual, 3)
			So(res.Report.HyperactivityIndex, ShouldEqual, 33)
		})
	})
}

func TestPipeline_Cancellation(t *testing.T) {
	Convey("Given a session canceled after the first tick", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		src := newFakeSource(30)
		res := session.NewPipeline(src, &gazeScript{gaze: []float64{0.1}}, newRecorder(),
			session.WithTickHandler(func(session.Tick) { cancel() }),
		).Run(ctx)

		Convey("Then the partial snapshot list is still aggregated", func() {
			So(res.OK(), ShouldBeTrue)
			So(res.Partial, ShouldBeTrue)
			So(res.Ticks, ShouldEqual, 1)
			So(res.Frames, ShouldEqual, 3)
			So(src.closed, ShouldEqual, 1)
		})
	})

	Convey("Given a session canceled before any frame", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := session.NewPipeline(newFakeSource(30), &gazeScript{gaze: []float64{0.1}}, newRecorder()).Run(ctx)

		Convey("Then it reports no data", func() {
			So(errors.Is(res.Err, session.ErrNoData), ShouldBeTrue)
			So(res.Partial, ShouldBeTrue)
		})
	})
}

func TestPipeline_Panic(t *testing.T) {
	Convey("Given an analyzer that panics", t, func() {
		src := newFakeSource(6)
		res := session.NewPipeline(src, &gazeScript{panic: true}, newRecorder()).Run(context.Background())

		Convey("Then the cause becomes the report error and the source is closed", func() {
			So(res.Map(), ShouldResemble, map[string]any{"error": "decoder exploded"})
			So(res.Ticks, ShouldEqual, 0)
			So(src.closed, ShouldEqual, 1)
		})
	})

	Convey("Given an analyzer that panics on its second frame", t, func() {
		src := newFakeSource(9)
		res := session.NewPipeline(src, &gazeScript{gaze: []float64{0.1}, panicAt: 2}, newRecorder()).Run(context.Background())

		Convey("Then the snapshot fused before the failure is reported", func() {
			So(res.OK(), ShouldBeTrue)
			So(res.Partial, ShouldBeTrue)
			So(res.Ticks, ShouldEqual, 1)
			So(res.Frames, ShouldEqual, 6)
			So(res.Map(), ShouldHaveLength, len(fusion.Names))
			So(src.closed, ShouldEqual, 1)
		})
	})
}

func TestAggregate(t *testing.T) {
	Convey("Given snapshots", t, func() {
		a := fusion.Snapshot{FocusRatio: 0.5, HeadStability: 90, BlinkVariability: 0.5}
		b := fusion.Snapshot{FocusRatio: 0.75, HeadStability: 85.5, BlinkVariability: 0.5}

		Convey("Then fields are averaged and rounded", func() {
			got, err := session.Aggregate([]fusion.Snapshot{a, b})
			So(err, ShouldBeNil)
			So(got.FocusRatio, ShouldEqual, 0.63)
			So(got.HeadStability, ShouldEqual, 87.75)
			So(got.BlinkVariability, ShouldEqual, 0.5)
		})

		Convey("Then an empty list is ErrNoData", func() {
			_, err := session.Aggregate(nil)
			So(err, ShouldEqual, session.ErrNoData)
		})
	})
}

func TestLabel(t *testing.T) {
	Convey("Given the default threshold", t, func() {
		So(session.Label(0.5, session.DefaultGazeDistractedThreshold), ShouldEqual, eeg.StateFocused)
		So(session.Label(0.51, session.DefaultGazeDistractedThreshold), ShouldEqual, eeg.StateDistracted)
	})
}
