package model_test

import (
	"testing"
	"time"

	"github.com/okian/neurobloom/internal/domain/fusion"
	model "github.com/okian/neurobloom/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestStatus(t *testing.T) {
	convey.Convey("Given session statuses", t, func() {
		convey.Convey("Then only completed and failed are terminal", func() {
			convey.So(model.StatusQueued.Terminal(), convey.ShouldBeFalse)
			convey.So(model.StatusRunning.Terminal(), convey.ShouldBeFalse)
			convey.So(model.StatusCompleted.Terminal(), convey.ShouldBeTrue)
			convey.So(model.StatusFailed.Terminal(), convey.ShouldBeTrue)
		})
	})
}

func TestRecordMetrics(t *testing.T) {
	convey.Convey("Given a completed record", t, func() {
		rec := model.Record{
			SessionID:   "s-1",
			Status:      model.StatusCompleted,
			Report:      &fusion.Snapshot{FocusRatio: 0.8, BlinkVariability: 0.5},
			CompletedAt: time.Now(),
		}

		convey.Convey("Then all twelve metrics are rendered", func() {
			m := rec.Metrics()
			convey.So(len(m), convey.ShouldEqual, 12)
			convey.So(m["focus_ratio"], convey.ShouldEqual, 0.8)
		})
	})

	convey.Convey("Given a failed record", t, func() {
		rec := model.Record{Status: model.StatusFailed, Error: "No data analyzed"}

		convey.Convey("Then only the error is rendered", func() {
			convey.So(rec.Metrics(), convey.ShouldResemble, map[string]any{"error": "No data analyzed"})
		})
	})

	convey.Convey("Given a queued record", t, func() {
		convey.Convey("Then there are no metrics yet", func() {
			convey.So(model.Record{Status: model.StatusQueued}.Metrics(), convey.ShouldBeNil)
		})
	})
}
