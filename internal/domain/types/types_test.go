package types_test

import (
	"encoding/json"
	"testing"
	"time"

	types "github.com/okian/neurobloom/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSessionSummary(t *testing.T) {
	Convey("Given a queued session summary", t, func() {
		s := types.SessionSummary{SessionID: "s-1", Status: "queued"}

		Convey("When encoding to JSON", func() {
			data, err := json.Marshal(s)
			So(err, ShouldBeNil)

			Convey("Then unset completion fields are omitted", func() {
				So(string(data), ShouldEqual, `{"session_id":"s-1","status":"queued","ticks":0}`)
			})
		})

		Convey("When the session completed", func() {
			s.CompletedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			data, err := json.Marshal(s)
			So(err, ShouldBeNil)

			Convey("Then the completion time is included", func() {
				So(string(data), ShouldContainSubstring, `"completed_at":"2026-01-02T03:04:05Z"`)
			})
		})
	})
}

func TestSubmitRequest(t *testing.T) {
	Convey("Given a submission with interaction events", t, func() {
		raw := `{"session_id":"s-9","video_url":"https://cdn.example/v.mp4",
			"interaction":{"keys":[{"timestamp":1,"key":"A","type":"PRESS"}],"pointer":[]}}`

		var req types.SubmitRequest
		err := json.Unmarshal([]byte(raw), &req)

		Convey("Then the batch is decoded", func() {
			So(err, ShouldBeNil)
			So(req.SessionID, ShouldEqual, "s-9")
			So(req.Interaction, ShouldNotBeNil)
			So(len(req.Interaction.Keys), ShouldEqual, 1)
		})
	})
}

func TestFuseRequest(t *testing.T) {
	Convey("Given a fusion request without interaction features", t, func() {
		raw := `{"eeg":{"theta":10000,"low_beta":8000},"vision":{"yaw_velocity":12.5,"gaze_deviation":0.4,"blink_count":1,"face_found":true}}`

		var req types.FuseRequest
		err := json.Unmarshal([]byte(raw), &req)

		Convey("Then bands and vision metrics are decoded by name", func() {
			So(err, ShouldBeNil)
			So(req.Interaction, ShouldBeNil)
			So(req.EEG.Map()["low_beta"], ShouldEqual, 8000)
			So(req.Vision.YawVelocity, ShouldEqual, 12.5)
			So(req.Vision.BlinkCount, ShouldEqual, 1)
		})
	})
}
