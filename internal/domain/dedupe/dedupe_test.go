package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/neurobloom/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a session ID is new", func() {
			seen := d.SeenAndRecord(ctx, "session-1")

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And submitting it again is a duplicate", func() {
				So(d.SeenAndRecord(ctx, "session-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded ID is unrecorded", func() {
			d.SeenAndRecord(ctx, "session-1")
			d.Unrecord(ctx, "session-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be submitted again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "session-1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper at capacity", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, id := range []string{"s-1", "s-2", "s-3"} {
			So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
		}

		Convey("When a fourth session arrives", func() {
			So(d.SeenAndRecord(ctx, "s-4"), ShouldBeFalse)

			Convey("Then the oldest is evicted and the rest remain", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "s-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "s-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "s-2"), ShouldBeTrue)
			})

			Convey("And the evicted session is new again", func() {
				So(d.SeenAndRecord(ctx, "s-1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 3)
			})
		})

		Convey("When an unrecorded slot is reused", func() {
			d.Unrecord(ctx, "s-1")
			So(d.SeenAndRecord(ctx, "s-5"), ShouldBeFalse)

			Convey("Then nothing else is evicted", func() {
				So(d.SeenAndRecord(ctx, "s-2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "s-3"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		const n = 1000
		for i := 0; i < n; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("s-%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, n)
			So(d.SeenAndRecord(ctx, "s-0"), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given concurrent submitters racing on the same IDs", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))
		const goroutines = 10
		const ids = 100

		var wg sync.WaitGroup
		var mu sync.Mutex
		firsts := 0
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < ids; i++ {
					if !d.SeenAndRecord(context.Background(), fmt.Sprintf("s-%d", i)) {
						mu.Lock()
						firsts++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each ID is claimed exactly once", func() {
			So(firsts, ShouldEqual, ids)
			So(d.Size(), ShouldEqual, ids)
		})
	})
}
