package countdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCompute(t *testing.T) {
	Convey("Given a fixed now", t, func() {
		now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

		Convey("When the target is 90061000 ms away", func() {
			b := Compute(now.Add(90061000*time.Millisecond), now)

			Convey("Then every unit is one", func() {
				So(b, ShouldResemble, Breakdown{Days: 1, Hours: 1, Minutes: 1, Seconds: 1})
			})
		})

		Convey("When the target is now", func() {
			So(Compute(now, now), ShouldResemble, Breakdown{})
		})

		Convey("When fractions of a second remain", func() {
			b := Compute(now.Add(1999*time.Millisecond), now)
			So(b.Seconds, ShouldEqual, 1)
		})

		Convey("When the target has passed", func() {
			b := Compute(now.Add(-90061000*time.Millisecond), now)

			Convey("Then components go negative and are not clamped", func() {
				So(b, ShouldResemble, Breakdown{Days: -2, Hours: -2, Minutes: -2, Seconds: -1})
			})
		})

		Convey("When the target passed half a second ago", func() {
			b := Compute(now.Add(-500*time.Millisecond), now)
			So(b.Days, ShouldEqual, -1)
			So(b.Seconds, ShouldEqual, -1)
		})
	})
}

func TestClock(t *testing.T) {
	Convey("Given a clock with a fake now", t, func() {
		base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		var offset atomic.Int64
		now := func() time.Time { return base.Add(time.Duration(offset.Load())) }
		var ticks atomic.Int32

		c := NewClock(base.Add(time.Hour),
			WithNow(now),
			WithInterval(5*time.Millisecond),
			WithOnTick(func(Breakdown) { ticks.Add(1) }),
		)

		Convey("When started", func() {
			c.Start(context.Background())
			defer c.Stop()

			Convey("Then it evaluates immediately", func() {
				So(ticks.Load(), ShouldBeGreaterThanOrEqualTo, 1)
				So(c.Current().Hours, ShouldEqual, 1)
			})

			Convey("Then it keeps re-evaluating", func() {
				offset.Store(int64(30 * time.Minute))
				time.Sleep(50 * time.Millisecond)
				So(c.Current().Minutes, ShouldEqual, 30)
				So(ticks.Load(), ShouldBeGreaterThan, 1)
			})
		})

		Convey("When stopped", func() {
			c.Start(context.Background())
			c.Stop()
			after := ticks.Load()
			time.Sleep(30 * time.Millisecond)

			Convey("Then no further ticks land", func() {
				So(ticks.Load(), ShouldEqual, after)
			})

			Convey("Then stopping again is harmless", func() {
				So(func() { c.Stop() }, ShouldNotPanic)
			})
		})

		Convey("When the parent context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			c.Start(ctx)
			cancel()
			So(func() { c.Stop() }, ShouldNotPanic)
		})
	})
}
