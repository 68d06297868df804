package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 2}),
				WithConstLabels(map[string]string{"app": "demo"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the collectors are registered on that registry", func() {
				So(m, ShouldNotBeNil)
				m.rsvpsCreated.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)

				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_rsvps_created_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "demo")
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestRecordingHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording RSVP creations", func() {
			before := testutil.ToFloat64(globalManager.rsvpsCreated)
			RecordRSVPCreated()
			RecordRSVPCreated()

			Convey("Then the counter advances", func() {
				So(testutil.ToFloat64(globalManager.rsvpsCreated), ShouldEqual, before+2)
			})
		})

		Convey("When recording labelled metrics", func() {
			So(func() {
				RecordSubmission("submitted")
				RecordSignIn("anonymous", "ok")
				RecordQueueEnqueueError("queue_full")
				RecordHTTPRequest("page", "GET", "200")
				RecordHTTPRequestDuration("page", "GET", "200", 3)
				RecordErrorByComponent("worker", "load")
			}, ShouldNotPanic)

			Convey("Then gauges can be set", func() {
				UpdateOpenPages(3)
				So(testutil.ToFloat64(globalManager.openPages), ShouldEqual, 3)

				UpdateSystemGoroutineCount(12)
				UpdateSystemMemoryUsage(2048)
				RecordSystemGCPauseTime(0.5)
				So(testutil.ToFloat64(globalManager.goroutineCount), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.memoryUsage), ShouldEqual, 2048)
				So(testutil.ToFloat64(globalManager.gcPauseTime), ShouldEqual, 0.5)
			})
		})

		Convey("When gathering", func() {
			n, err := Gather()
			So(err, ShouldBeNil)
			So(n, ShouldBeGreaterThan, 0)
		})
	})
}
