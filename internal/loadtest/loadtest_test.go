package loadtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rsvp/internal/adapters/http/api"
	service "github.com/okian/rsvp/internal/app"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/internal/page/bootstrap"
	"github.com/okian/rsvp/internal/page/registry"
	"github.com/okian/rsvp/internal/page/view"
)

func startServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	ctx := context.Background()
	svc := service.New(service.WithWorkerCount(4))
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	event := view.Event{Title: "Load night", At: time.Now().Add(time.Hour)}
	pages := registry.New(func(token string) *view.Controller {
		return view.New(bootstrap.Config{AppID: "load", InitialToken: token}, svc.NewAuthClient(), svc, event)
	})
	mux := http.NewServeMux()
	api.NewServer(pages, svc, sessions.NewCookieStore([]byte("load-test-session-secret-0123456")), event).
		Register(ctx, mux)
	server := httptest.NewServer(mux)
	return server, func() {
		server.Close()
		pages.Stop()
		_ = svc.Stop(context.Background())
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		server, stop := startServer(t)
		defer stop()

		Convey("When twenty visitors RSVP concurrently", func() {
			stats, err := Run(context.Background(), Config{
				BaseURL:  server.URL,
				Visitors: 20,
				Workers:  5,
				Timeout:  5 * time.Second,
				Settle:   5 * time.Second,
			}, nil)

			Convey("Then every RSVP lands on the observer's roster", func() {
				So(err, ShouldBeNil)
				So(stats.Submitted, ShouldEqual, 20)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.ObservedRSVPs, ShouldEqual, 20)
				So(stats.ObservedGuests, ShouldEqual, stats.ExpectedGuests)
				So(stats.ExpectedGuests, ShouldBeBetweenOrEqual, 20*model.MinGuests, 20*model.MaxGuests)
			})
		})
	})

	Convey("Given nothing is listening", t, func() {
		server, stop := startServer(t)
		url := server.URL
		stop()

		Convey("Then the run fails the health check", func() {
			_, err := Run(context.Background(), Config{BaseURL: url, Visitors: 1, Timeout: time.Second}, nil)
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}

func TestRandomDraft(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		d := randomDraft()
		if err := d.Validate(); err != nil {
			t.Fatalf("invalid draft %+v: %v", d, err)
		}
		if seen[d.Email] {
			t.Fatalf("duplicate email %s", d.Email)
		}
		seen[d.Email] = true
	}
}

func TestConfigNormalize(t *testing.T) {
	var c Config
	c.normalize()
	if c.Visitors != DefaultVisitors || c.Workers != DefaultWorkers || c.Timeout != DefaultTimeout || c.Settle != DefaultSettle {
		t.Fatalf("unexpected defaults %+v", c)
	}
}
