package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/internal/page/bootstrap"
	"github.com/okian/rsvp/internal/page/view"
)

type stubAuth struct{ fail bool }

func (a stubAuth) SignInAnonymously(context.Context) (model.Identity, error) {
	if a.fail {
		return model.Identity{}, errors.New("disabled")
	}
	return model.Identity{UID: "anon", Provider: model.ProviderAnonymous}, nil
}

func (a stubAuth) SignInWithCustomToken(_ context.Context, token string) (model.Identity, error) {
	return model.Identity{UID: token, Provider: model.ProviderCustomToken}, nil
}

func (stubAuth) OnAuthStateChanged(func(*model.Identity)) func() { return func() {} }

type stubBackend struct {
	mu     sync.Mutex
	active int
}

func (b *stubBackend) Subscribe(context.Context, string, func([]model.Record, error)) (func(), error) {
	b.mu.Lock()
	b.active++
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.active--
			b.mu.Unlock()
		})
	}, nil
}

func (b *stubBackend) Create(context.Context, string, model.Fields) (string, error) {
	return "id", nil
}

func (b *stubBackend) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func factory(auth stubAuth, backend *stubBackend) Factory {
	return func(token string) *view.Controller {
		return view.New(bootstrap.Config{AppID: "app", InitialToken: token}, auth, backend,
			view.Event{Title: "t", At: time.Now().Add(time.Hour)})
	}
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry", t, func() {
		ctx := context.Background()
		backend := &stubBackend{}
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		var clockMu sync.Mutex
		clock := func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			return now
		}
		advance := func(d time.Duration) {
			clockMu.Lock()
			now = now.Add(d)
			clockMu.Unlock()
		}
		r := New(factory(stubAuth{}, backend), WithIdleTTL(time.Minute), WithClock(clock))
		defer r.Stop()

		Convey("When a page is opened with a token", func() {
			id, page, err := r.Open(ctx, "host")
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			Convey("Then it is signed in with the token subject and retrievable", func() {
				So(page.State().Identity.UID, ShouldEqual, "host")
				got, err := r.Get(id)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, page)
				So(r.Len(), ShouldEqual, 1)
				So(backend.subscriptions(), ShouldEqual, 1)
			})

			Convey("Then closing it releases the subscription", func() {
				So(r.Close(id), ShouldBeNil)
				So(errors.Is(r.Close(id), ErrNotFound), ShouldBeTrue)
				_, err := r.Get(id)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(backend.subscriptions(), ShouldEqual, 0)
			})

			Convey("Then idle pages are reaped after the TTL", func() {
				other, _, _ := r.Open(ctx, "")
				advance(45 * time.Second)
				_, _ = r.Get(other)
				advance(30 * time.Second)

				So(r.Reap(ctx), ShouldEqual, 1)
				_, err := r.Get(id)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = r.Get(other)
				So(err, ShouldBeNil)
			})
		})

		Convey("When a page is only watched through its update stream", func() {
			id, page, err := r.Open(ctx, "")
			So(err, ShouldBeNil)
			updates, stop := page.Updates()
			advance(2 * time.Minute)

			Convey("Then the reaper keeps it open and subscribed", func() {
				So(r.Reap(ctx), ShouldEqual, 0)
				got, err := r.Get(id)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, page)
				So(backend.subscriptions(), ShouldEqual, 1)
				select {
				case _, ok := <-updates:
					So(ok, ShouldBeTrue)
				default:
				}
				stop()
			})

			Convey("Then it is reaped once the stream goes away and the TTL passes again", func() {
				So(r.Reap(ctx), ShouldEqual, 0)
				stop()
				advance(30 * time.Second)
				So(r.Reap(ctx), ShouldEqual, 0)
				advance(45 * time.Second)
				So(r.Reap(ctx), ShouldEqual, 1)
				_, err := r.Get(id)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(backend.subscriptions(), ShouldEqual, 0)
			})
		})

		Convey("When every page is closed", func() {
			_, _, _ = r.Open(ctx, "")
			_, _, _ = r.Open(ctx, "")
			r.CloseAll()
			So(r.Len(), ShouldEqual, 0)
			So(backend.subscriptions(), ShouldEqual, 0)
		})
	})

	Convey("Given sign-in fails", t, func() {
		backend := &stubBackend{}
		r := New(factory(stubAuth{fail: true}, backend))
		defer r.Stop()

		Convey("Then the page is still registered, loading, and unsubscribed", func() {
			id, page, err := r.Open(context.Background(), "")
			So(errors.Is(err, bootstrap.ErrAuthFailure), ShouldBeTrue)
			So(id, ShouldNotBeEmpty)
			So(page.State().Phase, ShouldEqual, view.PhaseLoading)
			So(backend.subscriptions(), ShouldEqual, 0)
		})
	})
}
