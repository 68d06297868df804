package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/okian/rsvp/internal/adapters/auth"
	"github.com/okian/rsvp/internal/adapters/http/api"
	"github.com/okian/rsvp/internal/adapters/http/site"
	"github.com/okian/rsvp/internal/adapters/http/swagger"
	"github.com/okian/rsvp/internal/adapters/repository"
	service "github.com/okian/rsvp/internal/app"
	"github.com/okian/rsvp/internal/config"
	"github.com/okian/rsvp/internal/domain/dedupe"
	"github.com/okian/rsvp/internal/page/bootstrap"
	"github.com/okian/rsvp/internal/page/registry"
	"github.com/okian/rsvp/internal/page/view"
	"github.com/okian/rsvp/pkg/logger"
)

const sessionKeyLength = 32

// application is the wired process: backend, open pages and HTTP routes.
type application struct {
	svc     *service.Service
	pages   *registry.Registry
	handler http.Handler
}

func newIssuer(cfg *config.Config) *auth.Issuer {
	return auth.NewIssuer(cfg.AuthSecret,
		auth.WithIssuerName(cfg.AuthIssuer),
		auth.WithTTL(cfg.AuthTokenTTL()),
		auth.WithLedger(dedupe.NewInMemoryLedger(dedupe.WithMaxSize(cfg.TokenCacheSize))),
	)
}

func newApplication(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	at, err := cfg.EventTime()
	if err != nil {
		return nil, err
	}
	event := view.Event{Title: cfg.EventTitle, At: at}

	collection, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithCollection(collection),
		service.WithIssuer(newIssuer(cfg)),
		service.WithAnonymousSignIn(cfg.AuthAllowAnonymous),
	)
	if err := svc.Start(ctx); err != nil {
		_ = collection.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}

	// The configured token is one-time: only the first page without its own
	// token signs in with it, later pages sign in anonymously.
	var initialToken atomic.Pointer[string]
	if t := strings.TrimSpace(cfg.InitialAuthToken); t != "" {
		initialToken.Store(&t)
	}

	pageLog := log.Named("page")
	pages := registry.New(func(token string) *view.Controller {
		if token == "" {
			if t := initialToken.Swap(nil); t != nil {
				token = *t
			}
		}
		return view.New(bootstrap.Config{AppID: cfg.AppID, InitialToken: token},
			svc.NewAuthClient(), svc, event, view.WithLogger(pageLog))
	},
		registry.WithIdleTTL(cfg.PageIdleTTL()),
		registry.WithLogger(log.Named("registry")),
	)
	pages.Start(ctx)

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		log.Warn(ctx, "session_secret not set; page cookies will not survive a restart")
		secret = securecookie.GenerateRandomKey(sessionKeyLength)
	}

	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(pages, svc, sessions.NewCookieStore(secret), event,
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)

	return &application{svc: svc, pages: pages, handler: mux}, nil
}

// close disposes every page, then drains and stops the backend.
func (a *application) close(ctx context.Context) error {
	a.pages.Stop()
	return a.svc.Stop(ctx)
}
