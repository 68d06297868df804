// Package api exposes pages over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/okian/rsvp/internal/page/view"
	"github.com/okian/rsvp/pkg/logger"
)

// Pages is the set of open pages the handlers act on.
type Pages interface {
	Open(ctx context.Context, initialToken string) (string, *view.Controller, error)
	Get(id string) (*view.Controller, error)
	Close(id string) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source for GET /api/event.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server wires HTTP routes for the page API.
type Server struct {
	pages    Pages
	sessions *pageSessions
	event    view.Event
	logger   logger.Logger
	now      func() time.Time

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	pageHandler   *PageHandler
	streamHandler *StreamHandler
	eventHandler  *EventHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(pages Pages, stats StatsProvider, store sessions.Store, event view.Event, opts ...Option) *Server {
	s := &Server{
		pages:  pages,
		event:  event,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = &pageSessions{store: store}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(stats)
	s.pageHandler = &PageHandler{pages: pages, sessions: s.sessions, logger: s.logger}
	s.streamHandler = &StreamHandler{pages: pages, sessions: s.sessions, logger: s.logger}
	s.eventHandler = &EventHandler{event: event, now: s.now}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /api/event", MetricsMiddleware(s.eventHandler.HandleGetEvent, "event"))

	mux.HandleFunc("POST /api/page", MetricsMiddleware(s.pageHandler.HandleOpen, "page_open"))
	mux.HandleFunc("GET /api/page", MetricsMiddleware(s.pageHandler.HandleGet, "page_get"))
	mux.HandleFunc("DELETE /api/page", MetricsMiddleware(s.pageHandler.HandleClose, "page_close"))
	mux.HandleFunc("PUT /api/page/draft", MetricsMiddleware(s.pageHandler.HandleUpdateDraft, "page_draft"))
	mux.HandleFunc("POST /api/page/submit", MetricsMiddleware(s.pageHandler.HandleSubmit, "page_submit"))
	mux.HandleFunc("POST /api/page/cancel", MetricsMiddleware(s.pageHandler.HandleCancel, "page_cancel"))
	mux.HandleFunc("GET /api/page/events", MetricsMiddleware(s.streamHandler.HandleEvents, "page_events"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
