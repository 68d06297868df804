package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/rsvp/pkg/logger"
)

// StreamHandler pushes page state as server-sent events.
type StreamHandler struct {
	pages    Pages
	sessions *pageSessions
	logger   logger.Logger
}

// HandleEvents handles GET /api/page/events. It sends the state once on
// connect and again after every change until the client leaves or the page
// closes.
func (h *StreamHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	_, page, err := currentPage(h.sessions, h.pages, r)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	updates, cancel := page.Updates()
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send("state", page.State()); err != nil {
		h.logger.Debug(r.Context(), "event stream write failed", logger.Error(err))
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case _, ok := <-updates:
			if !ok {
				_ = send("closed", struct{}{})
				return
			}
			if err := send("state", page.State()); err != nil {
				h.logger.Debug(r.Context(), "event stream write failed", logger.Error(err))
				return
			}
		}
	}
}
