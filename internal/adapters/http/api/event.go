package api

import (
	"net/http"
	"time"

	"github.com/okian/rsvp/internal/domain/countdown"
	"github.com/okian/rsvp/internal/page/view"
)

// EventHandler serves the event details. It needs no page.
type EventHandler struct {
	event view.Event
	now   func() time.Time
}

type eventResponse struct {
	view.Event
	Countdown countdown.Breakdown `json:"countdown"`
}

// HandleGetEvent handles GET /api/event.
func (h *EventHandler) HandleGetEvent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, eventResponse{
		Event:     h.event,
		Countdown: countdown.Compute(h.event.At, h.now()),
	})
}
