package api

import (
	"errors"
	"net/http"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/internal/page/registry"
	"github.com/okian/rsvp/internal/page/submission"
	"github.com/okian/rsvp/internal/page/view"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNoPage     = errors.New("no page for this session")
)

// statusFor maps page errors to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrInvalidDraft):
		return http.StatusBadRequest, "invalid_draft"
	case errors.Is(err, submission.ErrIdentityUnresolved):
		return http.StatusConflict, "identity_pending"
	case errors.Is(err, submission.ErrInFlight):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, submission.ErrAlreadySubmitted):
		return http.StatusConflict, "already_submitted"
	case errors.Is(err, submission.ErrSubmissionFailed):
		return http.StatusBadGateway, "backend_failure"
	case errors.Is(err, ErrNoPage), errors.Is(err, registry.ErrNotFound), errors.Is(err, view.ErrClosed):
		return http.StatusNotFound, "page_not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
