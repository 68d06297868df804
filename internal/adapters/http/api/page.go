package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/internal/page/bootstrap"
	"github.com/okian/rsvp/internal/page/view"
	"github.com/okian/rsvp/pkg/logger"
)

// PageHandler serves the page lifecycle and form routes.
type PageHandler struct {
	pages    Pages
	sessions *pageSessions
	logger   logger.Logger
}

type openRequest struct {
	Token string `json:"token"`
}

// draftRequest carries a partial draft edit; absent fields are unchanged.
type draftRequest struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	Guests        *int    `json:"guests"`
	FavoriteGames *string `json:"favoriteGames"`
	Dietary       *string `json:"dietary"`
}

func (d draftRequest) apply(draft *model.Draft) {
	if d.Name != nil {
		draft.Name = *d.Name
	}
	if d.Email != nil {
		draft.Email = *d.Email
	}
	if d.Guests != nil {
		draft.Guests = *d.Guests
	}
	if d.FavoriteGames != nil {
		draft.FavoriteGames = *d.FavoriteGames
	}
	if d.Dietary != nil {
		draft.Dietary = *d.Dietary
	}
}

type pageResponse struct {
	PageID string     `json:"pageId"`
	State  view.State `json:"state"`
	// AuthError is set when sign-in failed; the page then stays loading.
	AuthError string `json:"authError,omitempty"`
}

type submitResponse struct {
	ID    string     `json:"id"`
	State view.State `json:"state"`
}

// HandleOpen handles POST /api/page. Any page already bound to the session
// is closed first.
func (h *PageHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeMappedError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if old, ok := h.sessions.pageID(r); ok {
		_ = h.pages.Close(old)
	}

	id, page, err := h.pages.Open(r.Context(), req.Token)
	resp := pageResponse{PageID: id}
	if err != nil {
		if !errors.Is(err, bootstrap.ErrAuthFailure) {
			_ = h.pages.Close(id)
			writeMappedError(w, err)
			return
		}
		resp.AuthError = err.Error()
	}
	if err := h.sessions.bind(w, r, id); err != nil {
		h.logger.Error(r.Context(), "bind page session", logger.Error(err))
		_ = h.pages.Close(id)
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	resp.State = page.State()
	writeJSON(w, http.StatusCreated, resp)
}

// HandleGet handles GET /api/page.
func (h *PageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, page, err := h.current(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{PageID: id, State: page.State()})
}

// HandleClose handles DELETE /api/page.
func (h *PageHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessions.pageID(r)
	if !ok {
		writeMappedError(w, ErrNoPage)
		return
	}
	if err := h.pages.Close(id); err != nil {
		writeMappedError(w, err)
		return
	}
	if err := h.sessions.clear(w, r); err != nil {
		h.logger.Warn(r.Context(), "clear page session", logger.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdateDraft handles PUT /api/page/draft.
func (h *PageHandler) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	id, page, err := h.current(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMappedError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := page.UpdateDraft(req.apply); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{PageID: id, State: page.State()})
}

// HandleSubmit handles POST /api/page/submit.
func (h *PageHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	_, page, err := h.current(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	recordID, err := page.Submit(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{ID: recordID, State: page.State()})
}

// HandleCancel handles POST /api/page/cancel.
func (h *PageHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, page, err := h.current(r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if err := page.Cancel(); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{PageID: id, State: page.State()})
}

func (h *PageHandler) current(r *http.Request) (string, *view.Controller, error) {
	return currentPage(h.sessions, h.pages, r)
}

func currentPage(s *pageSessions, pages Pages, r *http.Request) (string, *view.Controller, error) {
	id, ok := s.pageID(r)
	if !ok {
		return "", nil, ErrNoPage
	}
	page, err := pages.Get(id)
	if err != nil {
		return "", nil, err
	}
	return id, page, nil
}
