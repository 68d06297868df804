package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName  = "rsvp-page"
	sessionKeyID = "page_id"
)

// pageSessions keeps the page id in a signed cookie.
type pageSessions struct {
	store sessions.Store
}

func (p *pageSessions) pageID(r *http.Request) (string, bool) {
	session, err := p.store.Get(r, sessionName)
	if err != nil {
		return "", false
	}
	id, ok := session.Values[sessionKeyID].(string)
	return id, ok && id != ""
}

func (p *pageSessions) bind(w http.ResponseWriter, r *http.Request, id string) error {
	// A cookie signed with a rotated key is replaced, not an error.
	session, _ := p.store.Get(r, sessionName)
	session.Values[sessionKeyID] = id
	if session.Options == nil {
		session.Options = &sessions.Options{Path: "/"}
	}
	session.Options.HttpOnly = true
	session.Options.SameSite = http.SameSiteLaxMode
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *pageSessions) clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := p.store.Get(r, sessionName)
	delete(session.Values, sessionKeyID)
	if session.Options == nil {
		session.Options = &sessions.Options{Path: "/"}
	}
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
