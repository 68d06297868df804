package model

import (
	"fmt"
	"strings"
	"time"
)

// Guest count bounds accepted by Validate.
const (
	MinGuests     = 1
	MaxGuests     = 5
	DefaultGuests = 1
)

// Fields is the RSVP payload written to the shared collection.
// JSON names match the stored document shape.
type Fields struct {
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Guests        int       `json:"guests"`
	FavoriteGames string    `json:"favoriteGames"`
	Dietary       string    `json:"dietary"`
	CreatedAt     time.Time `json:"createdAt"`
	UserID        string    `json:"userId"`
}

// Record is a stored RSVP annotated with its store-assigned id.
type Record struct {
	ID string `json:"id"`
	Fields
}

// Draft holds in-progress form values. It is owned by a single page.
type Draft struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Guests        int    `json:"guests"`
	FavoriteGames string `json:"favoriteGames"`
	Dietary       string `json:"dietary"`
}

// NewDraft returns an empty draft with the default guest count.
func NewDraft() Draft {
	return Draft{Guests: DefaultGuests}
}

// Validate checks the fields the page requires before sending.
// Email syntax is left to the input surface.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidDraft)
	case strings.TrimSpace(d.Email) == "":
		return fmt.Errorf("%w: email is required", ErrInvalidDraft)
	case d.Guests < MinGuests || d.Guests > MaxGuests:
		return fmt.Errorf("%w: guests must be between %d and %d, got %d", ErrInvalidDraft, MinGuests, MaxGuests, d.Guests)
	}
	return nil
}

// Fields packages the draft verbatim, stamped with the owner and send time.
func (d Draft) Fields(uid string, now time.Time) Fields {
	return Fields{
		Name:          d.Name,
		Email:         d.Email,
		Guests:        d.Guests,
		FavoriteGames: d.FavoriteGames,
		Dietary:       d.Dietary,
		CreatedAt:     now.UTC(),
		UserID:        uid,
	}
}
