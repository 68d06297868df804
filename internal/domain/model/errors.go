package model

import "errors"

// ErrInvalidDraft is returned when a draft fails pre-submit validation.
var ErrInvalidDraft = errors.New("invalid rsvp draft")
