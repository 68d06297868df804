// Package model contains domain models passed between layers.
package model

import "time"

// Provider records how an identity was established.
type Provider string

const (
	ProviderAnonymous   Provider = "anonymous"
	ProviderCustomToken Provider = "custom_token"
)

// Identity is the resolved session credential of one page.
// It is created once and never mutated.
type Identity struct {
	UID      string    `json:"uid"`
	Provider Provider  `json:"provider"`
	IssuedAt time.Time `json:"issuedAt"`
}

// IsAnonymous reports whether the identity came from anonymous sign-in.
func (i Identity) IsAnonymous() bool {
	return i.Provider == ProviderAnonymous
}
