// Package auth issues sign-in tokens and resolves page identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/okian/rsvp/internal/domain/dedupe"
)

const (
	defaultIssuer   = "rsvp"
	defaultAudience = "rsvp-page"
	defaultTTL      = 10 * time.Minute
)

// Claims are the validated contents of a custom sign-in token.
type Claims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim written and expected.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		if name = strings.TrimSpace(name); name != "" {
			i.issuer = name
		}
	}
}

// WithAudience sets the aud claim written and expected.
func WithAudience(aud string) IssuerOption {
	return func(i *Issuer) {
		if aud = strings.TrimSpace(aud); aud != "" {
			i.audience = aud
		}
	}
}

// WithTTL sets how long minted tokens stay valid.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithLedger sets the store of consumed token ids.
func WithLedger(l dedupe.Ledger) IssuerOption {
	return func(i *Issuer) {
		if l != nil {
			i.ledger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// Issuer mints and verifies HS256 one-time custom tokens.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	ledger   dedupe.Ledger
	now      func() time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

// NewIssuer creates an issuer signing with secret.
func NewIssuer(secret string, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		secret:   []byte(secret),
		issuer:   defaultIssuer,
		audience: defaultAudience,
		ttl:      defaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.ledger == nil {
		i.ledger = dedupe.NewInMemoryLedger(dedupe.WithClock(i.now))
	}
	return i
}

// Mint returns a signed token that signs a page in as subject exactly once.
func (i *Issuer) Mint(subject string) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNotConfigured
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	now := i.now().UTC()
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and claims, then consumes the token id.
func (i *Issuer) Verify(ctx context.Context, token string) (Claims, error) {
	if len(i.secret) == 0 {
		return Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer != i.issuer {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if !slices.Contains(parsed.Audience, i.audience) {
		return Claims{}, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: sub is required", ErrInvalidToken)
	}
	if parsed.ID == "" {
		return Claims{}, fmt.Errorf("%w: jti is required", ErrInvalidToken)
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: exp is required", ErrInvalidToken)
	}

	now := i.now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, ErrTokenExpired
	}
	if i.ledger.Consume(ctx, parsed.ID, exp) {
		return Claims{}, ErrTokenReused
	}

	claims := Claims{Subject: parsed.Subject, TokenID: parsed.ID, ExpiresAt: exp}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: signature is invalid", ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: alg is invalid", ErrInvalidToken)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
