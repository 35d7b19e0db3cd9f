// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package token issues and verifies the HMAC-SHA256 JWTs that authenticate
// sync agents against the server's HTTP surface. The subject claim carries
// the acting member's identity, which the middleware exports into the
// request context for the store's write rules.
package token

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
)

// ErrInvalidToken is returned for tokens that fail signature, issuer or
// expiry validation, or that carry no subject.
var ErrInvalidToken = errors.New("invalid token")

// Manager issues and verifies tokens for one issuer/key pair.
type Manager struct {
	issuer  string
	signKey []byte
	ttl     time.Duration
}

// NewManager constructs a Manager. All parameters are required.
func NewManager(issuer, signKey string, ttl time.Duration) (*Manager, error) {
	if issuer == "" || signKey == "" || ttl == 0 {
		return nil, errors.New("invalid params for token manager")
	}
	return &Manager{issuer: issuer, signKey: []byte(signKey), ttl: ttl}, nil
}

// Issue creates a signed token whose subject is the acting member's ID.
func (m *Manager) Issue(actor string) (string, error) {
	if actor == "" {
		return "", errors.New("empty actor")
	}

	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   actor,
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signKey)
	if err != nil {
		return "", fmt.Errorf("error occurred during signing JWT token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, issuer and expiry and returns the actor from
// the subject claim.
func (m *Manager) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return m.signKey, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	actor, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if actor == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return actor, nil
}

// ParseBearerToken extracts the credential from an Authorization header of
// the form "Bearer <token>".
func ParseBearerToken(authorizationHeader string) (string, error) {
	parts := strings.Split(strings.TrimSpace(authorizationHeader), " ")
	if len(parts) != 2 || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

// Middleware authenticates requests and attaches the verified actor to the
// request context. Unauthenticated requests get 401 without reaching the
// handler.
func (m *Manager) Middleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ParseBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				log.Debug().Str("func", "Middleware").Err(err).Msg("missing bearer token")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			actor, err := m.Verify(raw)
			if err != nil {
				log.Debug().Str("func", "Middleware").Err(err).Msg("token rejected")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := docstore.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
