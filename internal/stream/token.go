// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
token.go - Local signed-token generation

Mints short-lived RS256 playback tokens without a network round-trip, using
the signing key created once through the vendor's key endpoint. The vendor
verifies tokens against the published JWK for the key id in the header.
*/

package stream

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/streamgate/streamgate/internal/metrics"
)

// TokenSigner mints signed playback tokens from locally held key material.
// Immutable after construction and safe for concurrent use.
type TokenSigner struct {
	keyID      string
	privateKey *rsa.PrivateKey
	ttl        time.Duration

	// now is injectable for deterministic expiry in tests.
	now func() time.Time
}

// NewTokenSigner parses the configured key material. The PEM may arrive
// base64-wrapped (the form it is stored in for env transport); the wrapping
// is decoded before parsing. Returns ErrSigningKeyMissing when key id or PEM
// is absent.
func NewTokenSigner(keyID, pem string, ttl time.Duration) (*TokenSigner, error) {
	if keyID == "" || pem == "" {
		return nil, ErrSigningKeyMissing
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	decoded, err := decodePEM(pem)
	if err != nil {
		return nil, err
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(decoded)
	if err != nil {
		return nil, fmt.Errorf("stream: cannot parse signing key PEM: %w", err)
	}

	return &TokenSigner{
		keyID:      keyID,
		privateKey: key,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// decodePEM unwraps base64 transport encoding when present. A PEM stored
// verbatim is passed through.
func decodePEM(pem string) ([]byte, error) {
	trimmed := strings.TrimSpace(pem)
	if strings.HasPrefix(trimmed, "-----BEGIN") {
		return []byte(trimmed), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("stream: signing key is neither PEM nor base64-wrapped PEM: %w", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(decoded)), "-----BEGIN") {
		return nil, fmt.Errorf("stream: base64-decoded signing key is not PEM")
	}
	return decoded, nil
}

// Sign mints a token for uid with the signer's default TTL.
func (s *TokenSigner) Sign(uid string) (string, error) {
	return s.SignWithTTL(uid, s.ttl)
}

// SignWithTTL mints a token for uid expiring after ttl. The compact JWS
// carries the key id in the kid header and sub/exp claims.
func (s *TokenSigner) SignWithTTL(uid string, ttl time.Duration) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	claims := jwt.RegisteredClaims{
		Subject:   uid,
		ExpiresAt: jwt.NewNumericDate(s.now().Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("stream: failed to sign token: %w", err)
	}

	metrics.SignedTokensIssued.WithLabelValues("local").Inc()

	return signed, nil
}

// KeyID returns the signing key identifier embedded in minted tokens.
func (s *TokenSigner) KeyID() string {
	return s.keyID
}
