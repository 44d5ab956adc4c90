// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

package stream

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestSigner(t *testing.T, ttl time.Duration) *TokenSigner {
	t.Helper()
	signer, err := NewTokenSigner("key-1", genTestKeyPEM(t), ttl)
	checkNoError(t, err)
	return signer
}

func TestSignerRequiresKeyMaterial(t *testing.T) {
	if _, err := NewTokenSigner("", genTestKeyPEM(t), time.Hour); !errors.Is(err, ErrSigningKeyMissing) {
		t.Errorf("missing key id: got %v, want ErrSigningKeyMissing", err)
	}
	if _, err := NewTokenSigner("key-1", "", time.Hour); !errors.Is(err, ErrSigningKeyMissing) {
		t.Errorf("missing pem: got %v, want ErrSigningKeyMissing", err)
	}
}

func TestSignerAcceptsBase64WrappedPEM(t *testing.T) {
	wrapped := base64.StdEncoding.EncodeToString([]byte(genTestKeyPEM(t)))
	signer, err := NewTokenSigner("key-1", wrapped, time.Hour)
	checkNoError(t, err)

	token, err := signer.Sign("abc")
	checkNoError(t, err)
	checkTrue(t, "token minted", token != "")
}

func TestSignerRejectsGarbage(t *testing.T) {
	if _, err := NewTokenSigner("key-1", "not a key", time.Hour); err == nil {
		t.Error("expected parse error for garbage key material")
	}
	garbage := base64.StdEncoding.EncodeToString([]byte("still not a key"))
	if _, err := NewTokenSigner("key-1", garbage, time.Hour); err == nil {
		t.Error("expected parse error for base64-wrapped garbage")
	}
}

func TestSignDeterministicAtFixedInstant(t *testing.T) {
	signer := newTestSigner(t, time.Hour)
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return fixed }

	first, err := signer.Sign("abc")
	checkNoError(t, err)
	second, err := signer.Sign("abc")
	checkNoError(t, err)
	// RS256 over identical claims at the same instant is deterministic.
	checkStringEqual(t, "token", second, first)

	signer.now = func() time.Time { return fixed.Add(time.Second) }
	shifted, err := signer.Sign("abc")
	checkNoError(t, err)
	if shifted == first {
		t.Error("token did not change when the clock advanced")
	}
}

func TestSignClaimsAndHeader(t *testing.T) {
	signer := newTestSigner(t, 30*time.Minute)
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return fixed }

	signed, err := signer.Sign("vid-abc")
	checkNoError(t, err)

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return &signer.privateKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time { return fixed }))
	checkNoError(t, err)
	checkTrue(t, "valid", parsed.Valid)

	checkStringEqual(t, "kid", parsed.Header["kid"].(string), "key-1")
	checkStringEqual(t, "sub", claims.Subject, "vid-abc")
	if got, want := claims.ExpiresAt.Time, fixed.Add(30*time.Minute); !got.Equal(want) {
		t.Errorf("exp = %v, want %v", got, want)
	}
}

func TestSignWithTTLOverride(t *testing.T) {
	signer := newTestSigner(t, time.Hour)
	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return fixed }

	signed, err := signer.SignWithTTL("abc", 90*time.Second)
	checkNoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return &signer.privateKey.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return fixed }))
	checkNoError(t, err)
	if got, want := claims.ExpiresAt.Time, fixed.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("exp = %v, want %v", got, want)
	}
}

func TestSignEmptyUID(t *testing.T) {
	signer := newTestSigner(t, time.Hour)
	if _, err := signer.Sign(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
