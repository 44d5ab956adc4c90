// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

package stream

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrCredentialsMissing means no usable auth is configured. Raised before
	// any network I/O.
	ErrCredentialsMissing = errors.New("stream: no credentials configured")

	// ErrSigningKeyMissing means local token signing was attempted without a
	// configured key id and PEM.
	ErrSigningKeyMissing = errors.New("stream: signing key not configured")

	// ErrInvalidInput means a client operation was called with arguments that
	// can never succeed (empty uid, filename, size or url). Raised before any
	// network I/O.
	ErrInvalidInput = errors.New("stream: invalid input")

	// ErrNotFound means the remote resource does not exist (HTTP 404).
	// Lookups propagate it so callers can distinguish "vanished remotely"
	// from a generic failure; delete treats it as success.
	ErrNotFound = errors.New("stream: video not found")
)

// RemoteError is a non-2xx API response other than a handled 404.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("stream: remote operation failed with status %d: %s", e.Status, e.Body)
}

// TransportError wraps DNS, connect, TLS and timeout failures from the
// underlying HTTP client. Not retried by this layer.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UploadPhase identifies which tus phase failed.
type UploadPhase string

const (
	PhaseInitiate UploadPhase = "initiate"
	PhaseTransfer UploadPhase = "transfer"
)

// UploadError is a failure of one phase of the resumable upload handshake.
// The whole upload attempt is considered failed; callers may fall back or
// abort.
type UploadError struct {
	Phase  UploadPhase
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("stream: upload %s failed with status %d: %s", e.Phase, e.Status, e.Body)
}

// Retriable reports whether err belongs to the categories the engine is
// allowed to fall back on: remote rejections, transport failures and upload
// protocol failures. Credential and signing configuration errors are
// systemic, a different upload path would fail identically.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredentialsMissing) || errors.Is(err, ErrSigningKeyMissing) {
		return false
	}
	var re *RemoteError
	var te *TransportError
	var ue *UploadError
	return errors.As(err, &re) || errors.As(err, &te) || errors.As(err, &ue) ||
		errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound)
}
