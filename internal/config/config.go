// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

// Package config loads Streamgate configuration with layered sources:
// built-in defaults, an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Disposition values for the remote resource when a local record is deleted.
const (
	DispositionKeep   = "keep"   // leave the remote video untouched
	DispositionMark   = "mark"   // rename remote meta.name with a "DELETED: " prefix
	DispositionDelete = "delete" // delete the remote video
)

// Config is the root configuration struct.
type Config struct {
	Stream   StreamConfig   `koanf:"stream"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StreamConfig holds Cloudflare Stream account, credential and policy settings.
type StreamConfig struct {
	// AccountID is the Cloudflare account identifier. Required.
	AccountID string `koanf:"account_id" validate:"required"`

	// APIHost is the API base URL. Override for fixture servers in tests.
	APIHost string `koanf:"api_host" validate:"required,url"`

	// APIToken enables bearer-token authentication.
	APIToken string `koanf:"api_token"`

	// AuthKey and AuthEmail enable key/email header authentication.
	// Exactly one credential mode must be configured.
	AuthKey   string `koanf:"auth_key"`
	AuthEmail string `koanf:"auth_email" validate:"omitempty,email"`

	// DefaultAllowedOrigins is injected into create-from-URL requests when the
	// record specifies no origins of its own.
	DefaultAllowedOrigins []string `koanf:"default_allowed_origins"`

	// SigningKeyID and SigningKeyPEM configure local signed-token minting.
	// The PEM may be stored base64-wrapped for env transport.
	SigningKeyID  string `koanf:"signing_key_id"`
	SigningKeyPEM string `koanf:"signing_key_pem"`

	// CreateTokenWithAPI issues playback tokens through the vendor endpoint
	// instead of the local signer.
	CreateTokenWithAPI bool `koanf:"create_token_with_api"`

	// SignedTokenTTL is the lifetime of signed playback tokens.
	SignedTokenTTL time.Duration `koanf:"signed_token_ttl" validate:"required"`

	// SignedBufferSeconds is added on top of SignedTokenTTL so a token minted
	// at render time outlives the page load.
	SignedBufferSeconds int `koanf:"signed_buffer_seconds" validate:"min=0"`

	// KeepLocalVideo retains the local file after a successful push.
	KeepLocalVideo bool `koanf:"keep_local_video"`

	// DeleteDisposition controls the remote resource when a record is deleted.
	DeleteDisposition string `koanf:"delete_disposition" validate:"oneof=keep mark delete"`

	// DefaultThumbnailPct selects the poster frame as a fraction of duration.
	DefaultThumbnailPct float64 `koanf:"default_thumbnail_pct" validate:"min=0,max=1"`

	// RequestTimeout bounds each API call.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"required"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// PublicBaseURL is the externally reachable base URL of this daemon, used
	// to build copy-from-URL source links for protected assets.
	PublicBaseURL string `koanf:"public_base_url" validate:"omitempty,url"`

	Timeout time.Duration `koanf:"timeout" validate:"required"`
}

// DatabaseConfig holds the sqlite record store settings.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// LoggingConfig mirrors logging.Config for koanf unmarshaling.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// HasBearerAuth reports whether bearer-token credentials are configured.
func (c *StreamConfig) HasBearerAuth() bool {
	return c.APIToken != ""
}

// HasKeyAuth reports whether key/email credentials are configured.
func (c *StreamConfig) HasKeyAuth() bool {
	return c.AuthKey != "" && c.AuthEmail != ""
}

// Validate checks struct tags plus the cross-field credential rule.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if !c.Stream.HasBearerAuth() && !c.Stream.HasKeyAuth() {
		return fmt.Errorf("stream credentials missing: set stream.api_token or both stream.auth_key and stream.auth_email")
	}
	if c.Stream.HasBearerAuth() && c.Stream.HasKeyAuth() {
		return fmt.Errorf("ambiguous stream credentials: set either stream.api_token or the auth_key/auth_email pair, not both")
	}

	return nil
}
