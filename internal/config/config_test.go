// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Stream.AccountID = "acct-123"
	cfg.Stream.APIToken = "token-abc"
	return cfg
}

func TestValidateCredentialModes(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "bearer token only",
			mutate: func(c *Config) {},
		},
		{
			name: "key and email only",
			mutate: func(c *Config) {
				c.Stream.APIToken = ""
				c.Stream.AuthKey = "key-xyz"
				c.Stream.AuthEmail = "ops@example.com"
			},
		},
		{
			name: "no credentials",
			mutate: func(c *Config) {
				c.Stream.APIToken = ""
			},
			wantErr: "credentials missing",
		},
		{
			name: "both modes configured",
			mutate: func(c *Config) {
				c.Stream.AuthKey = "key-xyz"
				c.Stream.AuthEmail = "ops@example.com"
			},
			wantErr: "ambiguous",
		},
		{
			name: "key without email is not a credential",
			mutate: func(c *Config) {
				c.Stream.APIToken = ""
				c.Stream.AuthKey = "key-xyz"
			},
			wantErr: "credentials missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateDisposition(t *testing.T) {
	cfg := validConfig()
	cfg.Stream.DeleteDisposition = "obliterate"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown disposition")
	}

	for _, d := range []string{DispositionKeep, DispositionMark, DispositionDelete} {
		cfg.Stream.DeleteDisposition = d
		if err := cfg.Validate(); err != nil {
			t.Fatalf("disposition %q should validate, got %v", d, err)
		}
	}
}

func TestValidateThumbnailRange(t *testing.T) {
	cfg := validConfig()
	cfg.Stream.DefaultThumbnailPct = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for thumbnail pct > 1")
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	yamlBody := `
stream:
  account_id: file-account
  api_token: file-token
  delete_disposition: mark
server:
  port: 9999
`
	if err := os.WriteFile(configFile, []byte(yamlBody), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(ConfigPathEnvVar, configFile)
	t.Setenv("CFSTREAM_ACCOUNT_ID", "env-account")
	t.Setenv("CFSTREAM_DEFAULT_ALLOWED_ORIGINS", "a.example.com, b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Env beats file.
	if cfg.Stream.AccountID != "env-account" {
		t.Errorf("AccountID = %q, want env-account", cfg.Stream.AccountID)
	}
	// File beats defaults.
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Stream.DeleteDisposition != DispositionMark {
		t.Errorf("DeleteDisposition = %q, want mark", cfg.Stream.DeleteDisposition)
	}
	// Defaults survive when not overridden.
	if cfg.Stream.SignedBufferSeconds != 10 {
		t.Errorf("SignedBufferSeconds = %d, want default 10", cfg.Stream.SignedBufferSeconds)
	}
	// Comma-separated env var becomes a slice.
	if len(cfg.Stream.DefaultAllowedOrigins) != 2 || cfg.Stream.DefaultAllowedOrigins[0] != "a.example.com" {
		t.Errorf("DefaultAllowedOrigins = %v, want [a.example.com b.example.com]", cfg.Stream.DefaultAllowedOrigins)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("stream:\n  account_id: acct\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, configFile)

	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail without credentials")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"CFSTREAM_ACCOUNT_ID", "stream.account_id"},
		{"CFSTREAM_SIGNING_KEY_PEM", "stream.signing_key_pem"},
		{"HTTP_PORT", "server.port"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"UNRELATED_VAR", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.key); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
