// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/streamgate/config.yaml",
	"/etc/streamgate/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			AccountID:             "",
			APIHost:               "https://api.cloudflare.com/client/v4",
			APIToken:              "",
			AuthKey:               "",
			AuthEmail:             "",
			DefaultAllowedOrigins: nil,
			SigningKeyID:          "",
			SigningKeyPEM:         "",
			CreateTokenWithAPI:    false,
			SignedTokenTTL:        time.Hour,
			SignedBufferSeconds:   10,
			KeepLocalVideo:        false,
			DeleteDisposition:     DispositionDelete,
			DefaultThumbnailPct:   0,
			RequestTimeout:        30 * time.Second,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8666,
			PublicBaseURL: "",
			Timeout:       30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/streamgate.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as env var strings.
var sliceConfigPaths = []string{
	"stream.default_allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// Already a slice from the YAML file.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Only listed variables are honored.
//
// Examples:
//   - CFSTREAM_ACCOUNT_ID -> stream.account_id
//   - CFSTREAM_SIGNING_KEY_PEM -> stream.signing_key_pem
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"cfstream_account_id":              "stream.account_id",
		"cfstream_api_host":                "stream.api_host",
		"cfstream_api_token":               "stream.api_token",
		"cfstream_auth_key":                "stream.auth_key",
		"cfstream_auth_email":              "stream.auth_email",
		"cfstream_default_allowed_origins": "stream.default_allowed_origins",
		"cfstream_signing_key_id":          "stream.signing_key_id",
		"cfstream_signing_key_pem":         "stream.signing_key_pem",
		"cfstream_create_token_with_api":   "stream.create_token_with_api",
		"cfstream_signed_token_ttl":        "stream.signed_token_ttl",
		"cfstream_signed_buffer_seconds":   "stream.signed_buffer_seconds",
		"cfstream_keep_local_video":        "stream.keep_local_video",
		"cfstream_delete_disposition":      "stream.delete_disposition",
		"cfstream_default_thumbnail_pct":   "stream.default_thumbnail_pct",
		"cfstream_request_timeout":         "stream.request_timeout",

		"http_host":       "server.host",
		"http_port":       "server.port",
		"http_timeout":    "server.timeout",
		"public_base_url": "server.public_base_url",

		"database_path": "database.path",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown env vars are dropped rather than guessed into config paths.
	return ""
}
