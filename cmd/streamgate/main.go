// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

// Package main is the entry point for the Streamgate daemon.
//
// Streamgate keeps a CMS video library in sync with a Cloudflare Stream
// account: it pushes pending local files (copy-from-URL with a tus fallback),
// reconciles metadata edits, refreshes processing status, mints signed
// playback tokens and renders embed markup. An admin HTTP server exposes
// catalog sync, bulk refresh, signing-key provisioning, API token
// verification and Prometheus metrics, plus the passthrough endpoint that
// lets the vendor fetch protected local files.
//
// Configuration is loaded via Koanf with layered sources (highest priority
// wins): environment variables (CFSTREAM_*, HTTP_*, LOG_*), an optional
// config.yaml, then built-in defaults. Exactly one credential mode must be
// set: CFSTREAM_API_TOKEN, or CFSTREAM_AUTH_KEY with CFSTREAM_AUTH_EMAIL.
//
// The daemon shuts down gracefully on SIGINT and SIGTERM, draining in-flight
// requests before closing the record store.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/reconcile"
	"github.com/streamgate/streamgate/internal/server"
	"github.com/streamgate/streamgate/internal/store"
	"github.com/streamgate/streamgate/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("account_id", cfg.Stream.AccountID).
		Str("db_path", cfg.Database.Path).
		Str("delete_disposition", cfg.Stream.DeleteDisposition).
		Msg("Starting Streamgate")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open record store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing record store")
		}
	}()

	client := stream.NewClient(&cfg.Stream)
	api := stream.NewBreakerClient(client)

	var signer reconcile.TokenSigner
	if cfg.Stream.SigningKeyID != "" && cfg.Stream.SigningKeyPEM != "" {
		s, err := stream.NewTokenSigner(cfg.Stream.SigningKeyID, cfg.Stream.SigningKeyPEM, cfg.Stream.SignedTokenTTL)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to parse signing key")
		}
		signer = s
		logging.Info().Str("key_id", cfg.Stream.SigningKeyID).Msg("Local token signing enabled")
	} else if !cfg.Stream.CreateTokenWithAPI {
		logging.Warn().Msg("No signing key configured; signed-URL playback will fail until one is provisioned")
	}

	engine := reconcile.New(api, st, signer, &cfg.Stream, cfg.Server.PublicBaseURL)
	srv := server.New(engine, client, st, &cfg.Server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("Admin server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logging.Error().Err(err).Msg("Error during server shutdown")
	}

	logging.Info().Msg("Streamgate stopped")
}
