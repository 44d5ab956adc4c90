// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

// Package server provides the admin HTTP surface: the protected-asset
// passthrough endpoint, catalog sync and refresh triggers, signing-key
// provisioning and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/record"
	"github.com/streamgate/streamgate/internal/store"
	"github.com/streamgate/streamgate/internal/stream"
)

// Engine is the reconciliation surface the admin routes trigger.
type Engine interface {
	SyncFromRemote(ctx context.Context) (int, error)
	RefreshUnready(ctx context.Context) (int, error)
}

// AdminAPI covers the account-level client operations not routed through the
// reconciliation engine.
type AdminAPI interface {
	CreateSigningKey(ctx context.Context) (*stream.SigningKey, error)
	VerifyToken(ctx context.Context) (*stream.Envelope, error)
}

// RecordStore loads records for the passthrough endpoint.
type RecordStore interface {
	Get(ctx context.Context, id int64) (*record.Video, error)
}

// Server is the admin HTTP server.
type Server struct {
	engine Engine
	api    AdminAPI
	store  RecordStore
	cfg    *config.ServerConfig

	httpServer *http.Server
}

// New assembles the server with its routes.
func New(engine Engine, api AdminAPI, st RecordStore, cfg *config.ServerConfig) *Server {
	s := &Server{
		engine: engine,
		api:    api,
		store:  st,
		cfg:    cfg,
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Timeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	// The passthrough endpoint is what the vendor's copy-from-URL fetcher
	// hits, so it lives outside the admin group.
	r.Get("/videos/{id}/data", s.handleVideoData)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/keys", s.handleCreateKey)
		r.Get("/token/verify", s.handleVerifyToken)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.httpServer.Addr).Msg("admin server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// handleVideoData streams a pending local file. Only records still waiting
// for upload are served; once the video lives remotely the file (if kept) is
// not re-exposed.
func (s *Server) handleVideoData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Error().Err(err).Int64("record_id", id).Msg("record lookup failed")
		}
		http.NotFound(w, r)
		return
	}
	if !rec.HasPendingFile() {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, rec.LocalFile)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	synced, err := s.engine.SyncFromRemote(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("catalog sync failed")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"synced": synced,
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"synced": synced})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshed, err := s.engine.RefreshUnready(r.Context())
	response := map[string]interface{}{"refreshed": refreshed}
	if err != nil {
		// Partial refreshes are still useful; report the failures alongside.
		response["error"] = err.Error()
		writeJSON(w, http.StatusMultiStatus, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleCreateKey provisions a signing key and renders the env snippet the
// operator must persist. The private key is never re-disclosed, so losing
// this response means provisioning a new key.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.api.CreateSigningKey(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("signing key creation failed")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id": key.ID,
		"env": fmt.Sprintf("CFSTREAM_SIGNING_KEY_ID=%s\nCFSTREAM_SIGNING_KEY_PEM=%s",
			key.ID, key.PEM),
	})
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	env, err := s.api.VerifyToken(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": env.Success})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("response encoding failed")
	}
}
