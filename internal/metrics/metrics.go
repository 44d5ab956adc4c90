// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

// Package metrics exposes Prometheus collectors for the Stream API client,
// the upload path and the reconciliation engine.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal counts Stream API calls by operation and HTTP status.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_api_requests_total",
			Help: "Total number of Cloudflare Stream API requests",
		},
		[]string{"operation", "status"},
	)

	// APIRequestDuration tracks Stream API call latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stream_api_request_duration_seconds",
			Help:    "Duration of Cloudflare Stream API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// UploadBytesTotal counts bytes transferred through the tus upload path.
	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_upload_bytes_total",
			Help: "Total bytes uploaded to Cloudflare Stream via tus",
		},
	)

	// UploadsTotal counts upload attempts by outcome path.
	// path: "copy" (URL-based) or "tus" (direct); result: "success" or "failure".
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_uploads_total",
			Help: "Total upload attempts by path and result",
		},
		[]string{"path", "result"},
	)

	// ReconcileOperations counts engine operations by kind and result.
	ReconcileOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_reconcile_operations_total",
			Help: "Total reconciliation engine operations",
		},
		[]string{"operation", "result"},
	)

	// CircuitBreakerState reports breaker state: 0=closed, 1=half-open, 2=open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerRequests counts requests through the breaker by outcome.
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker",
		},
		[]string{"name", "result"},
	)

	// SignedTokensIssued counts signed playback tokens by issuer.
	// issuer: "local" (RS256 signer) or "remote" (vendor token endpoint).
	SignedTokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_signed_tokens_issued_total",
			Help: "Total signed playback tokens issued",
		},
		[]string{"issuer"},
	)
)

// ObserveAPIRequest records one API call with its status code and duration.
func ObserveAPIRequest(operation string, status int, seconds float64) {
	APIRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(operation).Observe(seconds)
}
