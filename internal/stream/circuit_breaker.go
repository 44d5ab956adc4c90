// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/metrics"
)

// BreakerClient wraps an API with a circuit breaker so a degraded vendor API
// cannot stall every admin page that triggers a synchronous refresh.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests should exercise the wrapped client directly rather than mocking
// breaker timing.
type BreakerClient struct {
	api  API
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// Ensure BreakerClient implements API.
var _ API = (*BreakerClient)(nil)

// NewBreakerClient wraps api with a circuit breaker.
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(api API) *BreakerClient {
	cbName := "stream-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("opening stream API circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("stream API circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},

		// A 404 is a definitive answer and missing credentials fail before
		// any network I/O; neither says anything about vendor health, so
		// neither may count toward opening the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrInvalidInput) ||
				errors.Is(err, ErrCredentialsMissing)
		},
	})

	return &BreakerClient{api: api, cb: cb, name: cbName}
}

// execute runs one API call through the breaker, recording metrics.
func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("stream API request rejected by circuit breaker")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

// castResult type-casts a breaker result, guarding against wiring mistakes.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("stream: circuit breaker returned unexpected type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (b *BreakerClient) CreateFromURL(ctx context.Context, sourceURL string, opts CreateOptions) (*Video, error) {
	return castResult[*Video](b.execute(func() (interface{}, error) {
		return b.api.CreateFromURL(ctx, sourceURL, opts)
	}))
}

func (b *BreakerClient) Upload(ctx context.Context, path string) (string, error) {
	return castResult[string](b.execute(func() (interface{}, error) {
		return b.api.Upload(ctx, path)
	}))
}

func (b *BreakerClient) VideoDetails(ctx context.Context, uid string) (*Video, error) {
	return castResult[*Video](b.execute(func() (interface{}, error) {
		return b.api.VideoDetails(ctx, uid)
	}))
}

func (b *BreakerClient) ListVideos(ctx context.Context, opts ListOptions) ([]Video, error) {
	return castResult[[]Video](b.execute(func() (interface{}, error) {
		return b.api.ListVideos(ctx, opts)
	}))
}

func (b *BreakerClient) SetMetaName(ctx context.Context, uid, name string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.api.SetMetaName(ctx, uid, name)
	})
	return err
}

func (b *BreakerClient) SetSignedURLs(ctx context.Context, uid string, required bool) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.api.SetSignedURLs(ctx, uid, required)
	})
	return err
}

func (b *BreakerClient) SetAllowedOrigins(ctx context.Context, uid string, origins []string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.api.SetAllowedOrigins(ctx, uid, origins)
	})
	return err
}

func (b *BreakerClient) SetThumbnailTimestampPct(ctx context.Context, uid string, pct float64) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.api.SetThumbnailTimestampPct(ctx, uid, pct)
	})
	return err
}

func (b *BreakerClient) DeleteVideo(ctx context.Context, uid string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.api.DeleteVideo(ctx, uid)
	})
	return err
}

func (b *BreakerClient) IssueSignedToken(ctx context.Context, uid string, opts TokenOptions) (string, error) {
	return castResult[string](b.execute(func() (interface{}, error) {
		return b.api.IssueSignedToken(ctx, uid, opts)
	}))
}

func (b *BreakerClient) EmbedCode(ctx context.Context, uid string) (string, error) {
	return castResult[string](b.execute(func() (interface{}, error) {
		return b.api.EmbedCode(ctx, uid)
	}))
}

func (b *BreakerClient) Dimensions(ctx context.Context, uid string) (width, height int, err error) {
	result, err := b.execute(func() (interface{}, error) {
		w, h, derr := b.api.Dimensions(ctx, uid)
		if derr != nil {
			return nil, derr
		}
		return [2]int{w, h}, nil
	})
	if err != nil {
		return 0, 0, err
	}
	dims, err := castResult[[2]int](result, nil)
	if err != nil {
		return 0, 0, err
	}
	return dims[0], dims[1], nil
}
