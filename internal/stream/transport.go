// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
transport.go - Authenticated HTTP request layer

All Stream API calls funnel through Client.do: credential headers, client-side
rate limiting, metrics and error classification live here. No retries are
performed at this layer; retry and fallback policy belongs to the caller.
*/

package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/metrics"
)

// Cloudflare's global API budget is 1200 requests per 5 minutes. A 4 rps
// steady rate with a small burst stays comfortably inside it.
const (
	apiRate  = 4
	apiBurst = 8
)

// Client talks to the Cloudflare Stream API for one account.
// It is immutable after construction and safe for concurrent use.
type Client struct {
	apiHost        string
	accountID      string
	token          string
	authKey        string
	authEmail      string
	defaultOrigins []string

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Stream API client from the immutable configuration.
// Credential completeness is checked per request, not here, so a client for
// an unconfigured installation can still be constructed and reported on.
func NewClient(cfg *config.StreamConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		apiHost:        strings.TrimSuffix(cfg.APIHost, "/"),
		accountID:      cfg.AccountID,
		token:          cfg.APIToken,
		authKey:        cfg.AuthKey,
		authEmail:      cfg.AuthEmail,
		defaultOrigins: append([]string(nil), cfg.DefaultAllowedOrigins...),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(apiRate), apiBurst),
	}
}

// accountPath builds an API path under this client's account.
func (c *Client) accountPath(suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("accounts/%s/stream", c.accountID)
	}
	return fmt.Sprintf("accounts/%s/stream/%s", c.accountID, suffix)
}

// authHeaders returns the credential headers for the configured mode.
// Exactly one mode must be configured.
func (c *Client) authHeaders() (map[string]string, error) {
	switch {
	case c.token != "":
		return map[string]string{"Authorization": "Bearer " + c.token}, nil
	case c.authKey != "" && c.authEmail != "":
		return map[string]string{
			"X-Auth-Key":   c.authKey,
			"X-Auth-Email": c.authEmail,
		}, nil
	default:
		return nil, ErrCredentialsMissing
	}
}

// do performs one authenticated request. The operation name labels metrics
// and log lines. Transport failures come back as *TransportError; the
// response is returned regardless of status so callers classify it.
func (c *Client) do(ctx context.Context, op, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	auth, err := c.authHeaders()
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range auth {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		// net/http derives the wire Content-Length from req.ContentLength,
		// not the header map. Needed for streamed upload bodies.
		if http.CanonicalHeaderKey(k) == "Content-Length" {
			if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				req.ContentLength = n
			}
			continue
		}
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(op, 0, time.Since(start).Seconds())
		return nil, &TransportError{Err: err}
	}
	metrics.ObserveAPIRequest(op, resp.StatusCode, time.Since(start).Seconds())

	return resp, nil
}

// requestJSON performs a JSON round-trip against an API path. A non-nil
// payload is encoded as the request body; a non-nil out receives the decoded
// response. Statuses >= 300 become *RemoteError (404 included; callers that
// treat 404 specially map it to ErrNotFound themselves).
func (c *Client) requestJSON(ctx context.Context, op, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	resp, err := c.do(ctx, op, method, c.apiHost+"/"+path, body, headers)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return remoteErrorFromResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	return nil
}

// requestRaw performs a request whose response body is not JSON (the embed
// HTML endpoint) and returns it as a string.
func (c *Client) requestRaw(ctx context.Context, op, method, path string) (string, error) {
	resp, err := c.do(ctx, op, method, c.apiHost+"/"+path, nil, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return "", remoteErrorFromResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", op, err)
	}
	return string(raw), nil
}

// remoteErrorFromResponse drains the body into a RemoteError. The body is
// truncated to keep error strings and logs bounded.
func remoteErrorFromResponse(resp *http.Response) *RemoteError {
	const maxBody = 2048
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &RemoteError{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(raw)),
	}
}
