// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
client.go - Typed Cloudflare Stream endpoint operations

One method per vendor endpoint, all funneling through the transport layer.

API Reference: https://api.cloudflare.com/#stream-videos-properties
*/

package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// API is the operation surface the reconciliation engine consumes. Both
// Client and BreakerClient implement it.
type API interface {
	CreateFromURL(ctx context.Context, sourceURL string, opts CreateOptions) (*Video, error)
	Upload(ctx context.Context, path string) (string, error)
	VideoDetails(ctx context.Context, uid string) (*Video, error)
	ListVideos(ctx context.Context, opts ListOptions) ([]Video, error)
	SetMetaName(ctx context.Context, uid, name string) error
	SetSignedURLs(ctx context.Context, uid string, required bool) error
	SetAllowedOrigins(ctx context.Context, uid string, origins []string) error
	SetThumbnailTimestampPct(ctx context.Context, uid string, pct float64) error
	DeleteVideo(ctx context.Context, uid string) error
	IssueSignedToken(ctx context.Context, uid string, opts TokenOptions) (string, error)
	EmbedCode(ctx context.Context, uid string) (string, error)
	Dimensions(ctx context.Context, uid string) (width, height int, err error)
}

// Ensure Client implements API.
var _ API = (*Client)(nil)

// CreateOptions are the optional attributes for create-from-URL ingestion.
type CreateOptions struct {
	Name                  string
	AllowedOrigins        []string
	RequireSignedURLs     bool
	ThumbnailTimestampPct *float64
}

// ListOptions filter the video listing.
type ListOptions struct {
	Search string
	Status string
	// After is the creation-date cursor for pagination.
	After string
}

// TokenOptions control remote signed-token issuance.
type TokenOptions struct {
	// ExpiresUnix is the absolute exp claim. Zero lets the vendor apply its
	// default lifetime.
	ExpiresUnix  int64
	Downloadable bool
}

// copyRequest is the wire shape of the create-from-URL body.
type copyRequest struct {
	URL                   string            `json:"url"`
	Meta                  map[string]string `json:"meta,omitempty"`
	AllowedOrigins        []string          `json:"allowedOrigins,omitempty"`
	RequireSignedURLs     bool              `json:"requireSignedURLs,omitempty"`
	ThumbnailTimestampPct *float64          `json:"thumbnailTimestampPct,omitempty"`
}

// CreateFromURL asks the vendor to fetch and ingest a video from a URL.
// Preferred over direct upload when the source is reachable over HTTP: the
// vendor performs the transfer and the call returns without moving bytes.
// When the caller specifies no allowed origins, the client's configured
// defaults are injected.
func (c *Client) CreateFromURL(ctx context.Context, sourceURL string, opts CreateOptions) (*Video, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: source url is required", ErrInvalidInput)
	}

	body := copyRequest{
		URL:                   sourceURL,
		AllowedOrigins:        opts.AllowedOrigins,
		RequireSignedURLs:     opts.RequireSignedURLs,
		ThumbnailTimestampPct: opts.ThumbnailTimestampPct,
	}
	if opts.Name != "" {
		body.Meta = map[string]string{"name": opts.Name}
	}
	if len(body.AllowedOrigins) == 0 && len(c.defaultOrigins) > 0 {
		body.AllowedOrigins = c.defaultOrigins
	}

	var env videoEnvelope
	if err := c.requestJSON(ctx, "create_from_url", http.MethodPost, c.accountPath("copy"), body, &env); err != nil {
		return nil, err
	}
	if env.Result == nil || env.Result.UID == "" {
		return nil, &RemoteError{Status: http.StatusOK, Body: "copy response missing result.uid"}
	}

	return env.Result, nil
}

// VideoDetails fetches current status and metadata for a video.
// Returns ErrNotFound when the remote resource no longer exists.
func (c *Client) VideoDetails(ctx context.Context, uid string) (*Video, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}

	var env videoEnvelope
	if err := c.requestJSON(ctx, "video_details", http.MethodGet, c.accountPath(uid), nil, &env); err != nil {
		return nil, notFoundOr(err, uid)
	}
	if env.Result == nil {
		return nil, &RemoteError{Status: http.StatusOK, Body: "details response missing result"}
	}

	return env.Result, nil
}

// ListVideos returns the account's videos, filtered by opts. Used for
// full-catalog synchronization.
func (c *Client) ListVideos(ctx context.Context, opts ListOptions) ([]Video, error) {
	params := url.Values{}
	if opts.Search != "" {
		params.Set("search", opts.Search)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.After != "" {
		params.Set("after", opts.After)
	}

	path := c.accountPath("")
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var env videoListEnvelope
	if err := c.requestJSON(ctx, "list_videos", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}

	return env.Result, nil
}

// updateVideo posts a partial update for one remote attribute.
func (c *Client) updateVideo(ctx context.Context, op, uid string, fields map[string]interface{}) error {
	if uid == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}

	body := map[string]interface{}{"uid": uid}
	for k, v := range fields {
		body[k] = v
	}

	return c.requestJSON(ctx, op, http.MethodPost, c.accountPath(uid), body, nil)
}

// SetMetaName updates the remotely stored display name.
func (c *Client) SetMetaName(ctx context.Context, uid, name string) error {
	return c.updateVideo(ctx, "set_meta_name", uid, map[string]interface{}{
		"meta": map[string]string{"name": name},
	})
}

// SetSignedURLs toggles the signed-URL requirement.
func (c *Client) SetSignedURLs(ctx context.Context, uid string, required bool) error {
	return c.updateVideo(ctx, "set_signed_urls", uid, map[string]interface{}{
		"requireSignedURLs": required,
	})
}

// SetAllowedOrigins replaces the origin allow-list. Origins are hostnames
// only; anything containing a path separator is rejected before the call.
func (c *Client) SetAllowedOrigins(ctx context.Context, uid string, origins []string) error {
	for _, origin := range origins {
		if strings.Contains(origin, "/") {
			return fmt.Errorf("%w: allowed origin %q must be a bare hostname", ErrInvalidInput, origin)
		}
	}
	if origins == nil {
		origins = []string{}
	}
	return c.updateVideo(ctx, "set_allowed_origins", uid, map[string]interface{}{
		"allowedOrigins": origins,
	})
}

// SetThumbnailTimestampPct moves the poster frame to the given fraction of
// the video duration.
func (c *Client) SetThumbnailTimestampPct(ctx context.Context, uid string, pct float64) error {
	if pct < 0 || pct > 1 {
		return fmt.Errorf("%w: thumbnail timestamp pct %v outside [0,1]", ErrInvalidInput, pct)
	}
	return c.updateVideo(ctx, "set_thumbnail_pct", uid, map[string]interface{}{
		"thumbnailTimestampPct": pct,
	})
}

// DeleteVideo removes the remote video. Idempotent from the caller's
// perspective: a 404 means the resource is already gone and is success.
func (c *Client) DeleteVideo(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}

	err := c.requestJSON(ctx, "delete_video", http.MethodDelete, c.accountPath(uid), nil, nil)
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// CreateSigningKey generates an RSA key pair the vendor will accept for
// locally minted tokens. The private key PEM is disclosed exactly once;
// the operator must persist it into configuration.
func (c *Client) CreateSigningKey(ctx context.Context) (*SigningKey, error) {
	var env signingKeyEnvelope
	if err := c.requestJSON(ctx, "create_signing_key", http.MethodPost, c.accountPath("keys"), nil, &env); err != nil {
		return nil, err
	}
	if env.Result == nil || env.Result.ID == "" {
		return nil, &RemoteError{Status: http.StatusOK, Body: "signing key response missing result.id"}
	}
	return env.Result, nil
}

// ListSigningKeys returns the account's registered signing keys. Private key
// material is never included.
func (c *Client) ListSigningKeys(ctx context.Context) ([]SigningKey, error) {
	var env signingKeyListEnvelope
	if err := c.requestJSON(ctx, "list_signing_keys", http.MethodGet, c.accountPath("keys"), nil, &env); err != nil {
		return nil, err
	}
	return env.Result, nil
}

// DeleteSigningKey revokes a signing key.
func (c *Client) DeleteSigningKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return fmt.Errorf("%w: key id is required", ErrInvalidInput)
	}
	return c.requestJSON(ctx, "delete_signing_key", http.MethodDelete, c.accountPath("keys/"+keyID), nil, nil)
}

// IssueSignedToken requests a signed playback token from the vendor, as the
// server-side alternative to local signing.
func (c *Client) IssueSignedToken(ctx context.Context, uid string, opts TokenOptions) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}

	body := map[string]interface{}{}
	if opts.ExpiresUnix > 0 {
		body["exp"] = opts.ExpiresUnix
	}
	if opts.Downloadable {
		body["downloadable"] = true
	}

	var env tokenEnvelope
	if err := c.requestJSON(ctx, "issue_signed_token", http.MethodPost, c.accountPath(uid+"/token"), body, &env); err != nil {
		return "", notFoundOr(err, uid)
	}
	if env.Result.Token == "" {
		return "", &RemoteError{Status: http.StatusOK, Body: "token response missing result.token"}
	}
	return env.Result.Token, nil
}

// EmbedCode fetches the vendor-rendered embed HTML. The response is raw
// HTML, not JSON.
func (c *Client) EmbedCode(ctx context.Context, uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("%w: uid is required", ErrInvalidInput)
	}
	html, err := c.requestRaw(ctx, "embed_code", http.MethodGet, c.accountPath(uid+"/embed"))
	if err != nil {
		return "", notFoundOr(err, uid)
	}
	return html, nil
}

// Dimensions fetches input width and height for a video. Zeros mean the
// vendor has not processed the source far enough to know them.
func (c *Client) Dimensions(ctx context.Context, uid string) (width, height int, err error) {
	video, err := c.VideoDetails(ctx, uid)
	if err != nil {
		return 0, 0, err
	}
	width, height = video.Dimensions()
	return width, height, nil
}

// VerifyToken checks the configured bearer token against the vendor's
// verification endpoint. Only meaningful in bearer mode.
func (c *Client) VerifyToken(ctx context.Context) (*Envelope, error) {
	if c.token == "" {
		return nil, fmt.Errorf("%w: token verification requires bearer auth", ErrCredentialsMissing)
	}
	var env struct {
		Envelope
		Result struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"result"`
	}
	if err := c.requestJSON(ctx, "verify_token", http.MethodGet, "user/tokens/verify", nil, &env); err != nil {
		return nil, err
	}
	if env.Result.Status != "active" {
		return &env.Envelope, fmt.Errorf("stream: api token status is %q, want active", env.Result.Status)
	}
	return &env.Envelope, nil
}

// notFoundOr maps a 404 RemoteError to ErrNotFound with the uid attached,
// passing every other error through.
func notFoundOr(err error, uid string) error {
	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	return err
}
