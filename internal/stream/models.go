// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
models.go - Typed Cloudflare Stream API response schemas

Every endpoint decodes into an explicit struct; the vendor's documented
variability is modeled with pointer fields (input is absent until processing
starts, duration is -1 before it completes).

API Reference: https://api.cloudflare.com/#stream-videos-properties
*/

package stream

// Video status states as reported by the vendor. Monotonic except error,
// which is terminal but externally retriable.
const (
	StatusScheduled   = "scheduled" // local-only: queued for a deferred upload
	StatusDownloading = "downloading"
	StatusQueued      = "queued"
	StatusInProgress  = "inprogress"
	StatusReady       = "ready"
	StatusError       = "error"
)

// Envelope is the standard Cloudflare v4 response wrapper.
type Envelope struct {
	Success    bool         `json:"success"`
	Errors     []APIMessage `json:"errors"`
	Messages   []APIMessage `json:"messages"`
	ResultInfo *ResultInfo  `json:"result_info,omitempty"`
}

// APIMessage is one entry of the envelope's errors or messages arrays.
type APIMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResultInfo carries list pagination counters.
type ResultInfo struct {
	Count      int `json:"count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalCount int `json:"total_count"`
}

// Video is a remote video resource.
type Video struct {
	UID                   string       `json:"uid"`
	Thumbnail             string       `json:"thumbnail"`
	ThumbnailTimestampPct float64      `json:"thumbnailTimestampPct"`
	ReadyToStream         bool         `json:"readyToStream"`
	Status                VideoStatus  `json:"status"`
	Meta                  VideoMeta    `json:"meta"`
	Created               string       `json:"created"`
	Modified              string       `json:"modified"`
	Size                  int64        `json:"size"`
	Preview               string       `json:"preview"`
	AllowedOrigins        []string     `json:"allowedOrigins"`
	RequireSignedURLs     bool         `json:"requireSignedURLs"`
	Uploaded              string       `json:"uploaded"`
	Duration              float64      `json:"duration"` // -1 until processed
	Input                 *VideoInput  `json:"input,omitempty"`
	Playback              *PlaybackSet `json:"playback,omitempty"`
}

// VideoStatus is the processing state block.
type VideoStatus struct {
	State       string `json:"state"`
	PctComplete string `json:"pctComplete,omitempty"`
	ErrorCode   string `json:"errorReasonCode,omitempty"`
	ErrorText   string `json:"errorReasonText,omitempty"`
}

// VideoMeta holds remotely stored metadata. Name is the only field this
// system writes.
type VideoMeta struct {
	Name           string `json:"name,omitempty"`
	Filename       string `json:"filename,omitempty"`
	Filetype       string `json:"filetype,omitempty"`
	DownloadedFrom string `json:"downloaded-from,omitempty"`
}

// VideoInput carries source dimensions. Absent until processing begins;
// width and height are -1 before they are known.
type VideoInput struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PlaybackSet holds the manifest URLs for a processed video.
type PlaybackSet struct {
	HLS  string `json:"hls"`
	Dash string `json:"dash"`
}

// SigningKey is the result of signing-key creation. PEM and JWK are returned
// exactly once; the vendor never re-discloses the private key.
type SigningKey struct {
	ID      string `json:"id"`
	PEM     string `json:"pem,omitempty"`
	JWK     string `json:"jwk,omitempty"`
	Created string `json:"created,omitempty"`
}

// videoEnvelope wraps a single-video result.
type videoEnvelope struct {
	Envelope
	Result *Video `json:"result"`
}

// videoListEnvelope wraps a video listing result.
type videoListEnvelope struct {
	Envelope
	Result []Video `json:"result"`
}

// signingKeyEnvelope wraps signing-key creation and listing results.
type signingKeyEnvelope struct {
	Envelope
	Result *SigningKey `json:"result"`
}

type signingKeyListEnvelope struct {
	Envelope
	Result []SigningKey `json:"result"`
}

// tokenEnvelope wraps the remote signed-token issuance result.
type tokenEnvelope struct {
	Envelope
	Result struct {
		Token string `json:"token"`
	} `json:"result"`
}

// IsReady reports whether the video finished processing.
func (v *Video) IsReady() bool {
	return v.Status.State == StatusReady
}

// Dimensions returns input width and height, or zeros when input is absent
// or the vendor still reports -1 placeholders.
func (v *Video) Dimensions() (width, height int) {
	if v.Input == nil {
		return 0, 0
	}
	if v.Input.Width < 0 || v.Input.Height < 0 {
		return 0, 0
	}
	return v.Input.Width, v.Input.Height
}
