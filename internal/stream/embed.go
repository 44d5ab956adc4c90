// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
embed.go - Player embed and playback URL generation

Builds iframe player markup and manifest URLs locally, without a vendor
round-trip. When a video requires signed URLs, the token takes the uid's
position in the URL path.

Player options reference:
https://developers.cloudflare.com/stream/viewing-videos/using-the-stream-player
*/

package stream

import (
	"fmt"
	"html"
	"net/url"
)

// Delivery hosts for the iframe player and raw manifests.
const (
	iframeHost   = "https://iframe.videodelivery.net"
	deliveryHost = "https://videodelivery.net"
)

// PlayerOptions are the query parameters forwarded to the iframe player.
// Zero values are omitted from the URL.
type PlayerOptions struct {
	Autoplay bool
	Loop     bool
	Muted    bool
	// Controls defaults to true; set HideControls to drop the control bar.
	HideControls bool
	Preload      string // "none", "metadata" or "auto"
	Poster       string // absolute URL of a custom poster image
}

// queryValues renders the options as player query parameters.
func (o PlayerOptions) queryValues() url.Values {
	params := url.Values{}
	if o.Autoplay {
		params.Set("autoplay", "true")
	}
	if o.Loop {
		params.Set("loop", "true")
	}
	if o.Muted {
		params.Set("muted", "true")
	}
	if o.HideControls {
		params.Set("controls", "false")
	}
	if o.Preload != "" {
		params.Set("preload", o.Preload)
	}
	if o.Poster != "" {
		params.Set("poster", o.Poster)
	}
	return params
}

// PlaybackURLs returns the HLS and DASH manifest URLs for a video. Pass the
// signed token instead of the uid when the video requires signed URLs.
func PlaybackURLs(uidOrToken string) PlaybackSet {
	return PlaybackSet{
		HLS:  fmt.Sprintf("%s/%s/manifest/video.m3u8", deliveryHost, uidOrToken),
		Dash: fmt.Sprintf("%s/%s/manifest/video.mpd", deliveryHost, uidOrToken),
	}
}

// ThumbnailURL returns the poster frame URL for a video.
func ThumbnailURL(uidOrToken string) string {
	return fmt.Sprintf("%s/%s/thumbnails/thumbnail.jpg", deliveryHost, uidOrToken)
}

// IframePlayer renders responsive iframe markup for the player. ratio is the
// height/width percentage used for the padding-top aspect-ratio box; values
// <= 0 fall back to 16:9.
func IframePlayer(uidOrToken string, opts PlayerOptions, ratio float64) string {
	if ratio <= 0 {
		ratio = 9.0 / 16.0 * 100
	}

	src := fmt.Sprintf("%s/%s", iframeHost, uidOrToken)
	if params := opts.queryValues(); len(params) > 0 {
		src += "?" + params.Encode()
	}

	return fmt.Sprintf(
		`<div style="position:relative;padding-top:%.4f%%;">`+
			`<iframe src="%s" style="border:none;position:absolute;top:0;left:0;height:100%%;width:100%%;" `+
			`allow="accelerometer; gyroscope; autoplay; encrypted-media; picture-in-picture;" allowfullscreen="true"></iframe>`+
			`</div>`,
		ratio, html.EscapeString(src),
	)
}
