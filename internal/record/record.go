// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
record.go - Local video record mirroring a remote stream resource

A record is the CMS-side row for one video. It tracks which mirrored fields
changed since the last store load so the reconciliation engine can push only
the deltas.
*/

package record

import (
	"errors"
	"strings"

	"github.com/streamgate/streamgate/internal/stream"
)

// Mirrored field names, as reported by ChangedFields.
const (
	FieldName                  = "name"
	FieldRequireSignedURLs     = "requireSignedURLs"
	FieldAllowedOrigins        = "allowedOrigins"
	FieldThumbnailTimestampPct = "thumbnailTimestampPct"
)

// ErrInvalidRecord means a record satisfies neither half of the persistence
// invariant: it has no remote uid and no pending local file.
var ErrInvalidRecord = errors.New("record: needs a remote uid or a local file")

// Video is one locally tracked video. The mirrored fields (Name,
// RequireSignedURLs, AllowedOrigins, ThumbnailTimestampPct) are writable on
// both sides and reconciled; the rest is remote-owned state cached for
// display.
type Video struct {
	ID  int64
	UID string

	Name                  string
	RequireSignedURLs     bool
	AllowedOrigins        string // newline-delimited hostnames
	ThumbnailTimestampPct float64

	StatusState   string
	StatusErrors  string
	StatusMessage string
	ReadyToStream bool

	Size     int64
	Width    int
	Height   int
	Duration float64

	PreviewURL   string
	ThumbnailURL string

	// LocalFile is the path of a not-yet-uploaded source file. Cleared after
	// a successful upload unless the operator keeps local copies.
	LocalFile string

	snapshot *fieldSnapshot
}

// fieldSnapshot is the mirrored-field state at load time.
type fieldSnapshot struct {
	name                  string
	requireSignedURLs     bool
	allowedOrigins        string
	thumbnailTimestampPct float64
}

// Validate enforces the persistence invariant: every record references a
// remote video, a pending local file, or both.
func (v *Video) Validate() error {
	if v.UID == "" && v.LocalFile == "" {
		return ErrInvalidRecord
	}
	return nil
}

// HasPendingFile reports whether the record holds a local file that has not
// been uploaded yet.
func (v *Video) HasPendingFile() bool {
	return v.UID == "" && v.LocalFile != ""
}

// IsReady reports whether the remote video finished processing.
func (v *Video) IsReady() bool {
	return v.StatusState == stream.StatusReady
}

// Snapshot records the current mirrored-field values as the comparison
// baseline. The store calls this after every load and save.
func (v *Video) Snapshot() {
	v.snapshot = &fieldSnapshot{
		name:                  v.Name,
		requireSignedURLs:     v.RequireSignedURLs,
		allowedOrigins:        v.AllowedOrigins,
		thumbnailTimestampPct: v.ThumbnailTimestampPct,
	}
}

// ChangedFields returns the mirrored fields whose values differ from the last
// snapshot. Without a snapshot every mirrored field counts as changed, so a
// record built from scratch pushes its full state.
func (v *Video) ChangedFields() []string {
	if v.snapshot == nil {
		return []string{FieldName, FieldRequireSignedURLs, FieldAllowedOrigins, FieldThumbnailTimestampPct}
	}

	var changed []string
	if v.Name != v.snapshot.name {
		changed = append(changed, FieldName)
	}
	if v.RequireSignedURLs != v.snapshot.requireSignedURLs {
		changed = append(changed, FieldRequireSignedURLs)
	}
	if v.AllowedOrigins != v.snapshot.allowedOrigins {
		changed = append(changed, FieldAllowedOrigins)
	}
	if v.ThumbnailTimestampPct != v.snapshot.thumbnailTimestampPct {
		changed = append(changed, FieldThumbnailTimestampPct)
	}
	return changed
}

// AllowedOriginsList decodes the newline-delimited origin field. Surrounding
// whitespace is trimmed and blank lines are dropped, so a trailing newline in
// an admin textarea does not produce an empty origin.
func (v *Video) AllowedOriginsList() []string {
	if v.AllowedOrigins == "" {
		return nil
	}
	var origins []string
	for _, line := range strings.Split(v.AllowedOrigins, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		origins = append(origins, line)
	}
	return origins
}

// SetAllowedOriginsList encodes origins into the newline-delimited field.
func (v *Video) SetAllowedOriginsList(origins []string) {
	v.AllowedOrigins = strings.Join(origins, "\n")
}

// ApplyRemote overwrites the record from a fetched resource and adopts its
// uid. The caller pushes pending local edits before refreshing, so the remote
// values are authoritative here.
func (v *Video) ApplyRemote(remote *stream.Video) {
	v.UID = remote.UID

	v.StatusState = remote.Status.State
	v.StatusErrors = remote.Status.ErrorCode
	v.StatusMessage = remote.Status.ErrorText
	v.ReadyToStream = remote.ReadyToStream

	v.Size = remote.Size
	v.Duration = remote.Duration
	if width, height := remote.Dimensions(); width > 0 {
		v.Width = width
		v.Height = height
	}

	v.PreviewURL = remote.Preview
	v.ThumbnailURL = remote.Thumbnail

	if remote.Meta.Name != "" {
		v.Name = remote.Meta.Name
	}
	v.SetAllowedOriginsList(remote.AllowedOrigins)
	v.RequireSignedURLs = remote.RequireSignedURLs
	v.ThumbnailTimestampPct = remote.ThumbnailTimestampPct
}
