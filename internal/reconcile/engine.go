// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
engine.go - Reconciliation between local records and remote stream state

The engine owns every state transition of a record: first upload, metadata
pushes, status refresh, deletion dispositions, embed rendering. It never
swallows a failed remote mutation; the one deliberate suppression is a 404 on
delete, which means the resource is already gone.
*/

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/metrics"
	"github.com/streamgate/streamgate/internal/record"
	"github.com/streamgate/streamgate/internal/store"
	"github.com/streamgate/streamgate/internal/stream"
)

// Store is the record persistence surface the engine needs.
type Store interface {
	Update(ctx context.Context, v *record.Video) error
	Delete(ctx context.Context, id int64) error
	GetByUID(ctx context.Context, uid string) (*record.Video, error)
	UpsertByUID(ctx context.Context, v *record.Video) (*record.Video, error)
	ListUnready(ctx context.Context) ([]*record.Video, error)
}

// TokenSigner mints local signed playback tokens.
type TokenSigner interface {
	SignWithTTL(uid string, ttl time.Duration) (string, error)
}

// Engine reconciles local video records with the remote account.
type Engine struct {
	api    stream.API
	store  Store
	signer TokenSigner // nil when no signing key is configured
	cfg    *config.StreamConfig

	// publicBaseURL is this daemon's externally reachable base URL. When set,
	// pending files are offered to the vendor over the passthrough endpoint so
	// the copy path works for protected assets.
	publicBaseURL string
}

// New builds an engine. signer may be nil; signed-URL operations will then
// fail with ErrSigningKeyMissing unless remote issuance is configured.
func New(api stream.API, st Store, signer TokenSigner, cfg *config.StreamConfig, publicBaseURL string) *Engine {
	return &Engine{
		api:           api,
		store:         st,
		signer:        signer,
		cfg:           cfg,
		publicBaseURL: publicBaseURL,
	}
}

// sourceURL returns the URL the vendor can fetch the pending file from, or ""
// when the file is not reachable from outside.
func (e *Engine) sourceURL(rec *record.Video) string {
	if e.publicBaseURL == "" || rec.ID == 0 {
		return ""
	}
	return fmt.Sprintf("%s/videos/%d/data", e.publicBaseURL, rec.ID)
}

// UploadPendingFile pushes a record's local file to the remote account. The
// copy-from-URL path is tried first; the tus path is the fallback for
// failures a different transfer route can plausibly get around. Only on
// success does the record change: the uid is adopted and, unless the operator
// keeps local copies, the file is removed. The transition is one-way.
func (e *Engine) UploadPendingFile(ctx context.Context, rec *record.Video) error {
	if !rec.HasPendingFile() {
		return fmt.Errorf("%w: record has no pending file", stream.ErrInvalidInput)
	}
	if _, err := os.Stat(rec.LocalFile); err != nil {
		return fmt.Errorf("%w: local file %s is not readable", stream.ErrInvalidInput, rec.LocalFile)
	}

	uid, err := e.uploadViaCopy(ctx, rec)
	if err != nil {
		if !stream.Retriable(err) {
			metrics.ReconcileOperations.WithLabelValues("upload", "failure").Inc()
			return err
		}
		logging.Warn().Err(err).Int64("record_id", rec.ID).
			Msg("copy upload failed, falling back to direct upload")

		uid, err = e.api.Upload(ctx, rec.LocalFile)
		if err != nil {
			metrics.UploadsTotal.WithLabelValues("tus", "failure").Inc()
			metrics.ReconcileOperations.WithLabelValues("upload", "failure").Inc()
			return fmt.Errorf("both upload paths failed: %w", err)
		}
		metrics.UploadsTotal.WithLabelValues("tus", "success").Inc()
	}

	rec.UID = uid
	rec.StatusState = stream.StatusQueued
	e.cleanupLocalFile(rec)

	if err := e.store.Update(ctx, rec); err != nil {
		return err
	}

	metrics.ReconcileOperations.WithLabelValues("upload", "success").Inc()
	logging.Info().Int64("record_id", rec.ID).Str("uid", uid).Msg("local file pushed to stream")
	return nil
}

// uploadViaCopy attempts the copy-from-URL ingestion path.
func (e *Engine) uploadViaCopy(ctx context.Context, rec *record.Video) (string, error) {
	source := e.sourceURL(rec)
	if source == "" {
		return "", fmt.Errorf("%w: no reachable source url for record", stream.ErrInvalidInput)
	}

	name := rec.Name
	if name == "" {
		name = filepath.Base(rec.LocalFile)
	}

	opts := stream.CreateOptions{
		Name:              name,
		AllowedOrigins:    rec.AllowedOriginsList(),
		RequireSignedURLs: rec.RequireSignedURLs,
	}
	// The record's poster-frame choice wins; the configured default covers
	// records that never picked one.
	if pct := rec.ThumbnailTimestampPct; pct > 0 {
		opts.ThumbnailTimestampPct = &pct
	} else if pct := e.cfg.DefaultThumbnailPct; pct > 0 {
		opts.ThumbnailTimestampPct = &pct
	}

	video, err := e.api.CreateFromURL(ctx, source, opts)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("copy", "failure").Inc()
		return "", err
	}

	metrics.UploadsTotal.WithLabelValues("copy", "success").Inc()
	return video.UID, nil
}

// cleanupLocalFile removes the uploaded source file unless configured to keep
// it. Removal failures are logged, not surfaced: the remote push succeeded
// and must not be reported as failed over local disk state.
func (e *Engine) cleanupLocalFile(rec *record.Video) {
	if rec.LocalFile == "" {
		return
	}
	if e.cfg.KeepLocalVideo {
		return
	}
	if err := os.Remove(rec.LocalFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn().Err(err).Str("path", rec.LocalFile).Msg("could not remove uploaded local file")
	}
	rec.LocalFile = ""
}

// Synchronize is the persist hook: it brings the remote resource in line with
// a record that was just edited. Pending files are uploaded; otherwise each
// changed mirrored field is pushed independently and failures are aggregated,
// so one rejected field does not block the rest. While the video is not ready
// the record is additionally refreshed from remote.
func (e *Engine) Synchronize(ctx context.Context, rec *record.Video) error {
	if rec.HasPendingFile() {
		return e.UploadPendingFile(ctx, rec)
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	var errs []error
	for _, field := range rec.ChangedFields() {
		if err := e.pushField(ctx, rec, field); err != nil {
			errs = append(errs, fmt.Errorf("push %s: %w", field, err))
		}
	}

	if !rec.IsReady() {
		if err := e.refresh(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("refresh: %w", err))
		}
	}

	// Some responses omit input until processing completes; fetch dimensions
	// explicitly when the refresh left them unknown.
	if rec.Width <= 0 {
		if width, height, err := e.api.Dimensions(ctx, rec.UID); err == nil && width > 0 {
			rec.Width = width
			rec.Height = height
		}
	}

	if err := e.store.Update(ctx, rec); err != nil {
		errs = append(errs, err)
	}

	result := "success"
	if len(errs) > 0 {
		result = "failure"
	}
	metrics.ReconcileOperations.WithLabelValues("synchronize", result).Inc()

	return errors.Join(errs...)
}

// pushField sends one mirrored field to the remote resource.
func (e *Engine) pushField(ctx context.Context, rec *record.Video, field string) error {
	switch field {
	case record.FieldName:
		return e.api.SetMetaName(ctx, rec.UID, rec.Name)
	case record.FieldRequireSignedURLs:
		return e.api.SetSignedURLs(ctx, rec.UID, rec.RequireSignedURLs)
	case record.FieldAllowedOrigins:
		return e.api.SetAllowedOrigins(ctx, rec.UID, rec.AllowedOriginsList())
	case record.FieldThumbnailTimestampPct:
		return e.api.SetThumbnailTimestampPct(ctx, rec.UID, rec.ThumbnailTimestampPct)
	default:
		return fmt.Errorf("unknown mirrored field %q", field)
	}
}

// refresh overwrites the record from the remote resource without persisting.
func (e *Engine) refresh(ctx context.Context, rec *record.Video) error {
	video, err := e.api.VideoDetails(ctx, rec.UID)
	if err != nil {
		return err
	}
	rec.ApplyRemote(video)
	return nil
}

// RefreshStatus pulls the remote state into the record and persists it.
// A vanished remote video propagates as ErrNotFound so the host CMS can
// decide what to do with the orphaned record.
func (e *Engine) RefreshStatus(ctx context.Context, rec *record.Video) error {
	if rec.UID == "" {
		return fmt.Errorf("%w: record has no remote uid", stream.ErrInvalidInput)
	}
	if err := e.refresh(ctx, rec); err != nil {
		metrics.ReconcileOperations.WithLabelValues("refresh", "failure").Inc()
		return err
	}
	if err := e.store.Update(ctx, rec); err != nil {
		return err
	}
	metrics.ReconcileOperations.WithLabelValues("refresh", "success").Inc()
	return nil
}

// RefreshUnready refreshes every record whose remote processing has not
// finished. Per-record failures are aggregated; the batch continues.
func (e *Engine) RefreshUnready(ctx context.Context) (int, error) {
	records, err := e.store.ListUnready(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	refreshed := 0
	for _, rec := range records {
		if err := e.RefreshStatus(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("record %d (%s): %w", rec.ID, rec.UID, err))
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

// DeleteRemote handles the remote side of a record deletion according to the
// configured disposition, then removes the local file and the record row.
// Local cleanup proceeds regardless of disposition.
func (e *Engine) DeleteRemote(ctx context.Context, rec *record.Video, disposition string) error {
	if rec.UID != "" {
		switch disposition {
		case config.DispositionKeep:
			// Remote resource is left untouched.
		case config.DispositionMark:
			if err := e.api.SetMetaName(ctx, rec.UID, "DELETED: "+rec.Name); err != nil {
				metrics.ReconcileOperations.WithLabelValues("delete", "failure").Inc()
				return fmt.Errorf("marking remote video: %w", err)
			}
		case config.DispositionDelete:
			if err := e.api.DeleteVideo(ctx, rec.UID); err != nil {
				metrics.ReconcileOperations.WithLabelValues("delete", "failure").Inc()
				return fmt.Errorf("deleting remote video: %w", err)
			}
		default:
			return fmt.Errorf("unknown delete disposition %q", disposition)
		}
	}

	if rec.LocalFile != "" {
		if err := os.Remove(rec.LocalFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", rec.LocalFile).Msg("could not remove local file on delete")
		}
	}

	if err := e.store.Delete(ctx, rec.ID); err != nil {
		return err
	}
	metrics.ReconcileOperations.WithLabelValues("delete", "success").Inc()
	return nil
}

// MintSignedToken issues a playback token for the record's video. The local
// signer is the default; remote issuance through the vendor endpoint takes
// over when configured. The buffer keeps a token minted at render time valid
// through the page load.
func (e *Engine) MintSignedToken(ctx context.Context, rec *record.Video) (string, error) {
	if rec.UID == "" {
		return "", fmt.Errorf("%w: record has no remote uid", stream.ErrInvalidInput)
	}

	ttl := e.cfg.SignedTokenTTL + time.Duration(e.cfg.SignedBufferSeconds)*time.Second

	if e.cfg.CreateTokenWithAPI {
		token, err := e.api.IssueSignedToken(ctx, rec.UID, stream.TokenOptions{
			ExpiresUnix: time.Now().Add(ttl).Unix(),
		})
		if err != nil {
			return "", err
		}
		metrics.SignedTokensIssued.WithLabelValues("remote").Inc()
		return token, nil
	}

	if e.signer == nil {
		return "", stream.ErrSigningKeyMissing
	}
	return e.signer.SignWithTTL(rec.UID, ttl)
}

// GenerateEmbed renders iframe player markup for the record. A not-yet-ready
// record is refreshed first; that refresh failing does not block rendering,
// the player shows the vendor's processing state instead. When the video
// requires signed URLs a freshly minted token takes the uid's place.
func (e *Engine) GenerateEmbed(ctx context.Context, rec *record.Video, opts stream.PlayerOptions) (string, error) {
	if rec.UID == "" {
		return "", fmt.Errorf("%w: record has no remote uid", stream.ErrInvalidInput)
	}

	if !rec.IsReady() {
		if err := e.RefreshStatus(ctx, rec); err != nil {
			logging.Warn().Err(err).Str("uid", rec.UID).Msg("status refresh before embed failed")
		}
	}

	ident := rec.UID
	if rec.RequireSignedURLs {
		token, err := e.MintSignedToken(ctx, rec)
		if err != nil {
			return "", fmt.Errorf("signed embed requires a token: %w", err)
		}
		ident = token
	}

	ratio := 0.0
	if rec.Width > 0 && rec.Height > 0 {
		ratio = float64(rec.Height) / float64(rec.Width) * 100
	}

	return stream.IframePlayer(ident, opts, ratio), nil
}

// PlaybackURLs returns manifest URLs for the record, substituting a signed
// token when required.
func (e *Engine) PlaybackURLs(ctx context.Context, rec *record.Video) (stream.PlaybackSet, error) {
	ident := rec.UID
	if rec.RequireSignedURLs {
		token, err := e.MintSignedToken(ctx, rec)
		if err != nil {
			return stream.PlaybackSet{}, err
		}
		ident = token
	}
	return stream.PlaybackURLs(ident), nil
}

// SyncFromRemote pulls the full remote catalog and upserts a local record per
// video. Records that already track a uid keep their local-only state (file
// reference, store id); everything remote-owned is overwritten. Returns the
// number of videos processed.
func (e *Engine) SyncFromRemote(ctx context.Context) (int, error) {
	synced := 0
	cursor := ""

	for {
		videos, err := e.api.ListVideos(ctx, stream.ListOptions{After: cursor})
		if err != nil {
			metrics.ReconcileOperations.WithLabelValues("catalog_sync", "failure").Inc()
			return synced, err
		}
		if len(videos) == 0 {
			break
		}

		for i := range videos {
			remote := &videos[i]
			if remote.UID == "" {
				continue
			}

			// Load the tracked record first so local-only state (file
			// reference, store id) survives the overwrite.
			rec, err := e.store.GetByUID(ctx, remote.UID)
			switch {
			case err == nil:
			case errors.Is(err, store.ErrNotFound):
				rec = &record.Video{}
			default:
				return synced, err
			}
			rec.ApplyRemote(remote)
			if _, err := e.store.UpsertByUID(ctx, rec); err != nil {
				return synced, err
			}
			synced++
		}

		last := videos[len(videos)-1].Created
		if last == "" || last == cursor {
			break
		}
		cursor = last
	}

	metrics.ReconcileOperations.WithLabelValues("catalog_sync", "success").Inc()
	logging.Info().Int("videos", synced).Msg("remote catalog synchronized")
	return synced, nil
}
