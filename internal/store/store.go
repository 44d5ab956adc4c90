// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
store.go - SQLite-backed video record store

Single-writer sqlite database holding the local video records. Every loaded
record is snapshotted so the engine's change tracking has a baseline.
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/streamgate/streamgate/internal/record"
	"github.com/streamgate/streamgate/internal/stream"
)

// ErrNotFound means no record matches the given id or uid.
var ErrNotFound = errors.New("store: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	uid                     TEXT NOT NULL DEFAULT '',
	name                    TEXT NOT NULL DEFAULT '',
	require_signed_urls     INTEGER NOT NULL DEFAULT 0,
	allowed_origins         TEXT NOT NULL DEFAULT '',
	thumbnail_timestamp_pct REAL NOT NULL DEFAULT 0,
	status_state            TEXT NOT NULL DEFAULT '',
	status_errors           TEXT NOT NULL DEFAULT '',
	status_message          TEXT NOT NULL DEFAULT '',
	ready_to_stream         INTEGER NOT NULL DEFAULT 0,
	size                    INTEGER NOT NULL DEFAULT 0,
	width                   INTEGER NOT NULL DEFAULT 0,
	height                  INTEGER NOT NULL DEFAULT 0,
	duration                REAL NOT NULL DEFAULT 0,
	preview_url             TEXT NOT NULL DEFAULT '',
	thumbnail_url           TEXT NOT NULL DEFAULT '',
	local_file              TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_videos_uid ON videos(uid) WHERE uid != '';
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status_state);
`

// Store persists video records in sqlite.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: cannot create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: cannot open database: %w", err)
	}

	// modernc sqlite serializes writers; one connection avoids lock churn.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("store: %s failed: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: schema setup failed: %w", err)
	}

	return &Store{conn: conn}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

const videoColumns = `id, uid, name, require_signed_urls, allowed_origins,
	thumbnail_timestamp_pct, status_state, status_errors, status_message,
	ready_to_stream, size, width, height, duration, preview_url,
	thumbnail_url, local_file`

func scanVideo(row interface{ Scan(...interface{}) error }) (*record.Video, error) {
	v := &record.Video{}
	err := row.Scan(
		&v.ID, &v.UID, &v.Name, &v.RequireSignedURLs, &v.AllowedOrigins,
		&v.ThumbnailTimestampPct, &v.StatusState, &v.StatusErrors, &v.StatusMessage,
		&v.ReadyToStream, &v.Size, &v.Width, &v.Height, &v.Duration,
		&v.PreviewURL, &v.ThumbnailURL, &v.LocalFile,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan failed: %w", err)
	}
	// Loaded state is the change-tracking baseline.
	v.Snapshot()
	return v, nil
}

// Create inserts a new record and assigns its id. The loaded state becomes
// the change-tracking baseline.
func (s *Store) Create(ctx context.Context, v *record.Video) error {
	if err := v.Validate(); err != nil {
		return err
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO videos (uid, name, require_signed_urls, allowed_origins,
			thumbnail_timestamp_pct, status_state, status_errors, status_message,
			ready_to_stream, size, width, height, duration, preview_url,
			thumbnail_url, local_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.UID, v.Name, v.RequireSignedURLs, v.AllowedOrigins,
		v.ThumbnailTimestampPct, v.StatusState, v.StatusErrors, v.StatusMessage,
		v.ReadyToStream, v.Size, v.Width, v.Height, v.Duration,
		v.PreviewURL, v.ThumbnailURL, v.LocalFile,
	)
	if err != nil {
		return fmt.Errorf("store: insert failed: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: cannot read inserted id: %w", err)
	}
	v.ID = id
	v.Snapshot()
	return nil
}

// Update persists the record's current state and re-snapshots it.
func (s *Store) Update(ctx context.Context, v *record.Video) error {
	if v.ID == 0 {
		return fmt.Errorf("store: update requires a persisted record")
	}
	if err := v.Validate(); err != nil {
		return err
	}

	result, err := s.conn.ExecContext(ctx, `
		UPDATE videos SET uid = ?, name = ?, require_signed_urls = ?,
			allowed_origins = ?, thumbnail_timestamp_pct = ?, status_state = ?,
			status_errors = ?, status_message = ?, ready_to_stream = ?,
			size = ?, width = ?, height = ?, duration = ?, preview_url = ?,
			thumbnail_url = ?, local_file = ?
		WHERE id = ?`,
		v.UID, v.Name, v.RequireSignedURLs, v.AllowedOrigins,
		v.ThumbnailTimestampPct, v.StatusState, v.StatusErrors, v.StatusMessage,
		v.ReadyToStream, v.Size, v.Width, v.Height, v.Duration,
		v.PreviewURL, v.ThumbnailURL, v.LocalFile, v.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	v.Snapshot()
	return nil
}

// Get loads a record by local id.
func (s *Store) Get(ctx context.Context, id int64) (*record.Video, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE id = ?", id)
	return scanVideo(row)
}

// GetByUID loads a record by remote uid.
func (s *Store) GetByUID(ctx context.Context, uid string) (*record.Video, error) {
	if uid == "" {
		return nil, ErrNotFound
	}
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE uid = ?", uid)
	return scanVideo(row)
}

// List returns all records ordered by id.
func (s *Store) List(ctx context.Context) ([]*record.Video, error) {
	return s.query(ctx, "SELECT "+videoColumns+" FROM videos ORDER BY id")
}

// ListUnready returns records with a uid whose remote processing has not
// finished. These are the refresh candidates.
func (s *Store) ListUnready(ctx context.Context) ([]*record.Video, error) {
	return s.query(ctx,
		"SELECT "+videoColumns+" FROM videos WHERE uid != '' AND status_state != ? ORDER BY id",
		stream.StatusReady)
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]*record.Video, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query failed: %w", err)
	}
	defer rows.Close()

	var videos []*record.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// Delete removes a record by id. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete failed: %w", err)
	}
	return nil
}

// UpsertByUID creates or updates the record tracking uid, used by the
// full-catalog sync. Returns the persisted record.
func (s *Store) UpsertByUID(ctx context.Context, v *record.Video) (*record.Video, error) {
	if v.UID == "" {
		return nil, fmt.Errorf("store: upsert requires a uid")
	}

	existing, err := s.GetByUID(ctx, v.UID)
	switch {
	case err == nil:
		v.ID = existing.ID
		if err := s.Update(ctx, v); err != nil {
			return nil, err
		}
		return v, nil
	case errors.Is(err, ErrNotFound):
		if err := s.Create(ctx, v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, err
	}
}
