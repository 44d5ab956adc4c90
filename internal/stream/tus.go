// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

/*
tus.go - Resumable upload protocol handler

Two-phase tus handshake against the Stream creation endpoint:

  1. Initiate: zero-length POST carrying Upload-Length and Upload-Metadata.
     201 Created returns the upload Location and the eventual media uid.
  2. Transfer: PATCH the full file body to the Location with Upload-Offset 0.
     204 No Content completes the upload.

Every attempt re-transfers from offset zero; partial resume is not
implemented. The file is streamed, never buffered, since sources can run to
gigabytes.
*/

package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/metrics"
)

// mediaIDHeader is the vendor header carrying the assigned video uid on
// upload responses.
const mediaIDHeader = "stream-media-id"

// initiateUpload creates the upload resource. Returns the Location URL to
// PATCH the content to and the media uid the video will have.
func (c *Client) initiateUpload(ctx context.Context, filename string, size int64) (location, uid string, err error) {
	if filename == "" || size <= 0 {
		return "", "", fmt.Errorf("%w: filename and size are required for upload", ErrInvalidInput)
	}

	headers := map[string]string{
		"Content-Length":  "0",
		"Tus-Resumable":   "1.0.0",
		"Upload-Length":   strconv.FormatInt(size, 10),
		"Upload-Metadata": "filename " + filename,
	}

	resp, err := c.do(ctx, "upload_initiate", http.MethodPost, c.apiHost+"/"+c.accountPath(""), nil, headers)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		re := remoteErrorFromResponse(resp)
		return "", "", &UploadError{Phase: PhaseInitiate, Status: re.Status, Body: re.Body}
	}

	location = resp.Header.Get("Location")
	if location == "" {
		return "", "", &UploadError{Phase: PhaseInitiate, Status: resp.StatusCode, Body: "response missing Location header"}
	}

	return location, resp.Header.Get(mediaIDHeader), nil
}

// transferUpload PATCHes the file content to the upload location. The reader
// is streamed straight into the request body.
func (c *Client) transferUpload(ctx context.Context, location string, content io.Reader, size int64) (uid string, err error) {
	if location == "" || content == nil {
		return "", fmt.Errorf("%w: upload location and content are required", ErrInvalidInput)
	}

	headers := map[string]string{
		"Content-Length": strconv.FormatInt(size, 10),
		"Content-Type":   "application/offset+octet-stream",
		"Tus-Resumable":  "1.0.0",
		"Upload-Offset":  "0",
	}

	resp, err := c.do(ctx, "upload_transfer", http.MethodPatch, location, content, headers)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		re := remoteErrorFromResponse(resp)
		return "", &UploadError{Phase: PhaseTransfer, Status: re.Status, Body: re.Body}
	}

	metrics.UploadBytesTotal.Add(float64(size))

	return resp.Header.Get(mediaIDHeader), nil
}

// Upload transfers a local file through the full tus handshake and returns
// the assigned media uid.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: cannot open %s: %v", ErrInvalidInput, path, err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: cannot stat %s: %v", ErrInvalidInput, path, err)
	}

	filename := filepath.Base(path)
	size := info.Size()

	location, uid, err := c.initiateUpload(ctx, filename, size)
	if err != nil {
		return "", err
	}

	logging.Debug().
		Str("filename", filename).
		Int64("size", size).
		Str("location", location).
		Msg("upload initiated")

	transferUID, err := c.transferUpload(ctx, location, file, size)
	if err != nil {
		return "", err
	}

	// The uid usually arrives on the initiate response; the transfer response
	// repeats it. Prefer whichever is present.
	if transferUID != "" {
		uid = transferUID
	}
	if uid == "" {
		// Fall back to the trailing Location path segment, which is the uid
		// on this endpoint.
		uid = filepath.Base(location)
	}

	logging.Info().
		Str("uid", uid).
		Str("filename", filename).
		Int64("size", size).
		Msg("upload complete")

	return uid, nil
}
