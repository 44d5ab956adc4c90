// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// newTusFixture builds a server handling both phases of the handshake and
// captures what arrived.
func newTusFixture(t *testing.T, uid string) (*httptest.Server, *tusCapture) {
	t.Helper()
	captured := &tusCapture{}
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/accounts/acct-1/stream":
			captured.initiateHeaders = r.Header.Clone()
			captured.uploadLength = r.Header.Get("Upload-Length")
			w.Header().Set("Location", server.URL+"/tus/"+uid)
			w.Header().Set(mediaIDHeader, uid)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPatch && r.URL.Path == "/tus/"+uid:
			body, _ := io.ReadAll(r.Body)
			captured.transferBody = string(body)
			captured.transferHeaders = r.Header.Clone()
			captured.contentLength = r.ContentLength
			w.Header().Set(mediaIDHeader, uid)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	return server, captured
}

type tusCapture struct {
	initiateHeaders http.Header
	transferHeaders http.Header
	uploadLength    string
	transferBody    string
	contentLength   int64
}

func writeTempVideo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadFullHandshake(t *testing.T) {
	server, captured := newTusFixture(t, "vid-42")
	defer server.Close()

	client := NewClient(testStreamConfig(server.URL))
	path := writeTempVideo(t, "fake video bytes")

	uid, err := client.Upload(context.Background(), path)
	checkNoError(t, err)
	checkStringEqual(t, "uid", uid, "vid-42")

	// Initiate phase headers.
	checkStringEqual(t, "Tus-Resumable", captured.initiateHeaders.Get("Tus-Resumable"), "1.0.0")
	checkStringEqual(t, "Upload-Length", captured.uploadLength, strconv.Itoa(len("fake video bytes")))
	checkStringEqual(t, "Upload-Metadata", captured.initiateHeaders.Get("Upload-Metadata"), "filename clip.mp4")

	// Transfer phase headers and body.
	checkStringEqual(t, "Content-Type", captured.transferHeaders.Get("Content-Type"), "application/offset+octet-stream")
	checkStringEqual(t, "Upload-Offset", captured.transferHeaders.Get("Upload-Offset"), "0")
	checkStringEqual(t, "body", captured.transferBody, "fake video bytes")
	if captured.contentLength != int64(len("fake video bytes")) {
		t.Errorf("wire Content-Length = %d, want %d", captured.contentLength, len("fake video bytes"))
	}
}

func TestUploadInitiateFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer server.Close()

	client := NewClient(testStreamConfig(server.URL))
	path := writeTempVideo(t, "content")

	_, err := client.Upload(context.Background(), path)
	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UploadError, got %T: %v", err, err)
	}
	if ue.Phase != PhaseInitiate {
		t.Errorf("phase = %q, want %q", ue.Phase, PhaseInitiate)
	}
	checkIntEqual(t, "status", ue.Status, http.StatusForbidden)
}

func TestUploadTransferFailure(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Location", server.URL+"/tus/vid-1")
			w.Header().Set(mediaIDHeader, "vid-1")
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testStreamConfig(server.URL))
	path := writeTempVideo(t, "content")

	_, err := client.Upload(context.Background(), path)
	var ue *UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UploadError, got %T: %v", err, err)
	}
	if ue.Phase != PhaseTransfer {
		t.Errorf("phase = %q, want %q", ue.Phase, PhaseTransfer)
	}
}

func TestUploadMissingFile(t *testing.T) {
	client := NewClient(testStreamConfig("http://example.invalid"))
	_, err := client.Upload(context.Background(), "/nonexistent/clip.mp4")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestInitiateUploadValidation(t *testing.T) {
	client := NewClient(testStreamConfig("http://example.invalid"))

	_, _, err := client.initiateUpload(context.Background(), "", 100)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty filename: expected ErrInvalidInput, got %v", err)
	}

	_, _, err = client.initiateUpload(context.Background(), "clip.mp4", 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero size: expected ErrInvalidInput, got %v", err)
	}
}
