// Streamgate - Cloudflare Stream synchronization for CMS video libraries
// Copyright 2026 The Streamgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamgate/streamgate

package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/record"
	"github.com/streamgate/streamgate/internal/store"
	"github.com/streamgate/streamgate/internal/stream"
)

type fakeEngine struct {
	synced     int
	refreshed  int
	syncErr    error
	refreshErr error
}

func (f *fakeEngine) SyncFromRemote(ctx context.Context) (int, error) {
	return f.synced, f.syncErr
}

func (f *fakeEngine) RefreshUnready(ctx context.Context) (int, error) {
	return f.refreshed, f.refreshErr
}

type fakeAdminAPI struct {
	key       *stream.SigningKey
	keyErr    error
	verify    *stream.Envelope
	verifyErr error
}

func (f *fakeAdminAPI) CreateSigningKey(ctx context.Context) (*stream.SigningKey, error) {
	return f.key, f.keyErr
}

func (f *fakeAdminAPI) VerifyToken(ctx context.Context) (*stream.Envelope, error) {
	return f.verify, f.verifyErr
}

type fakeRecordStore struct {
	records map[int64]*record.Video
}

func (f *fakeRecordStore) Get(ctx context.Context, id int64) (*record.Video, error) {
	if v, ok := f.records[id]; ok {
		return v, nil
	}
	return nil, store.ErrNotFound
}

func newTestServer(engine Engine, api AdminAPI, st RecordStore) *Server {
	return New(engine, api, st, &config.ServerConfig{
		Host:    "127.0.0.1",
		Port:    8666,
		Timeout: 5 * time.Second,
	})
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rr.Body.String())
	}
	return body
}

func TestVideoDataServesPendingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	st := &fakeRecordStore{records: map[int64]*record.Video{
		7: {ID: 7, LocalFile: path},
	}}
	s := newTestServer(&fakeEngine{}, &fakeAdminAPI{}, st)

	rr := doRequest(t, s, http.MethodGet, "/videos/7/data")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "fake video bytes" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestVideoDataNotFoundCases(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "kept.mp4")
	if err := os.WriteFile(existing, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	st := &fakeRecordStore{records: map[int64]*record.Video{
		// Already uploaded: file kept locally but no longer exposed.
		1: {ID: 1, UID: "abc", LocalFile: existing},
		// No file at all.
		2: {ID: 2, UID: "def"},
	}}
	s := newTestServer(&fakeEngine{}, &fakeAdminAPI{}, st)

	for _, path := range []string{
		"/videos/1/data",
		"/videos/2/data",
		"/videos/999/data",
		"/videos/not-a-number/data",
		"/videos/-1/data",
	} {
		if rr := doRequest(t, s, http.MethodGet, path); rr.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rr.Code)
		}
	}
}

func TestSyncEndpoint(t *testing.T) {
	s := newTestServer(&fakeEngine{synced: 12}, &fakeAdminAPI{}, &fakeRecordStore{})

	rr := doRequest(t, s, http.MethodPost, "/admin/sync")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["synced"] != float64(12) {
		t.Errorf("synced = %v, want 12", body["synced"])
	}
}

func TestSyncEndpointFailure(t *testing.T) {
	engine := &fakeEngine{syncErr: errors.New("remote listing failed")}
	s := newTestServer(engine, &fakeAdminAPI{}, &fakeRecordStore{})

	rr := doRequest(t, s, http.MethodPost, "/admin/sync")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestRefreshEndpointPartialFailure(t *testing.T) {
	engine := &fakeEngine{refreshed: 3, refreshErr: errors.New("record 9: gone")}
	s := newTestServer(engine, &fakeAdminAPI{}, &fakeRecordStore{})

	rr := doRequest(t, s, http.MethodPost, "/admin/refresh")
	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["refreshed"] != float64(3) {
		t.Errorf("refreshed = %v, want 3", body["refreshed"])
	}
	if body["error"] == nil {
		t.Error("partial failure not reported")
	}
}

func TestCreateKeyEndpoint(t *testing.T) {
	api := &fakeAdminAPI{key: &stream.SigningKey{ID: "key-1", PEM: "cGVtLWJ5dGVz"}}
	s := newTestServer(&fakeEngine{}, api, &fakeRecordStore{})

	rr := doRequest(t, s, http.MethodPost, "/admin/keys")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["id"] != "key-1" {
		t.Errorf("id = %v, want key-1", body["id"])
	}
	env, _ := body["env"].(string)
	if !strings.Contains(env, "CFSTREAM_SIGNING_KEY_ID=key-1") ||
		!strings.Contains(env, "CFSTREAM_SIGNING_KEY_PEM=cGVtLWJ5dGVz") {
		t.Errorf("env snippet incomplete: %q", env)
	}
}

func TestVerifyTokenEndpoint(t *testing.T) {
	api := &fakeAdminAPI{verify: &stream.Envelope{Success: true}}
	s := newTestServer(&fakeEngine{}, api, &fakeRecordStore{})

	rr := doRequest(t, s, http.MethodGet, "/admin/token/verify")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := decodeBody(t, rr); body["valid"] != true {
		t.Errorf("valid = %v, want true", body["valid"])
	}
}

func TestVerifyTokenEndpointFailure(t *testing.T) {
	api := &fakeAdminAPI{verifyErr: errors.New("token status is inactive")}
	s := newTestServer(&fakeEngine{}, api, &fakeRecordStore{})

	rr := doRequest(t, s, http.MethodGet, "/admin/token/verify")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	if body := decodeBody(t, rr); body["valid"] != false {
		t.Errorf("valid = %v, want false", body["valid"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakeAdminAPI{}, &fakeRecordStore{})

	rr := doRequest(t, s, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("metrics exposition missing standard collectors")
	}
}
