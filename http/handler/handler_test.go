package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/config"
	"github.com/asmodhias/capproxy/metrics"
	"github.com/klauspost/compress/zstd"
)

func newTestAPI(t *testing.T) (*http.ServeMux, *capture.Store, *metrics.MetricsCollector) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Capture.OutputDir = t.TempDir()

	store, err := capture.NewStore(capture.OptionsFromConfig(cfg.Capture))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	m := metrics.NewCollector()

	mux := http.NewServeMux()
	NewAPIHandler(&cfg, store, m).RegisterEndpoints(mux)
	return mux, store, m
}

func addCapture(t *testing.T, store *capture.Store, id, payload string) *capture.Record {
	t.Helper()
	rec, err := store.Begin(capture.SessionInfo{ID: id, Client: "127.0.0.1:1", Upstream: "127.0.0.1:2", StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	rec.Write([]byte(payload))
	r, err := rec.Finish(time.Now())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return r
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestListCaptures(t *testing.T) {
	mux, store, _ := newTestAPI(t)
	addCapture(t, store, "a1b2c3d4-0000-0000-0000-000000000001", "hello")
	addCapture(t, store, "a1b2c3d4-0000-0000-0000-000000000002", "world!")

	w := serve(mux, http.MethodGet, "/api/captures")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var resp CaptureListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Captures) != 2 {
		t.Errorf("count = %d, captures = %d", resp.Count, len(resp.Captures))
	}
	if resp.TotalSize != 11 {
		t.Errorf("total size = %d, want 11", resp.TotalSize)
	}
}

func TestDownloadCapture(t *testing.T) {
	mux, store, _ := newTestAPI(t)
	r := addCapture(t, store, "b1b2c3d4-0000-0000-0000-000000000001", "raw capture bytes")

	t.Run("found", func(t *testing.T) {
		w := serve(mux, http.MethodGet, "/api/captures/download?id="+r.ID)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if w.Body.String() != "raw capture bytes" {
			t.Errorf("body = %q", w.Body.String())
		}
		if got := w.Header().Get("X-Capture-Blake3"); got != r.Digest {
			t.Errorf("digest header = %q, want %q", got, r.Digest)
		}
	})

	t.Run("zstd", func(t *testing.T) {
		w := serve(mux, http.MethodGet, "/api/captures/download?compress=zstd&id="+r.ID)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		dec, err := zstd.NewReader(w.Body)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer dec.Close()
		data, err := io.ReadAll(dec)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if string(data) != "raw capture bytes" {
			t.Errorf("decompressed %q", data)
		}
	})

	t.Run("unknown compression", func(t *testing.T) {
		w := serve(mux, http.MethodGet, "/api/captures/download?compress=gzip&id="+r.ID)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		if w := serve(mux, http.MethodGet, "/api/captures/download"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if w := serve(mux, http.MethodGet, "/api/captures/download?id=nope"); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestDeleteCapture(t *testing.T) {
	mux, store, m := newTestAPI(t)
	r := addCapture(t, store, "c1b2c3d4-0000-0000-0000-000000000001", "x")

	if w := serve(mux, http.MethodGet, "/api/captures/delete?id="+r.ID); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}

	w := serve(mux, http.MethodDelete, "/api/captures/delete?id="+r.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := store.Get(r.ID); ok {
		t.Error("capture still indexed after delete")
	}
	if len(m.GetSnapshot().RecentEvents) == 0 {
		t.Error("delete should be recorded as an event")
	}

	if w := serve(mux, http.MethodDelete, "/api/captures/delete?id="+r.ID); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestClearCaptures(t *testing.T) {
	mux, store, _ := newTestAPI(t)
	addCapture(t, store, "d1b2c3d4-0000-0000-0000-000000000001", "x")
	addCapture(t, store, "d1b2c3d4-0000-0000-0000-000000000002", "y")

	w := serve(mux, http.MethodPost, "/api/captures/clear")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if n := len(store.List()); n != 0 {
		t.Errorf("%d captures left after clear", n)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux, _, m := newTestAPI(t)
	m.OpenSession()
	m.RecordUpstreamFailure()

	w := serve(mux, http.MethodGet, "/api/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var snap struct {
		TotalSessions    uint64 `json:"total_sessions"`
		UpstreamFailures uint64 `json:"upstream_failures"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TotalSessions != 1 || snap.UpstreamFailures != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestConfigEndpoint(t *testing.T) {
	mux, _, _ := newTestAPI(t)

	w := serve(mux, http.MethodGet, "/api/config")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		ListenAddr   string `json:"listen_addr"`
		UpstreamAddr string `json:"upstream_addr"`
		Relay        struct {
			ChunkSize int `json:"chunk_size"`
		} `json:"relay"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ListenAddr != "127.0.0.1:4318" || resp.UpstreamAddr != "172.18.0.3:4318" {
		t.Errorf("addresses = %s -> %s", resp.ListenAddr, resp.UpstreamAddr)
	}
	if resp.Relay.ChunkSize != 4096 {
		t.Errorf("chunk size = %d", resp.Relay.ChunkSize)
	}

	if w := serve(mux, http.MethodPut, "/api/config"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", w.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	mux, _, _ := newTestAPI(t)

	w := serve(mux, http.MethodGet, "/api/version")
	var v VersionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Version != Version || v.GoVersion == "" {
		t.Errorf("unexpected version info: %+v", v)
	}
}
