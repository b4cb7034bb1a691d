package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/log"
	"github.com/klauspost/compress/zstd"
)

func (api *API) RegisterCaptureApi() {
	api.mux.HandleFunc("/api/captures", api.handleListCaptures)
	api.mux.HandleFunc("/api/captures/download", api.handleDownloadCapture)
	api.mux.HandleFunc("/api/captures/delete", api.handleDeleteCapture)
	api.mux.HandleFunc("/api/captures/clear", api.handleClearCaptures)
}

// List all captures, newest first
func (api *API) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	captures := api.store.List()
	var total int64
	for _, c := range captures {
		total += c.Size
	}

	writeJson(w, http.StatusOK, CaptureListResponse{
		OutputDir: api.store.OutputPath(),
		Count:     len(captures),
		TotalSize: total,
		Captures:  captures,
	})
}

// Download the raw bytes of one capture
func (api *API) handleDownloadCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Capture id required", http.StatusBadRequest)
		return
	}

	f, rec, err := api.store.Open(id)
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			http.Error(w, "Capture not found", http.StatusNotFound)
			return
		}
		log.Errorf("Failed to open capture %s: %v", id, err)
		http.Error(w, "Capture file unavailable", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("X-Capture-Blake3", rec.Digest)

	switch r.URL.Query().Get("compress") {
	case "":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.File))
		http.ServeContent(w, r, rec.File, rec.FinishedAt, f)

	case "zstd":
		w.Header().Set("Content-Type", "application/zstd")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.File+".zst"))
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := io.Copy(enc, f); err != nil {
			log.Tracef("Compressed download of %s aborted: %v", rec.File, err)
		}
		if err := enc.Close(); err != nil {
			log.Tracef("Compressed download of %s aborted: %v", rec.File, err)
		}

	default:
		http.Error(w, "Unsupported compression", http.StatusBadRequest)
	}
}

func (api *API) handleDeleteCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Capture id required", http.StatusBadRequest)
		return
	}

	if err := api.store.Delete(id); err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.metrics.RecordEvent("info", fmt.Sprintf("Capture %s deleted", id))
	writeJson(w, http.StatusOK, ActionResponse{Success: true, Message: "Capture deleted"})
}

func (api *API) handleClearCaptures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := api.store.ClearAll(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	api.metrics.RecordEvent("info", "All captures cleared")
	writeJson(w, http.StatusOK, ActionResponse{Success: true, Message: "All captures cleared"})
}
