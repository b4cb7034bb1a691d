package handler

import (
	"net/http"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/config"
	"github.com/asmodhias/capproxy/metrics"
)

type API struct {
	cfg     *config.Config
	mux     *http.ServeMux
	store   *capture.Store
	metrics *metrics.MetricsCollector
}

// CaptureListResponse is returned by GET /api/captures
type CaptureListResponse struct {
	OutputDir string            `json:"output_dir"`
	Count     int               `json:"count"`
	TotalSize int64             `json:"total_size"`
	Captures  []*capture.Record `json:"captures"`
}

type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConfigResponse wraps the effective config with derived values
type ConfigResponse struct {
	*config.Config
	ListenAddr   string `json:"listen_addr"`
	UpstreamAddr string `json:"upstream_addr"`
}
