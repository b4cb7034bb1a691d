package handler

import (
	"encoding/json"
	"net/http"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/config"
	"github.com/asmodhias/capproxy/log"
	"github.com/asmodhias/capproxy/metrics"
)

func NewAPIHandler(cfg *config.Config, store *capture.Store, m *metrics.MetricsCollector) *API {
	if m == nil {
		m = metrics.GetMetricsCollector()
	}
	return &API{
		cfg:     cfg,
		store:   store,
		metrics: m,
	}
}

func (api *API) RegisterEndpoints(mux *http.ServeMux) {
	api.mux = mux

	api.RegisterConfigApi()
	api.RegisterMetricsApi()
	api.RegisterCaptureApi()
	api.RegisterSystemApi()
}

func setJsonHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func writeJson(w http.ResponseWriter, status int, v any) {
	setJsonHeader(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Tracef("Failed to encode response: %v", err)
	}
}
