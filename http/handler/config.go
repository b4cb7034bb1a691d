package handler

import (
	"net/http"
)

func (api *API) RegisterConfigApi() {
	api.mux.HandleFunc("/api/config", api.handleConfig)
}

// The relay reads its config once at startup, so the endpoint is read-only.
func (api *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJson(w, http.StatusOK, ConfigResponse{
		Config:       api.cfg,
		ListenAddr:   api.cfg.Listen.Addr(),
		UpstreamAddr: api.cfg.Upstream.Addr(),
	})
}
