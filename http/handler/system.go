package handler

import (
	"net/http"
	"runtime"
)

// Set from main at startup.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func (api *API) RegisterSystemApi() {
	api.mux.HandleFunc("/api/version", api.handleVersion)
}

func (api *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJson(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	})
}
