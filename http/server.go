package http

import (
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/config"
	"github.com/asmodhias/capproxy/http/handler"
	"github.com/asmodhias/capproxy/http/ws"
	"github.com/asmodhias/capproxy/log"
	"github.com/asmodhias/capproxy/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartServer serves the web API in the background. It returns a nil server
// when the web API is disabled.
func StartServer(cfg *config.Config, store *capture.Store, m *metrics.MetricsCollector) (*stdhttp.Server, error) {
	if cfg.System.WebServer.Port == 0 {
		log.Infof("Web server disabled (port 0)")
		return nil, nil
	}
	if m == nil {
		m = metrics.GetMetricsCollector()
	}

	addr := net.JoinHostPort(cfg.System.WebServer.BindAddress, strconv.Itoa(cfg.System.WebServer.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("web server listen on %s: %w", addr, err)
	}
	log.Infof("Starting web server on %s", ln.Addr())

	srv := &stdhttp.Server{
		Handler:           NewHandler(cfg, store, m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.RecordEvent("info", fmt.Sprintf("Web server started on %s", ln.Addr()))

	go func() {
		if err := srv.Serve(ln); err != nil && err != stdhttp.ErrServerClosed {
			log.Errorf("Web server error: %v", err)
			m.RecordEvent("error", fmt.Sprintf("Web server error: %v", err))
		}
	}()

	return srv, nil
}

// NewHandler builds the API mux.
func NewHandler(cfg *config.Config, store *capture.Store, m *metrics.MetricsCollector) stdhttp.Handler {
	mux := stdhttp.NewServeMux()

	registerWebSocketEndpoints(mux, m)
	registerAPIEndpoints(mux, cfg, store, m)
	registerPrometheusEndpoint(mux, m)

	return mux
}

func registerPrometheusEndpoint(mux *stdhttp.ServeMux, m *metrics.MetricsCollector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewPrometheusCollector(m))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func registerWebSocketEndpoints(mux *stdhttp.ServeMux, m *metrics.MetricsCollector) {
	mux.HandleFunc("/api/ws/logs", ws.HandleLogsWebSocket)
	mux.HandleFunc("/api/ws/metrics", ws.MetricsHandler(m))

	log.Tracef("WebSocket endpoints registered: /api/ws/logs, /api/ws/metrics")
}

func registerAPIEndpoints(mux *stdhttp.ServeMux, cfg *config.Config, store *capture.Store, m *metrics.MetricsCollector) {
	api := handler.NewAPIHandler(cfg, store, m)
	api.RegisterEndpoints(mux)

	log.Tracef("REST API endpoints registered")
}

func LogWriter() io.Writer {
	return ws.LogWriter()
}

func Shutdown() {
	ws.Shutdown()
}
