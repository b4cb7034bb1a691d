package ws

import (
	"net/http"
	"time"

	"github.com/asmodhias/capproxy/log"
	"github.com/asmodhias/capproxy/metrics"
	"github.com/gorilla/websocket"
)

const metricsInterval = time.Second

// MetricsHandler pushes a metrics snapshot to the client every second.
func MetricsHandler(m *metrics.MetricsCollector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("Failed to upgrade metrics WebSocket: %v", err)
			return
		}
		log.Tracef("Metrics WebSocket client connected: %s", r.RemoteAddr)

		done := make(chan struct{})
		go func() {
			defer close(done)
			readUntilClosed(conn)
		}()

		streamMetrics(conn, m, done)
		conn.Close()
		<-done
	}
}

func streamMetrics(conn *websocket.Conn, m *metrics.MetricsCollector, done <-chan struct{}) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	send := func() bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m.GetSnapshot()) == nil
	}

	if !send() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !send() {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
