package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollector(t *testing.T) {
	m := NewCollector()
	m.OpenSession()
	m.OpenSession()
	m.CloseSession(SessionLog{ID: "a", BytesUp: 7, BytesDown: 3})
	m.RecordArtifact(7, nil)

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewPrometheusCollector(m)); err != nil {
		t.Fatalf("register: %v", err)
	}

	expected := `
# HELP capproxy_sessions_total Client connections accepted.
# TYPE capproxy_sessions_total counter
capproxy_sessions_total 2
# HELP capproxy_sessions_active Sessions currently relaying.
# TYPE capproxy_sessions_active gauge
capproxy_sessions_active 1
# HELP capproxy_relayed_bytes_total Bytes forwarded, by direction.
# TYPE capproxy_relayed_bytes_total counter
capproxy_relayed_bytes_total{direction="downstream"} 3
capproxy_relayed_bytes_total{direction="upstream"} 7
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"capproxy_sessions_total", "capproxy_sessions_active", "capproxy_relayed_bytes_total")
	if err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(NewPrometheusCollector(m)); n != 10 {
		t.Errorf("collected %d series, want 10", n)
	}
}
