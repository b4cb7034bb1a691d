package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "capproxy"

// promCollector exports a MetricsCollector in Prometheus form. Values are
// read from a snapshot at scrape time, so the relay keeps a single set of
// counters.
type promCollector struct {
	m *MetricsCollector

	sessions         *prometheus.Desc
	activeSessions   *prometheus.Desc
	upstreamFailures *prometheus.Desc
	pumpEnds         *prometheus.Desc
	bytes            *prometheus.Desc
	artifacts        *prometheus.Desc
	capturedBytes    *prometheus.Desc
}

// NewPrometheusCollector wraps m for registration with a Prometheus registry.
func NewPrometheusCollector(m *MetricsCollector) prometheus.Collector {
	return &promCollector{
		m: m,
		sessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Client connections accepted.", nil, nil),
		activeSessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_active"),
			"Sessions currently relaying.", nil, nil),
		upstreamFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "upstream_failures_total"),
			"Upstream connect attempts that failed.", nil, nil),
		pumpEnds: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pump", "abnormal_ends_total"),
			"Pumps that stopped on something other than end of stream.", []string{"reason"}, nil),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "relayed_bytes_total"),
			"Bytes forwarded, by direction.", []string{"direction"}, nil),
		artifacts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capture", "artifacts_total"),
			"Capture artifacts by outcome.", []string{"result"}, nil),
		capturedBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capture", "bytes_total"),
			"Bytes written to capture artifacts.", nil, nil),
	}
}

func (c *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.activeSessions
	ch <- c.upstreamFailures
	ch <- c.pumpEnds
	ch <- c.bytes
	ch <- c.artifacts
	ch <- c.capturedBytes
}

func (c *promCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.GetSnapshot()

	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.CounterValue, float64(s.TotalSessions))
	ch <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, float64(s.ActiveSessions))
	ch <- prometheus.MustNewConstMetric(c.upstreamFailures, prometheus.CounterValue, float64(s.UpstreamFailures))
	ch <- prometheus.MustNewConstMetric(c.pumpEnds, prometheus.CounterValue, float64(s.PumpTimeouts), "timeout")
	ch <- prometheus.MustNewConstMetric(c.pumpEnds, prometheus.CounterValue, float64(s.PumpErrors), "error")
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(s.BytesUpstream), "upstream")
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(s.BytesDownstream), "downstream")
	ch <- prometheus.MustNewConstMetric(c.artifacts, prometheus.CounterValue, float64(s.ArtifactsWritten), "written")
	ch <- prometheus.MustNewConstMetric(c.artifacts, prometheus.CounterValue, float64(s.ArtifactFailures), "failed")
	ch <- prometheus.MustNewConstMetric(c.capturedBytes, prometheus.CounterValue, float64(s.CapturedBytes))
}
