package metrics

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

const (
	rateWindow     = 60
	recentSessions = 10
	recentEvents   = 20
)

type MetricsCollector struct {
	TotalSessions    uint64 `json:"total_sessions"`
	ActiveSessions   uint64 `json:"active_sessions"`
	UpstreamFailures uint64 `json:"upstream_failures"`
	PumpTimeouts     uint64 `json:"pump_timeouts"`
	PumpErrors       uint64 `json:"pump_errors"`
	BytesUpstream    uint64 `json:"bytes_upstream"`
	BytesDownstream  uint64 `json:"bytes_downstream"`
	ArtifactsWritten uint64 `json:"artifacts_written"`
	ArtifactFailures uint64 `json:"artifact_failures"`
	CapturedBytes    uint64 `json:"captured_bytes"`

	CurrentSPS float64 `json:"current_sps"`
	Goroutines int     `json:"goroutines"`

	SessionRate    []TimeSeriesPoint `json:"session_rate"`
	StartTime      time.Time         `json:"start_time"`
	Uptime         string            `json:"uptime"`
	MemoryUsage    MemoryStats       `json:"memory_usage"`
	ListenerStatus string            `json:"listener_status"`
	RecentSessions []SessionLog      `json:"recent_sessions"`
	RecentEvents   []SystemEvent     `json:"recent_events"`

	lastUpdate       time.Time
	mu               sync.RWMutex
	lastSessionCount uint64
}

type TimeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

type MemoryStats struct {
	Allocated      uint64  `json:"allocated"`
	TotalAllocated uint64  `json:"total_allocated"`
	System         uint64  `json:"system"`
	Percent        float64 `json:"percent"`
	HeapAlloc      uint64  `json:"heap_alloc"`
	HeapInuse      uint64  `json:"heap_inuse"`
	NumGC          uint32  `json:"num_gc"`
}

// SessionLog summarizes one finished session.
type SessionLog struct {
	ID         string    `json:"id"`
	Client     string    `json:"client"`
	Upstream   string    `json:"upstream"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
	BytesUp    uint64    `json:"bytes_up"`
	BytesDown  uint64    `json:"bytes_down"`
	UpReason   string    `json:"up_reason"`
	DownReason string    `json:"down_reason"`
	Artifact   string    `json:"artifact,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type SystemEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

var (
	metricsCollector *MetricsCollector
	metricsOnce      sync.Once
)

// GetMetricsCollector returns the process-wide collector and starts its
// once-a-second rate updater on first use.
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		metricsCollector = NewCollector()
		go metricsCollector.updateLoop()
	})
	return metricsCollector
}

// NewCollector returns a standalone collector without the background updater.
func NewCollector() *MetricsCollector {
	now := time.Now()
	return &MetricsCollector{
		StartTime:      now,
		SessionRate:    make([]TimeSeriesPoint, 0, rateWindow),
		RecentSessions: make([]SessionLog, 0, recentSessions),
		RecentEvents:   make([]SystemEvent, 0, recentEvents),
		ListenerStatus: "starting",
		lastUpdate:     now,
	}
}

func (m *MetricsCollector) updateLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.updateRates(time.Now())
		m.updateSystemStats()
	}
}

func (m *MetricsCollector) updateRates(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := now.Sub(m.lastUpdate).Seconds()
	if duration <= 0 {
		return
	}

	m.CurrentSPS = float64(m.TotalSessions-m.lastSessionCount) / duration

	m.SessionRate = append(m.SessionRate, TimeSeriesPoint{
		Timestamp: now.UnixMilli(),
		Value:     m.CurrentSPS,
	})
	if len(m.SessionRate) > rateWindow {
		m.SessionRate = m.SessionRate[len(m.SessionRate)-rateWindow:]
	}

	m.lastUpdate = now
	m.lastSessionCount = m.TotalSessions
	m.Uptime = formatDuration(now.Sub(m.StartTime))
}

func (m *MetricsCollector) updateSystemStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.MemoryUsage = MemoryStats{
		Allocated:      memStats.Alloc,
		TotalAllocated: memStats.TotalAlloc,
		System:         memStats.Sys,
		NumGC:          memStats.NumGC,
		HeapAlloc:      memStats.HeapAlloc,
		HeapInuse:      memStats.HeapInuse,
		Percent:        float64(memStats.Alloc) / float64(memStats.Sys) * 100,
	}
	m.Goroutines = runtime.NumGoroutine()
}

func (m *MetricsCollector) SetListenerStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListenerStatus = status
}

// OpenSession counts an accepted client connection.
func (m *MetricsCollector) OpenSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalSessions++
	m.ActiveSessions++
}

// CloseSession records the outcome of a session and releases its active slot.
func (m *MetricsCollector) CloseSession(s SessionLog) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ActiveSessions > 0 {
		m.ActiveSessions--
	}
	m.BytesUpstream += s.BytesUp
	m.BytesDownstream += s.BytesDown

	m.RecentSessions = append([]SessionLog{s}, m.RecentSessions...)
	if len(m.RecentSessions) > recentSessions {
		m.RecentSessions = m.RecentSessions[:recentSessions]
	}
}

func (m *MetricsCollector) RecordUpstreamFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpstreamFailures++
}

func (m *MetricsCollector) RecordPumpEnd(timedOut, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case timedOut:
		m.PumpTimeouts++
	case failed:
		m.PumpErrors++
	}
}

func (m *MetricsCollector) RecordArtifact(size int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.ArtifactFailures++
		return
	}
	m.ArtifactsWritten++
	m.CapturedBytes += uint64(size)
}

func (m *MetricsCollector) RecordEvent(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event := SystemEvent{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}

	m.RecentEvents = append([]SystemEvent{event}, m.RecentEvents...)
	if len(m.RecentEvents) > recentEvents {
		m.RecentEvents = m.RecentEvents[:recentEvents]
	}
}

func (m *MetricsCollector) GetSnapshot() *MetricsCollector {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := &MetricsCollector{
		TotalSessions:    m.TotalSessions,
		ActiveSessions:   m.ActiveSessions,
		UpstreamFailures: m.UpstreamFailures,
		PumpTimeouts:     m.PumpTimeouts,
		PumpErrors:       m.PumpErrors,
		BytesUpstream:    m.BytesUpstream,
		BytesDownstream:  m.BytesDownstream,
		ArtifactsWritten: m.ArtifactsWritten,
		ArtifactFailures: m.ArtifactFailures,
		CapturedBytes:    m.CapturedBytes,
		CurrentSPS:       m.CurrentSPS,
		Goroutines:       m.Goroutines,
		StartTime:        m.StartTime,
		Uptime:           m.Uptime,
		MemoryUsage:      m.MemoryUsage,
		ListenerStatus:   m.ListenerStatus,
	}

	snapshot.SessionRate = smoothTimeSeriesData(m.SessionRate, 3)

	snapshot.RecentSessions = make([]SessionLog, len(m.RecentSessions))
	copy(snapshot.RecentSessions, m.RecentSessions)

	snapshot.RecentEvents = make([]SystemEvent, len(m.RecentEvents))
	copy(snapshot.RecentEvents, m.RecentEvents)

	return snapshot
}

func smoothTimeSeriesData(data []TimeSeriesPoint, windowSize int) []TimeSeriesPoint {
	if len(data) <= windowSize {
		out := make([]TimeSeriesPoint, len(data))
		copy(out, data)
		return out
	}

	smoothed := make([]TimeSeriesPoint, len(data))

	for i := range data {
		sum := 0.0
		count := 0

		for j := max(0, i-windowSize/2); j <= min(len(data)-1, i+windowSize/2); j++ {
			sum += data[j].Value
			count++
		}

		smoothed[i] = TimeSeriesPoint{
			Timestamp: data[i].Timestamp,
			Value:     sum / float64(count),
		}
	}

	return smoothed
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
