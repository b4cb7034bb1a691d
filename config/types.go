package config

import (
	"net"
	"strconv"
	"time"

	"github.com/asmodhias/capproxy/log"
)

const (
	NamingUnique    = "unique"    // <prefix><unix>_<id8><ext>
	NamingTimestamp = "timestamp" // <prefix><unix><ext>, same-second sessions overwrite
)

// Endpoint is a host/port pair. Listen and upstream are both set once at
// startup and never change while the relay runs.
type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string { return e.Addr() }

type RelayConfig struct {
	IdleTimeoutMs  int `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`
	DialTimeoutMs  int `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	ChunkSize      int `json:"chunk_size" yaml:"chunk_size"`
	MaxConnections int `json:"max_connections" yaml:"max_connections"` // 0 = unlimited
}

func (r RelayConfig) IdleTimeout() time.Duration {
	return time.Duration(r.IdleTimeoutMs) * time.Millisecond
}

func (r RelayConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutMs) * time.Millisecond
}

type CaptureConfig struct {
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	Prefix    string `json:"prefix" yaml:"prefix"`
	Extension string `json:"extension" yaml:"extension"`
	Naming    string `json:"naming" yaml:"naming"`
	Index     bool   `json:"index" yaml:"index"`
}

type SystemConfig struct {
	Logging         Logging         `json:"logging" yaml:"logging"`
	WebServer       WebServerConfig `json:"web_server" yaml:"web_server"`
	DrainTimeoutSec int             `json:"drain_timeout_sec" yaml:"drain_timeout_sec"`
}

type Logging struct {
	Level      log.Level `json:"level" yaml:"level"`
	Instaflush bool      `json:"instaflush" yaml:"instaflush"`
	Syslog     bool      `json:"syslog" yaml:"syslog"`
	ErrorFile  string    `json:"error_file" yaml:"error_file"`
}

type WebServerConfig struct {
	Port        int    `json:"port" yaml:"port"`
	BindAddress string `json:"bind_address" yaml:"bind_address"`
	IsEnabled   bool   `json:"-" yaml:"-"`
}
