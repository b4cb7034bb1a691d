package config

import (
	"github.com/asmodhias/capproxy/log"
)

type Config struct {
	ConfigPath string `json:"-" yaml:"-"`
	Version    int    `json:"version" yaml:"version"`

	Listen   Endpoint      `json:"listen" yaml:"listen"`
	Upstream Endpoint      `json:"upstream" yaml:"upstream"`
	Relay    RelayConfig   `json:"relay" yaml:"relay"`
	Capture  CaptureConfig `json:"capture" yaml:"capture"`
	System   SystemConfig  `json:"system" yaml:"system"`
}

var DefaultConfig = Config{
	ConfigPath: "",

	Listen: Endpoint{
		Host: "127.0.0.1",
		Port: 4318,
	},

	Upstream: Endpoint{
		Host: "172.18.0.3",
		Port: 4318,
	},

	Relay: RelayConfig{
		IdleTimeoutMs:  10000,
		DialTimeoutMs:  10000,
		ChunkSize:      4096,
		MaxConnections: 0,
	},

	Capture: CaptureConfig{
		OutputDir: "target",
		Prefix:    "otlp_forward_capture_",
		Extension: ".bin",
		Naming:    NamingUnique,
		Index:     true,
	},

	System: SystemConfig{
		Logging: Logging{
			Level:      log.LevelInfo,
			Instaflush: true,
			Syslog:     false,
		},

		WebServer: WebServerConfig{
			Port:        0,
			BindAddress: "127.0.0.1",
		},

		DrainTimeoutSec: 0,
	},
}

// NewConfig returns a copy of DefaultConfig stamped with the current config
// version. Config holds no slices or pointers, so the copy is already deep.
func NewConfig() Config {
	cfg := DefaultConfig
	cfg.Version = CurrentConfigVersion
	return cfg
}
