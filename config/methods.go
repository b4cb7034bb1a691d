package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/asmodhias/capproxy/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	MinChunkSize = 512
	MaxChunkSize = 1 << 20
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (c *Config) SaveToFile(path string) error {
	if path == "" {
		log.Tracef("config path is not defined")
		return nil
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return log.Errorf("failed to marshal config: %v", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return log.Errorf("failed to create config file: %v", err)
	}
	defer file.Close()

	if _, err = file.Write(data); err != nil {
		return log.Errorf("failed to write config file: %v", err)
	}
	return nil
}

func (c *Config) LoadFromFile(path string) error {
	data, err := readConfigFile(path)
	if err != nil || data == nil {
		return err
	}
	return c.decode(path, data)
}

func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		log.Tracef("config path is not defined")
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, log.Errorf("failed to stat config file: %v", err)
	}
	if info.IsDir() {
		return nil, log.Errorf("config path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, log.Errorf("failed to read config file: %v", err)
	}
	return data, nil
}

func (c *Config) decode(path string, data []byte) error {
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		// comments and trailing commas are allowed in JSON config files
		err = json.Unmarshal(jsonc.ToJSON(data), c)
	}
	if err != nil {
		return log.Errorf("failed to parse config file: %v", err)
	}
	return nil
}

// LoadWithFlags loads the config file (with migrations) and then re-applies
// every flag the user set explicitly, so the command line wins over the file.
func (c *Config) LoadWithFlags(cmd *cobra.Command) error {
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := c.LoadWithMigration(c.ConfigPath); err != nil {
		return err
	}

	for name, value := range changed {
		if name == "config" {
			continue
		}
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("failed to re-apply flag --%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) ApplyLogLevel(level string) {
	c.System.Logging.Level = log.ParseLevel(level)
}

func (c *Config) Validate() error {
	c.System.WebServer.IsEnabled = c.System.WebServer.Port > 0 && c.System.WebServer.Port <= 65535

	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen-port must be between 0 and 65535")
	}

	if c.Upstream.Host == "" {
		return fmt.Errorf("upstream-host must be specified")
	}

	if c.Upstream.Port < 1 || c.Upstream.Port > 65535 {
		return fmt.Errorf("upstream-port must be between 1 and 65535")
	}

	if c.Relay.IdleTimeoutMs <= 0 {
		return fmt.Errorf("idle-timeout-ms must be positive")
	}

	if c.Relay.DialTimeoutMs <= 0 {
		return fmt.Errorf("dial-timeout-ms must be positive")
	}

	if c.Relay.ChunkSize < MinChunkSize || c.Relay.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk-size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}

	if c.Relay.MaxConnections < 0 {
		return fmt.Errorf("max-conns must not be negative")
	}

	if c.Capture.OutputDir == "" {
		return fmt.Errorf("capture-dir must be specified")
	}

	if strings.ContainsRune(c.Capture.Prefix, filepath.Separator) {
		return fmt.Errorf("capture-prefix must not contain a path separator")
	}

	if c.Capture.Extension != "" && !strings.HasPrefix(c.Capture.Extension, ".") {
		c.Capture.Extension = "." + c.Capture.Extension
	}

	switch c.Capture.Naming {
	case NamingUnique, NamingTimestamp:
	default:
		return fmt.Errorf("capture-naming must be %q or %q, got %q", NamingUnique, NamingTimestamp, c.Capture.Naming)
	}

	if c.System.WebServer.Port < 0 || c.System.WebServer.Port > 65535 {
		return fmt.Errorf("web-port must be between 0 and 65535")
	}

	if c.System.DrainTimeoutSec < 0 {
		return fmt.Errorf("drain-timeout must not be negative")
	}

	return nil
}
