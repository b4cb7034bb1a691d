package config

import "github.com/spf13/cobra"

func (c *Config) BindFlags(cmd *cobra.Command) {
	// Config path
	cmd.Flags().StringVar(&c.ConfigPath, "config", c.ConfigPath, "Path to config file (.json, .yaml or .yml)")

	// Endpoints
	cmd.Flags().StringVar(&c.Listen.Host, "listen-host", c.Listen.Host, "Local address to accept client connections on")
	cmd.Flags().IntVar(&c.Listen.Port, "listen-port", c.Listen.Port, "Local port to accept client connections on")
	cmd.Flags().StringVar(&c.Upstream.Host, "upstream-host", c.Upstream.Host, "Upstream host every connection is forwarded to")
	cmd.Flags().IntVar(&c.Upstream.Port, "upstream-port", c.Upstream.Port, "Upstream port every connection is forwarded to")

	// Relay
	cmd.Flags().IntVar(&c.Relay.IdleTimeoutMs, "idle-timeout-ms", c.Relay.IdleTimeoutMs, "Max time a single read or write may block, in ms")
	cmd.Flags().IntVar(&c.Relay.DialTimeoutMs, "dial-timeout-ms", c.Relay.DialTimeoutMs, "Upstream connect timeout, in ms")
	cmd.Flags().IntVar(&c.Relay.ChunkSize, "chunk-size", c.Relay.ChunkSize, "Read chunk size in bytes (512..1048576)")
	cmd.Flags().IntVar(&c.Relay.MaxConnections, "max-conns", c.Relay.MaxConnections, "Max concurrent client connections (0 = unlimited)")

	// Capture
	cmd.Flags().StringVar(&c.Capture.OutputDir, "capture-dir", c.Capture.OutputDir, "Directory capture artifacts are written to")
	cmd.Flags().StringVar(&c.Capture.Prefix, "capture-prefix", c.Capture.Prefix, "File name prefix for capture artifacts")
	cmd.Flags().StringVar(&c.Capture.Extension, "capture-ext", c.Capture.Extension, "File extension for capture artifacts")
	cmd.Flags().StringVar(&c.Capture.Naming, "capture-naming", c.Capture.Naming, "Artifact naming mode (unique|timestamp)")
	cmd.Flags().BoolVar(&c.Capture.Index, "capture-index", c.Capture.Index, "Maintain captures.json index next to the artifacts")

	// System
	cmd.Flags().IntVar(&c.System.DrainTimeoutSec, "drain-timeout", c.System.DrainTimeoutSec, "Seconds to wait for in-flight sessions on shutdown (0 = exit immediately)")
	cmd.Flags().BoolVarP(&c.System.Logging.Instaflush, "instaflush", "i", c.System.Logging.Instaflush, "Flush logs immediately")
	cmd.Flags().BoolVar(&c.System.Logging.Syslog, "syslog", c.System.Logging.Syslog, "Enable syslog output")
	cmd.Flags().StringVar(&c.System.Logging.ErrorFile, "error-file", c.System.Logging.ErrorFile, "Append errors to this file")

	cmd.Flags().IntVar(&c.System.WebServer.Port, "web-port", c.System.WebServer.Port, "Port for internal web server (0 disables)")
	cmd.Flags().StringVar(&c.System.WebServer.BindAddress, "web-bind", c.System.WebServer.BindAddress, "Bind address for internal web server")
}
