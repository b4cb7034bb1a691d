package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/config"
	caphttp "github.com/asmodhias/capproxy/http"
	"github.com/asmodhias/capproxy/http/handler"
	"github.com/asmodhias/capproxy/log"
	"github.com/asmodhias/capproxy/metrics"
	"github.com/asmodhias/capproxy/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	cfg         = config.NewConfig()
	verboseFlag string
	showVersion bool
	Version     = "dev"
	Commit      = "none"
	Date        = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "capproxy",
	Short:         "TCP relay that captures client bytes",
	Long:          `capproxy forwards every accepted TCP connection to one fixed upstream and records the client->upstream bytes of each connection to its own file`,
	RunE:          runProxy,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cfg.BindFlags(rootCmd)

	rootCmd.Flags().StringVar(&verboseFlag, "verbose", "info", "Set verbosity level (debug, trace, info, error, silent)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runProxy(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("capproxy version: %s (%s) %s\n", Version, Commit, Date)
		return nil
	}
	handler.Version, handler.Commit, handler.Date = Version, Commit, Date

	if err := cfg.LoadWithFlags(cmd); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("verbose") || cfg.ConfigPath == "" {
		cfg.ApplyLogLevel(verboseFlag)
	}

	if err := initLogging(&cfg); err != nil {
		return fmt.Errorf("logging initialization failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return log.Errorf("invalid configuration: %w", err)
	}

	printConfigDefaults(cmd)

	m := metrics.GetMetricsCollector()
	m.RecordEvent("info", "capproxy starting up")

	store, err := capture.NewStore(capture.OptionsFromConfig(cfg.Capture))
	if err != nil {
		return log.Errorf("failed to prepare capture directory: %w", err)
	}

	srv := relay.NewServer(&cfg, store, m)
	if err := srv.Start(context.Background()); err != nil {
		m.RecordEvent("error", err.Error())
		return log.Errorf("%w", err)
	}

	httpServer, err := caphttp.StartServer(&cfg, store, m)
	if err != nil {
		m.RecordEvent("error", fmt.Sprintf("Failed to start web server: %v", err))
		srv.Stop()
		return log.Errorf("failed to start web server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Tracef("Received signal: %v", sig)
	m.RecordEvent("info", fmt.Sprintf("Shutdown initiated by signal: %v", sig))

	return gracefulShutdown(&cfg, srv, httpServer)
}

// gracefulShutdown releases the listening socket first so no new sessions
// start, then optionally lets in-flight sessions finish.
func gracefulShutdown(cfg *config.Config, srv *relay.Server, httpServer *http.Server) error {
	if err := srv.Stop(); err != nil {
		log.Errorf("Relay listener close error: %v", err)
	}

	if d := time.Duration(cfg.System.DrainTimeoutSec) * time.Second; d > 0 {
		drainCtx, cancel := context.WithTimeout(context.Background(), d)
		if err := srv.Wait(drainCtx); err != nil {
			log.Infof("Drain timeout reached, abandoning in-flight sessions")
		}
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	if httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Errorf("HTTP server shutdown error: %v", err)
			} else {
				log.Tracef("HTTP server stopped")
			}
		}()
	}
	caphttp.Shutdown()
	wg.Wait()

	log.Infof("Exiting")
	log.CloseErrorFile()
	log.Flush()
	return nil
}

func initLogging(cfg *config.Config) error {
	log.Init(log.OrigStderr(), cfg.System.Logging.Level, cfg.System.Logging.Instaflush)

	if cfg.System.WebServer.Port > 0 {
		log.AttachSink(caphttp.LogWriter())
	}

	if cfg.System.Logging.Syslog {
		if err := log.EnableSyslog("capproxy"); err != nil {
			return log.Errorf("failed to enable syslog: %w", err)
		}
		log.Tracef("Syslog enabled")
	}

	if cfg.System.Logging.ErrorFile != "" {
		if err := log.InitErrorFile(cfg.System.Logging.ErrorFile); err != nil {
			log.Errorf("Failed to open error log file: %v", err)
		} else {
			log.Tracef("Error logging to file: %s", cfg.System.Logging.ErrorFile)
		}
	}

	return nil
}

func printConfigDefaults(cmd *cobra.Command) {
	var all []*pflag.Flag
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	cmd.Flags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	line := ""
	for _, f := range all {
		if line != "" {
			line += " "
		}
		line += fmt.Sprintf("--%s=%s", f.Name, f.Value.String())
	}
	log.Tracef("Effective CLI flags: %s", line)
}
