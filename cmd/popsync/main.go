// Popsync drains remote POP3 mailboxes into local maildirs, or forwards
// the fetched messages to another mailbox over SMTP.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/popsync/popsync/internal/config"
	"github.com/popsync/popsync/internal/state"
	"github.com/popsync/popsync/internal/worker"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/popsync/config.yml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("popsync %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	logger.Info("popsync starting",
		"version", version,
		"accounts", len(cfg.Accounts),
		"interval_seconds", cfg.IntervalSeconds,
	)

	// Initialize state tracker.
	tracker, err := state.NewTracker(cfg.StatePath)
	if err != nil {
		logger.Error("failed to initialize state tracker", "error", err)
		os.Exit(1)
	}

	// Expose Prometheus metrics when configured.
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics listener starting", "addr", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	w := worker.New(cfg, tracker, logger)

	// One-shot mode.
	if cfg.IntervalSeconds <= 0 {
		if err := w.Run(); err != nil {
			logger.Error("run completed with errors", "error", err)
			os.Exit(1)
		}
		logger.Info("popsync finished successfully")
		return
	}

	// Interval mode: run now, then on every tick until a signal arrives.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	if err := w.Run(); err != nil {
		logger.Error("run completed with errors", "error", err)
	}

	for {
		select {
		case sig := <-stop:
			logger.Info("popsync shutting down", "signal", sig.String())
			return
		case <-ticker.C:
			if err := w.Run(); err != nil {
				logger.Error("run completed with errors", "error", err)
			}
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
