// Package main provides the hls-checker CLI entry point.
//
// hls-checker probes HLS channel playlists, downloads their segments, and
// aggregates per-channel and global download statistics. It runs either as
// a one-shot check or as a long-lived server driven by a control API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/streamwatch/hls-checker/internal/api"
	"github.com/streamwatch/hls-checker/internal/checker"
	"github.com/streamwatch/hls-checker/internal/config"
	"github.com/streamwatch/hls-checker/internal/logging"
	"github.com/streamwatch/hls-checker/internal/metrics"
	"github.com/streamwatch/hls-checker/internal/playlist"
	"github.com/streamwatch/hls-checker/internal/preflight"
	"github.com/streamwatch/hls-checker/internal/report"
	"github.com/streamwatch/hls-checker/internal/stats"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/hls-checker
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("hls-checker %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	logger, ring := logging.NewBufferedLogger(cfg.LogFormat, "info", cfg.Verbose, cfg.LogBufferLines)
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(cfg)
		preflight.PrintResults(result)
		if !result.Passed {
			logger.Error("preflight_failed")
			return 1
		}
	}

	logger.Info("starting",
		"version", version,
		"serve", cfg.Serve,
		"channels", cfg.Count,
		"minutes", cfg.Minutes,
		"metrics_addr", cfg.MetricsAddr,
	)

	collector := metrics.NewCollector(version)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, collector, logger)
	if err := metricsSrv.Start(); err != nil {
		logger.Error("metrics_server_failed", "error", err)
		return 1
	}
	defer shutdown(metricsSrv.Shutdown)

	// Export toggle; the control API may flip it per session.
	var exportOn atomic.Bool
	exportOn.Store(cfg.ExportData)
	exporter := report.NewExporter(cfg.DataDir)

	chk := checker.New(checker.Options{
		Logger:    logger,
		Collector: collector,
		OnReport: func(rep *report.Report) {
			if !exportOn.Load() {
				return
			}
			paths, err := exporter.Export(rep)
			if err != nil {
				logger.Error("export_failed", "session", rep.SessionID, "error", err)
				return
			}
			logger.Info("report_exported", "session", rep.SessionID, "files", paths)
		},
	})

	if cfg.Serve {
		return runServer(cfg, logger, ring, chk, &exportOn)
	}
	return runOnce(cfg, logger, chk)
}

// loadChannels loads the catalog (refreshing from upstream when asked)
// and selects the channels for a run.
func loadChannels(ctx context.Context, cfg *config.Config, count int, refresh bool) ([]playlist.Channel, error) {
	var cat *playlist.Catalog
	var err error

	if refresh && cfg.UpstreamURL != "" {
		cat, err = playlist.Refresh(ctx, &http.Client{Timeout: 30 * time.Second}, cfg.UpstreamURL)
		if err != nil {
			return nil, err
		}
		if saveErr := cat.Save(cfg.PlaylistPath); saveErr != nil {
			return nil, saveErr
		}
	} else {
		cat, err = playlist.Load(cfg.PlaylistPath)
		if err != nil {
			return nil, err
		}
	}

	channels := cat.Select(count)
	if len(channels) == 0 {
		return nil, fmt.Errorf("catalog %s has no usable channels", cfg.PlaylistPath)
	}
	return channels, nil
}

// runOnce runs a single check session and prints the exit summary.
func runOnce(cfg *config.Config, logger *slog.Logger, chk *checker.Checker) int {
	ctx := context.Background()

	channels, err := loadChannels(ctx, cfg, cfg.ChannelCount(), cfg.RefreshPlaylist)
	if err != nil {
		logger.Error("channel_load_failed", "error", err)
		return 1
	}

	printBanner(cfg, len(channels))

	sessionID, err := chk.Start(checker.RunConfig{
		Channels:    channels,
		Duration:    time.Duration(cfg.Minutes) * time.Minute,
		Interval:    cfg.CheckInterval,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		logger.Error("check_start_failed", "error", err)
		return 1
	}

	// Ctrl+C stops the session early; the partial report still prints.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := chk.Done()
	select {
	case <-done:
	case sig := <-sigCh:
		logger.Info("signal_received", "signal", sig.String())
		if err := chk.Stop(); err == nil {
			<-done
		}
	}

	rep := chk.LastReport()
	if rep == nil {
		logger.Error("no_report_produced", "session", sessionID)
		return 1
	}

	fmt.Print(stats.FormatExitSummary(rep.Summary, rep.Channels, stats.SummaryConfig{
		SessionID:         rep.SessionID,
		Duration:          rep.Duration(),
		RequestedChannels: len(channels),
		MetricsAddr:       cfg.MetricsAddr,
		ShowPerChannel:    true,
		P50:               rep.P50,
		P95:               rep.P95,
		P99:               rep.P99,
	}))

	if rep.Status == "stopped" {
		return 130
	}
	return 0
}

// runServer runs the control API until a shutdown signal arrives.
func runServer(cfg *config.Config, logger *slog.Logger, ring *logging.RingHandler, chk *checker.Checker, exportOn *atomic.Bool) int {
	srv := api.NewServer(api.Options{
		Addr:     cfg.ListenAddr,
		Logger:   logger,
		Checker:  chk,
		Defaults: cfg,
		Channels: func(ctx context.Context, count int, refresh bool) ([]playlist.Channel, error) {
			return loadChannels(ctx, cfg, count, refresh)
		},
		Ring:      ring,
		SetExport: func(v bool) { exportOn.Store(v) },
		Version:   version,
	})

	if err := srv.Start(); err != nil {
		logger.Error("api_server_failed", "error", err)
		return 1
	}

	logger.Info("server_ready",
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("signal_received", "signal", sig.String())

	// Stop a running session first so its report is exported.
	if err := chk.Stop(); err == nil {
		if done := chk.Done(); done != nil {
			select {
			case <-done:
			case <-time.After(shutdownTimeout):
				logger.Error("session_stop_timeout")
			}
		}
	}

	shutdown(srv.Shutdown)
	logger.Info("server_stopped")
	return 0
}

// shutdown runs a graceful shutdown function with a bounded timeout.
func shutdown(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = fn(ctx)
}

// printBanner prints the startup banner for one-shot runs.
func printBanner(cfg *config.Config, channels int) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          hls-checker                              ║")
	fmt.Println("║          HLS Stream Checking and Statistics Aggregation           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Channels:    %d\n", channels)
	fmt.Printf("  Duration:    %d minutes\n", cfg.Minutes)
	fmt.Printf("  Interval:    %s between passes\n", cfg.CheckInterval)
	fmt.Printf("  Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.ExportData {
		fmt.Printf("  Export:      %s/\n", cfg.DataDir)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
