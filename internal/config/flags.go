package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// ParseFlags parses command-line flags and returns a Config.
// A .env file in the working directory is loaded first so that deployments
// can set defaults without wrapper scripts; flags win over the environment.
func ParseFlags() (*Config, error) {
	// Missing .env is fine; system env and defaults apply.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	applyEnv(cfg)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `hls-checker - HLS stream reachability and throughput checker

Usage:
  hls-checker [flags]

Run Flags:
`)
		printFlagCategory([]string{"count", "minutes", "interval", "timeout", "retries", "concurrency"})

		fmt.Fprintf(os.Stderr, "\nPlaylist Catalog:\n")
		printFlagCategory([]string{"playlist", "upstream", "refresh"})

		fmt.Fprintf(os.Stderr, "\nExport:\n")
		printFlagCategory([]string{"no-export", "data-dir"})

		fmt.Fprintf(os.Stderr, "\nServer Mode:\n")
		printFlagCategory([]string{"serve", "listen"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "v", "log-format"})

		fmt.Fprintf(os.Stderr, "\nDiagnostics:\n")
		printFlagCategory([]string{"skip-preflight"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Check the first 10 channels for 5 minutes each pass
  hls-checker -count 10 -minutes 5

  # Refresh the channel catalog, then check everything
  hls-checker -refresh -count all -minutes 2

  # Run as a control-API server for the web dashboard
  hls-checker -serve -listen 0.0.0.0:5000

`)
	}

	var noExport bool

	// Run flags
	flag.StringVar(&cfg.Count, "count", cfg.Count, `Channels to check: "all" or a number`)
	flag.IntVar(&cfg.Minutes, "minutes", cfg.Minutes, "Check duration per session in minutes")
	flag.DurationVar(&cfg.CheckInterval, "interval", cfg.CheckInterval, "Pacing interval between passes")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP timeout per playlist/segment request")
	flag.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "Retries per segment on transient failures")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Channels probed concurrently (1 = sequential)")

	// Playlist catalog
	flag.StringVar(&cfg.PlaylistPath, "playlist", cfg.PlaylistPath, "Path to the channel catalog JSON cache")
	flag.StringVar(&cfg.UpstreamURL, "upstream", cfg.UpstreamURL, "Upstream catalog API URL (required for -refresh)")
	flag.BoolVar(&cfg.RefreshPlaylist, "refresh", cfg.RefreshPlaylist, "Re-fetch the channel catalog before the run")

	// Export
	flag.BoolVar(&noExport, "no-export", false, "Disable CSV/JSON report export")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for exported reports")

	// Server mode
	flag.BoolVar(&cfg.Serve, "serve", cfg.Serve, "Run the control API server instead of a one-shot check")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Control API listen address")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Diagnostics
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	flag.Parse()

	if noExport {
		cfg.ExportData = false
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Only deployment-facing
// settings are exposed this way; run parameters stay on flags and the API.
func applyEnv(cfg *Config) {
	if v := os.Getenv("HLS_CHECKER_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("HLS_CHECKER_METRICS"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("HLS_CHECKER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HLS_CHECKER_PLAYLIST"); v != "" {
		cfg.PlaylistPath = v
	}
	if v := os.Getenv("HLS_CHECKER_UPSTREAM"); v != "" {
		cfg.UpstreamURL = v
	}
	if v := os.Getenv("HLS_CHECKER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s\n    \t%s", f.Name, f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}
