// Package config provides configuration management for hls-checker.
package config

import "time"

// Config holds all configuration options for the checker process.
// Run-scoped options are defaults; a control-API start request may
// override them for an individual session.
type Config struct {
	// Run defaults
	Count         string        `json:"count"` // "all" or a number of channels
	Minutes       int           `json:"minutes"`
	CheckInterval time.Duration `json:"check_interval"`
	Timeout       time.Duration `json:"timeout"`
	MaxRetries    int           `json:"max_retries"`
	Concurrency   int           `json:"concurrency"`

	// Playlist catalog
	PlaylistPath    string `json:"playlist_path"`
	UpstreamURL     string `json:"upstream_url"`
	RefreshPlaylist bool   `json:"refresh_playlist"`

	// Export
	ExportData bool   `json:"export_data"`
	DataDir    string `json:"data_dir"`

	// Server mode
	Serve      bool   `json:"serve"`
	ListenAddr string `json:"listen_addr"`

	// Observability
	MetricsAddr    string `json:"metrics_addr"`
	Verbose        bool   `json:"verbose"`
	LogFormat      string `json:"log_format"` // json, text
	LogBufferLines int    `json:"log_buffer_lines"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Run defaults
		Count:         "1",
		Minutes:       5,
		CheckInterval: 30 * time.Second,
		Timeout:       10 * time.Second,
		MaxRetries:    3,
		Concurrency:   4,

		// Playlist catalog
		PlaylistPath: "playlist_streams.json",

		// Export
		ExportData: true,
		DataDir:    "data",

		// Server mode
		ListenAddr: "0.0.0.0:5000",

		// Observability
		MetricsAddr:    "0.0.0.0:17092",
		LogFormat:      "json",
		LogBufferLines: 1000,
	}
}
