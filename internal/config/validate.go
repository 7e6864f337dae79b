package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateCount(cfg.Count); err != nil {
		errs = append(errs, ValidationError{
			Field:   "count",
			Message: err.Error(),
		})
	}

	if cfg.Minutes < 1 {
		errs = append(errs, ValidationError{
			Field:   "minutes",
			Message: "must be at least 1",
		})
	}

	if cfg.CheckInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: "must be positive",
		})
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be positive",
		})
	}

	if cfg.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "retries",
			Message: "must be >= 0",
		})
	}

	if cfg.Concurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "concurrency",
			Message: "must be at least 1",
		})
	}

	if cfg.PlaylistPath == "" {
		errs = append(errs, ValidationError{
			Field:   "playlist",
			Message: "must not be empty",
		})
	}

	if cfg.RefreshPlaylist && cfg.UpstreamURL == "" {
		errs = append(errs, ValidationError{
			Field:   "upstream",
			Message: "-refresh requires an upstream catalog URL",
		})
	}

	if cfg.UpstreamURL != "" {
		if err := validateURL(cfg.UpstreamURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "upstream",
				Message: err.Error(),
			})
		}
	}

	if cfg.ExportData && cfg.DataDir == "" {
		errs = append(errs, ValidationError{
			Field:   "data_dir",
			Message: "must not be empty when export is enabled",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateCount checks the channel-count selector: "all" or a positive integer.
func validateCount(count string) error {
	if count == "all" {
		return nil
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return fmt.Errorf(`must be "all" or a number (got %q)`, count)
	}
	if n < 1 {
		return errors.New("must be at least 1")
	}
	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}

// ChannelCount returns the parsed channel count, or 0 for "all".
// Validate must have accepted the config first.
func (c *Config) ChannelCount() int {
	if c.Count == "all" {
		return 0
	}
	n, _ := strconv.Atoi(c.Count)
	return n
}
