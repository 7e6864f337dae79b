// Package preflight provides startup validation checks.
package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/streamwatch/hls-checker/internal/config"
	"github.com/streamwatch/hls-checker/internal/playlist"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for the given configuration.
func RunAll(cfg *config.Config) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	catalogCheck := checkCatalog(cfg.PlaylistPath, cfg.RefreshPlaylist)
	result.Checks = append(result.Checks, catalogCheck)
	if !catalogCheck.Passed {
		result.Passed = false
	}

	if cfg.ExportData {
		dirCheck := checkDataDir(cfg.DataDir)
		result.Checks = append(result.Checks, dirCheck)
		if !dirCheck.Passed {
			result.Passed = false
		}
	}

	// File descriptor check (warning only: the pool caps usage)
	fdCheck := checkFileDescriptors(cfg.Concurrency)
	result.Checks = append(result.Checks, fdCheck)

	return result
}

// checkCatalog verifies the channel catalog is readable and usable.
// With refresh enabled a missing file is fine: it will be fetched.
func checkCatalog(path string, refresh bool) Check {
	cat, err := playlist.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && refresh {
			return Check{
				Name:    "channel_catalog",
				Passed:  true,
				Warning: true,
				Message: fmt.Sprintf("%s missing, will fetch from upstream", path),
			}
		}
		return Check{
			Name:    "channel_catalog",
			Passed:  false,
			Message: fmt.Sprintf("cannot load %s: %v", path, err),
		}
	}

	usable := 0
	for _, ch := range cat.Channels {
		if ch.StreamURL() != "" {
			usable++
		}
	}
	if usable == 0 {
		return Check{
			Name:    "channel_catalog",
			Passed:  false,
			Message: fmt.Sprintf("%s has no channels with a stream URL", path),
		}
	}

	return Check{
		Name:    "channel_catalog",
		Passed:  true,
		Message: fmt.Sprintf("%s (%d channels, %d usable)", path, len(cat.Channels), usable),
	}
}

// checkDataDir verifies the export directory exists and is writable.
func checkDataDir(dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "data_directory",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Check{
			Name:    "data_directory",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	os.Remove(probe)

	return Check{
		Name:    "data_directory",
		Passed:  true,
		Message: dir + " is writable",
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available
// for the HTTP client pool plus server sockets.
func checkFileDescriptors(concurrency int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	required := concurrency*4 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   true, // never fatal, downloads just queue
		Warning:  actual < required,
		Message:  fmt.Sprintf("ulimit -n %d (recommend %d for concurrency %d)", actual, required, concurrency),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "channel_catalog":
		return "provide a catalog file or set -upstream with -refresh"
	case "data_directory":
		return "set -data-dir to a writable path or disable export with -no-export"
	case "file_descriptors":
		return "ulimit -n 4096 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}
