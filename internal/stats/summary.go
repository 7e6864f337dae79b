// Exit summary formatter: the console report printed at the end of a
// check session.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// SessionID identifies the run (timestamp-based).
	SessionID string

	// Duration is the elapsed wall-clock time of the session.
	Duration time.Duration

	// RequestedChannels is the number of channels the run asked for.
	RequestedChannels int

	// MetricsAddr is the Prometheus metrics endpoint address.
	MetricsAddr string

	// ShowPerChannel enables the per-channel table.
	ShowPerChannel bool

	// P50, P95, P99 are session-wide download-time percentiles.
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// FormatExitSummary formats the final session report for display.
func FormatExitSummary(sum GlobalSummary, snaps []ChannelSnapshot, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                          hls-checker Session Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Session:                %s\n", cfg.SessionID)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Requested Channels:     %d\n", cfg.RequestedChannels)
	fmt.Fprintf(&b, "Channels Checked:       %d\n\n", sum.ChannelsChecked)

	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                              Segment Statistics\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Total Segments:       %s\n", FormatNumber(sum.TotalSegments))
	fmt.Fprintf(&b, "  Successful:           %s\n", FormatNumber(sum.Successful))
	fmt.Fprintf(&b, "  Failed:               %s\n", FormatNumber(sum.Failed))
	fmt.Fprintf(&b, "  Success Rate:         %.2f%%\n", sum.SuccessRate)
	fmt.Fprintf(&b, "  Total Bytes:          %s\n", FormatBytes(sum.TotalBytes))
	fmt.Fprintf(&b, "  Average Speed:        %.2f MB/s\n\n", sum.AvgSpeedMBps)

	if cfg.P50 > 0 || cfg.P95 > 0 {
		b.WriteString("  Download Time Percentiles:\n")
		fmt.Fprintf(&b, "    P50 (median):       %s\n", FormatMs(cfg.P50))
		fmt.Fprintf(&b, "    P95:                %s\n", FormatMs(cfg.P95))
		fmt.Fprintf(&b, "    P99:                %s\n\n", FormatMs(cfg.P99))
	}

	if sum.BestChannel.ID != "" {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                              Channel Extremes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  Best:                 %s (%s) at %.2f%%\n",
			sum.BestChannel.Name, sum.BestChannel.ID, sum.BestChannel.SuccessRate)
		fmt.Fprintf(&b, "  Worst:                %s (%s) at %.2f%%\n\n",
			sum.WorstChannel.Name, sum.WorstChannel.ID, sum.WorstChannel.SuccessRate)
	}

	if cfg.ShowPerChannel && len(snaps) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                               Per-Channel Detail\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  %-6s %-24s %8s %8s %8s %10s %10s\n",
			"ID", "Name", "Total", "OK", "Rate", "Bytes", "MB/s")
		b.WriteString("  " + strings.Repeat("─", 78) + "\n")
		for _, snap := range snaps {
			fmt.Fprintf(&b, "  %-6s %-24s %8d %8d %7.1f%% %10s %10.2f\n",
				snap.ID,
				truncateName(snap.Name, 24),
				snap.Total,
				snap.Successful,
				snap.SuccessRate,
				FormatBytes(snap.Bytes),
				snap.AvgSpeedMBps,
			)
		}
		b.WriteString("\n")
	}

	if len(sum.ErrorCounts) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Errors\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		categories := make([]string, 0, len(sum.ErrorCounts))
		for category := range sum.ErrorCounts {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			fmt.Fprintf(&b, "  %-20s  %d\n", category+":", sum.ErrorCounts[category])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// truncateName shortens a channel name to fit the table column.
func truncateName(name string, max int) string {
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	return string(runes[:max-1]) + "…"
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
