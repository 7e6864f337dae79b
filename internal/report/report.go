// Package report builds the immutable session report and exports it as
// CSV and JSON documents.
package report

import (
	"time"

	"github.com/streamwatch/hls-checker/internal/stats"
)

// Report is the final snapshot of a check session. It is fully
// self-contained: exporters may hold it indefinitely while a new session
// runs.
type Report struct {
	SessionID string        `json:"session_id"`
	Status    string        `json:"status"` // completed, stopped, failed
	Start     time.Time     `json:"start_time"`
	End       time.Time     `json:"end_time"`
	Requested time.Duration `json:"requested_duration"`

	Channels []stats.ChannelSnapshot `json:"channels"`
	Summary  stats.GlobalSummary     `json:"summary"`

	// Session-wide download-time percentiles across all channels.
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// SessionID derives the session identifier from a start timestamp.
func SessionID(start time.Time) string {
	return start.Format("20060102_150405")
}

// Build constructs a Report from channel snapshots. The snapshots are
// already immutable copies, so the report shares no state with the run
// that produced them. A run with no data still yields a valid report.
func Build(status string, start, end time.Time, requested time.Duration, snaps []stats.ChannelSnapshot) *Report {
	channels := make([]stats.ChannelSnapshot, len(snaps))
	copy(channels, snaps)

	return &Report{
		SessionID: SessionID(start),
		Status:    status,
		Start:     start,
		End:       end,
		Requested: requested,
		Channels:  channels,
		Summary:   stats.Summarize(channels),
	}
}

// Duration returns the actual elapsed time of the session.
func (r *Report) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
