// Package stats provides per-channel and aggregated statistics for HLS
// stream checking.
//
// ChannelStats accumulates segment outcomes for a single channel:
// - Segment counts (total, successful, failed)
// - Bytes downloaded and cumulative download time
// - Failure tallies per category
// - Download-time percentiles via t-digest
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/streamwatch/hls-checker/internal/prober"
)

// ChannelStats holds the running counters for one channel.
//
// Thread-safe: a mutex guards all fields so concurrent workers can record
// outcomes while the progress logger takes snapshots.
type ChannelStats struct {
	ID   string
	Name string

	mu           sync.Mutex
	total        int64
	successful   int64
	failed       int64
	bytes        int64
	downloadTime time.Duration
	errors       map[string]int64
	digest       *tdigest.TDigest
	lastOutcome  time.Time
}

// NewChannelStats creates stats for a channel.
func NewChannelStats(id, name string) *ChannelStats {
	return &ChannelStats{
		ID:     id,
		Name:   name,
		errors: make(map[string]int64),
		digest: tdigest.NewWithCompression(100),
	}
}

// Record folds one segment outcome into the counters.
// Failed outcomes contribute to the total and the error tally but never
// to bytes or download time.
func (s *ChannelStats) Record(out prober.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.lastOutcome = out.When

	if out.OK {
		s.successful++
		s.bytes += out.Bytes
		s.downloadTime += out.Duration
		s.digest.Add(float64(out.Duration.Nanoseconds()), 1)
		return
	}

	s.failed++
	if out.Category != "" {
		s.errors[out.Category]++
	}
}

// ChannelSnapshot is an immutable view of a channel's counters with
// derived values recomputed from the raw counts.
type ChannelSnapshot struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Total        int64            `json:"total_segments"`
	Successful   int64            `json:"successful"`
	Failed       int64            `json:"failed"`
	Bytes        int64            `json:"bytes"`
	DownloadTime time.Duration    `json:"download_time"`
	SuccessRate  float64          `json:"success_rate"`   // percent
	AvgSpeedMBps float64          `json:"avg_speed_mbps"` // MB/s over successful downloads
	P50          time.Duration    `json:"p50"`
	P95          time.Duration    `json:"p95"`
	P99          time.Duration    `json:"p99"`
	Errors       map[string]int64 `json:"errors,omitempty"`
	LastOutcome  time.Time        `json:"last_outcome"`
}

// Snapshot returns the current counters with derived rate and speed.
func (s *ChannelStats) Snapshot() ChannelSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ChannelSnapshot{
		ID:           s.ID,
		Name:         s.Name,
		Total:        s.total,
		Successful:   s.successful,
		Failed:       s.failed,
		Bytes:        s.bytes,
		DownloadTime: s.downloadTime,
		SuccessRate:  SuccessRate(s.successful, s.total),
		AvgSpeedMBps: AvgSpeedMBps(s.bytes, s.downloadTime),
		LastOutcome:  s.lastOutcome,
	}

	if s.successful > 0 {
		snap.P50 = time.Duration(s.digest.Quantile(0.50))
		snap.P95 = time.Duration(s.digest.Quantile(0.95))
		snap.P99 = time.Duration(s.digest.Quantile(0.99))
	}

	if len(s.errors) > 0 {
		snap.Errors = make(map[string]int64, len(s.errors))
		for category, count := range s.errors {
			snap.Errors[category] = count
		}
	}

	return snap
}

// SuccessRate returns successful/total as a percentage, 0 when total is 0.
func SuccessRate(successful, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

// AvgSpeedMBps returns the average download speed in MB/s, 0 when no
// download time was accumulated.
func AvgSpeedMBps(bytes int64, downloadTime time.Duration) float64 {
	if downloadTime <= 0 {
		return 0
	}
	return float64(bytes) / 1_000_000 / downloadTime.Seconds()
}
