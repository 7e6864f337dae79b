package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/streamwatch/hls-checker/internal/playlist"
	"github.com/streamwatch/hls-checker/internal/prober"
)

// Tracker owns the per-channel accumulators for one check session and a
// session-wide digest of successful download times.
//
// Thread-safe: an RWMutex guards the channel map; each ChannelStats has
// its own lock.
type Tracker struct {
	mu       sync.RWMutex
	channels map[string]*ChannelStats

	globalMu     sync.Mutex
	globalDigest *tdigest.TDigest
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		channels:     make(map[string]*ChannelStats),
		globalDigest: tdigest.NewWithCompression(100),
	}
}

// Channel returns the accumulator for a channel, creating it on first use.
func (t *Tracker) Channel(id, name string) *ChannelStats {
	t.mu.RLock()
	cs, ok := t.channels[id]
	t.mu.RUnlock()
	if ok {
		return cs
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cs, ok = t.channels[id]; ok {
		return cs
	}
	cs = NewChannelStats(id, name)
	t.channels[id] = cs
	return cs
}

// Record folds an outcome into the channel's accumulator and the
// session-wide digest.
func (t *Tracker) Record(id, name string, out prober.Outcome) {
	t.Channel(id, name).Record(out)

	if out.OK {
		t.globalMu.Lock()
		t.globalDigest.Add(float64(out.Duration.Nanoseconds()), 1)
		t.globalMu.Unlock()
	}
}

// Snapshots returns one snapshot per channel, ordered by ascending
// channel ID.
func (t *Tracker) Snapshots() []ChannelSnapshot {
	t.mu.RLock()
	stats := make([]*ChannelStats, 0, len(t.channels))
	for _, cs := range t.channels {
		stats = append(stats, cs)
	}
	t.mu.RUnlock()

	snaps := make([]ChannelSnapshot, 0, len(stats))
	for _, cs := range stats {
		snaps = append(snaps, cs.Snapshot())
	}
	sortSnapshots(snaps)
	return snaps
}

// ChannelCount returns the number of channels with recorded outcomes.
func (t *Tracker) ChannelCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.channels)
}

// GlobalPercentiles returns session-wide download-time percentiles.
// All zero when no successful downloads were recorded.
func (t *Tracker) GlobalPercentiles() (p50, p95, p99 time.Duration) {
	t.globalMu.Lock()
	defer t.globalMu.Unlock()

	if t.globalDigest.Count() == 0 {
		return 0, 0, 0
	}
	return time.Duration(t.globalDigest.Quantile(0.50)),
		time.Duration(t.globalDigest.Quantile(0.95)),
		time.Duration(t.globalDigest.Quantile(0.99))
}

// sortSnapshots orders snapshots by ascending channel ID, numeric-aware.
func sortSnapshots(snaps []ChannelSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return playlist.LessID(snaps[i].ID, snaps[j].ID)
	})
}
