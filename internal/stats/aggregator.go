package stats

import (
	"time"

	"github.com/streamwatch/hls-checker/internal/playlist"
)

// GlobalSummary is the session-wide reduction of per-channel snapshots.
// It is a pure function of the snapshots it was built from.
type GlobalSummary struct {
	ChannelsChecked   int           `json:"channels_checked"`
	CompletedChannels int           `json:"completed_channels"` // channels with at least one success
	TotalSegments     int64         `json:"total_segments"`
	Successful        int64         `json:"successful"`
	Failed            int64         `json:"failed"`
	SuccessRate       float64       `json:"success_rate"` // percent
	TotalBytes        int64         `json:"total_bytes"`
	TotalTime         time.Duration `json:"total_download_time"`
	AvgSpeedMBps      float64       `json:"avg_speed_mbps"`

	BestChannel  ChannelRef `json:"best_channel"`
	WorstChannel ChannelRef `json:"worst_channel"`

	ErrorCounts map[string]int64 `json:"error_counts,omitempty"`
}

// ChannelRef identifies a channel singled out by the summary.
// Empty ID means no channel qualified.
type ChannelRef struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	SuccessRate float64 `json:"success_rate"`
}

// Summarize reduces channel snapshots into a GlobalSummary.
//
// Derived values are recomputed from the raw counters, never averaged
// across channels. Channels with zero segments count toward
// ChannelsChecked and the totals but are excluded from best/worst
// selection; ties there go to the lowest channel ID.
func Summarize(snaps []ChannelSnapshot) GlobalSummary {
	sum := GlobalSummary{ChannelsChecked: len(snaps)}

	var best, worst *ChannelSnapshot
	for i := range snaps {
		snap := &snaps[i]

		if snap.Successful > 0 {
			sum.CompletedChannels++
		}
		sum.TotalSegments += snap.Total
		sum.Successful += snap.Successful
		sum.Failed += snap.Failed
		sum.TotalBytes += snap.Bytes
		sum.TotalTime += snap.DownloadTime

		for category, count := range snap.Errors {
			if sum.ErrorCounts == nil {
				sum.ErrorCounts = make(map[string]int64)
			}
			sum.ErrorCounts[category] += count
		}

		if snap.Total == 0 {
			continue
		}
		if best == nil || better(snap, best) {
			best = snap
		}
		if worst == nil || worse(snap, worst) {
			worst = snap
		}
	}

	sum.SuccessRate = SuccessRate(sum.Successful, sum.TotalSegments)
	sum.AvgSpeedMBps = AvgSpeedMBps(sum.TotalBytes, sum.TotalTime)

	if best != nil {
		sum.BestChannel = ChannelRef{ID: best.ID, Name: best.Name, SuccessRate: best.SuccessRate}
	}
	if worst != nil {
		sum.WorstChannel = ChannelRef{ID: worst.ID, Name: worst.Name, SuccessRate: worst.SuccessRate}
	}

	return sum
}

// better reports whether a outranks b: higher success rate, then lower
// channel ID.
func better(a, b *ChannelSnapshot) bool {
	if a.SuccessRate != b.SuccessRate {
		return a.SuccessRate > b.SuccessRate
	}
	return playlist.LessID(a.ID, b.ID)
}

// worse reports whether a underranks b: lower success rate, then lower
// channel ID.
func worse(a, b *ChannelSnapshot) bool {
	if a.SuccessRate != b.SuccessRate {
		return a.SuccessRate < b.SuccessRate
	}
	return playlist.LessID(a.ID, b.ID)
}
