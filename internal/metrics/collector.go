// Package metrics provides Prometheus metrics for hls-checker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector manages all Prometheus metrics for the checker.
// Each Collector owns its registry, so multiple instances never collide.
type Collector struct {
	registry *prometheus.Registry

	info           *prometheus.GaugeVec
	state          prometheus.Gauge
	runActive      prometheus.Gauge
	runElapsed     prometheus.Gauge
	channelsTotal  prometheus.Gauge
	channelsDone   prometheus.Gauge
	runsTotal      *prometheus.CounterVec
	passesTotal    prometheus.Counter
	segmentsTotal  *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	bytesTotal     prometheus.Counter
	downloadTime   prometheus.Histogram
}

// NewCollector creates a collector with its own registry.
func NewCollector(version string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hls_checker_info",
				Help: "Information about the checker (value always 1)",
			},
			[]string{"version"},
		),

		state: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hls_checker_state",
				Help: "Checker state (0=idle 1=running 2=completed 3=stopped 4=failed)",
			},
		),

		runActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hls_checker_run_active",
				Help: "Whether a check session is currently running",
			},
		),

		runElapsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hls_checker_run_elapsed_seconds",
				Help: "Seconds since the current session started",
			},
		),

		channelsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hls_checker_run_channels_total",
				Help: "Channels selected for the current session",
			},
		),

		channelsDone: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hls_checker_run_channels_done",
				Help: "Channels fully probed in the current pass",
			},
		),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hls_checker_runs_total",
				Help: "Completed check sessions by terminal status",
			},
			[]string{"status"}, // completed | stopped | failed
		),

		passesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hls_checker_passes_total",
				Help: "Full passes over the channel set",
			},
		),

		segmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hls_checker_segments_probed_total",
				Help: "Segments probed by result",
			},
			[]string{"result"}, // success | failure
		),

		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hls_checker_segment_failures_total",
				Help: "Segment failures by category",
			},
			[]string{"category"},
		),

		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hls_checker_bytes_downloaded_total",
				Help: "Total segment bytes downloaded",
			},
		),

		downloadTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name: "hls_checker_segment_download_seconds",
				Help: "Segment download time distribution (successful downloads)",
				Buckets: []float64{
					0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
					1.0, 2.5, 5.0, 10.0,
				},
			},
		),
	}

	c.registry.MustRegister(
		c.info,
		c.state,
		c.runActive,
		c.runElapsed,
		c.channelsTotal,
		c.channelsDone,
		c.runsTotal,
		c.passesTotal,
		c.segmentsTotal,
		c.failuresTotal,
		c.bytesTotal,
		c.downloadTime,
	)

	c.info.WithLabelValues(version).Set(1)
	return c
}

// Registry returns the collector's registry for the metrics server.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RunStarted resets the per-run gauges for a new session.
func (c *Collector) RunStarted(totalChannels int) {
	c.runActive.Set(1)
	c.runElapsed.Set(0)
	c.channelsTotal.Set(float64(totalChannels))
	c.channelsDone.Set(0)
}

// RunEnded records a terminal session status.
func (c *Collector) RunEnded(status string) {
	c.runActive.Set(0)
	c.runsTotal.WithLabelValues(status).Inc()
}

// SetState updates the state gauge.
func (c *Collector) SetState(state int) {
	c.state.Set(float64(state))
}

// SetElapsed updates the session elapsed gauge.
func (c *Collector) SetElapsed(elapsed time.Duration) {
	c.runElapsed.Set(elapsed.Seconds())
}

// SetChannelsDone updates the per-pass channel progress gauge.
func (c *Collector) SetChannelsDone(done int) {
	c.channelsDone.Set(float64(done))
}

// PassCompleted records a full pass over the channel set.
func (c *Collector) PassCompleted() {
	c.passesTotal.Inc()
}

// SegmentProbed records one probe result.
func (c *Collector) SegmentProbed(ok bool, bytes int64, duration time.Duration, category string) {
	if ok {
		c.segmentsTotal.WithLabelValues("success").Inc()
		c.bytesTotal.Add(float64(bytes))
		c.downloadTime.Observe(duration.Seconds())
		return
	}
	c.segmentsTotal.WithLabelValues("failure").Inc()
	if category != "" {
		c.failuresTotal.WithLabelValues(category).Inc()
	}
}
