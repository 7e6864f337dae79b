package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/streamwatch/hls-checker/internal/metrics"
	"github.com/streamwatch/hls-checker/internal/playlist"
	"github.com/streamwatch/hls-checker/internal/prober"
	"github.com/streamwatch/hls-checker/internal/report"
	"github.com/streamwatch/hls-checker/internal/stats"
)

// Sentinel errors returned by Start and Stop.
var (
	ErrAlreadyRunning = errors.New("a check session is already running")
	ErrNotRunning     = errors.New("no check session is running")
	ErrInvalidConfig  = errors.New("invalid run configuration")
)

// progressLogInterval is how often a running session logs its progress.
const progressLogInterval = 10 * time.Second

// Resolver resolves a channel into its current segment list.
type Resolver interface {
	Resolve(ctx context.Context, ch playlist.Channel) ([]playlist.Segment, error)
}

// Prober downloads one segment and reports the outcome.
type Prober interface {
	Probe(ctx context.Context, seg playlist.Segment) prober.Outcome
}

// RunConfig describes one check session.
type RunConfig struct {
	Channels    []playlist.Channel
	Duration    time.Duration
	Interval    time.Duration // pacing between passes
	Timeout     time.Duration // per HTTP request
	MaxRetries  int
	Concurrency int // channels probed concurrently, 1 = sequential
}

// Options configures a Checker. Zero-value fields get defaults.
type Options struct {
	Logger    *slog.Logger
	Collector *metrics.Collector

	// NewResolver and NewProber build the per-session resolver and
	// prober; tests substitute fakes here.
	NewResolver func(timeout time.Duration) Resolver
	NewProber   func(timeout time.Duration, maxRetries int, logger *slog.Logger) Prober

	// OnReport is called with the session report after every terminal
	// session (for export, caching, notification).
	OnReport func(*report.Report)
}

// Checker is the single orchestrator instance: at most one session runs
// at a time. After a session ends the checker stays in its terminal state
// (completed or stopped) until the next Start.
type Checker struct {
	logger      *slog.Logger
	collector   *metrics.Collector
	newResolver func(timeout time.Duration) Resolver
	newProber   func(timeout time.Duration, maxRetries int, logger *slog.Logger) Prober
	onReport    func(*report.Report)

	mu            sync.Mutex
	state         State
	sessionID     string
	startTime     time.Time
	runCfg        RunConfig
	cancel        context.CancelFunc
	stopRequested bool
	tracker       *stats.Tracker
	channelsDone  int
	lastStatus    string
	lastSessionID string
	lastReport    *report.Report
	done          chan struct{}
}

// New creates an idle Checker.
func New(opts Options) *Checker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Collector == nil {
		opts.Collector = metrics.NewCollector("dev")
	}
	if opts.NewResolver == nil {
		opts.NewResolver = func(timeout time.Duration) Resolver {
			return playlist.NewResolver(&http.Client{Timeout: timeout})
		}
	}
	if opts.NewProber == nil {
		opts.NewProber = func(timeout time.Duration, maxRetries int, logger *slog.Logger) Prober {
			return prober.New(&http.Client{Timeout: timeout}, maxRetries, logger)
		}
	}

	return &Checker{
		logger:      opts.Logger,
		collector:   opts.Collector,
		newResolver: opts.NewResolver,
		newProber:   opts.NewProber,
		onReport:    opts.OnReport,
		state:       StateIdle,
	}
}

// Start begins a new session and returns its session ID. It rejects the
// call with ErrAlreadyRunning while a session is active and with
// ErrInvalidConfig (no state change) when the config is unusable.
func (c *Checker) Start(cfg RunConfig) (string, error) {
	if err := validateRun(&cfg); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return "", ErrAlreadyRunning
	}

	start := time.Now()
	ctx, cancel := context.WithDeadline(context.Background(), start.Add(cfg.Duration))

	c.state = StateRunning
	c.sessionID = report.SessionID(start)
	c.startTime = start
	c.runCfg = cfg
	c.cancel = cancel
	c.stopRequested = false
	c.tracker = stats.NewTracker()
	c.channelsDone = 0
	c.done = make(chan struct{})

	c.logger.Info("check_starting",
		"session", c.sessionID,
		"channels", len(cfg.Channels),
		"duration", cfg.Duration.String(),
		"interval", cfg.Interval.String(),
		"concurrency", cfg.Concurrency,
	)

	c.collector.RunStarted(len(cfg.Channels))
	c.collector.SetState(int(StateRunning))

	go c.run(ctx, cfg)

	return c.sessionID, nil
}

// validateRun checks and defaults a run config.
func validateRun(cfg *RunConfig) error {
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	}
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("%w: channel set is empty", ErrInvalidConfig)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Stop requests cancellation of the running session. The session halts
// at its next checkpoint and still produces a partial report.
func (c *Checker) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return ErrNotRunning
	}

	c.logger.Info("check_stop_requested", "session", c.sessionID)
	c.stopRequested = true
	c.cancel()
	return nil
}

// Status describes the checker to the control API.
type Status struct {
	State               State
	SessionID           string
	Elapsed             time.Duration
	ChannelsTotal       int
	ChannelsDone        int
	ProgressPercent     float64
	EstimatedCompletion time.Time

	LastSessionID string
	LastStatus    string
}

// Status returns the current run state and progress.
func (c *Checker) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:         c.state,
		LastSessionID: c.lastSessionID,
		LastStatus:    c.lastStatus,
	}

	if c.state == StateRunning {
		elapsed := time.Since(c.startTime)
		st.SessionID = c.sessionID
		st.Elapsed = elapsed
		st.ChannelsTotal = len(c.runCfg.Channels)
		st.ChannelsDone = c.channelsDone
		st.EstimatedCompletion = c.startTime.Add(c.runCfg.Duration)
		if c.runCfg.Duration > 0 {
			st.ProgressPercent = min(elapsed.Seconds()/c.runCfg.Duration.Seconds()*100, 100)
		}
	}

	return st
}

// LastReport returns the report of the most recent terminal session,
// or nil if none has finished yet.
func (c *Checker) LastReport() *report.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReport
}

// Done returns a channel closed when the current session ends.
// Returns nil if no session is active.
func (c *Checker) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// run is the session loop. It owns all ChannelStats mutation for the
// session's lifetime.
func (c *Checker) run(ctx context.Context, cfg RunConfig) {
	defer c.cancel()

	resolver := c.newResolver(cfg.Timeout)
	prb := c.newProber(cfg.Timeout, cfg.MaxRetries, c.logger)

	// Segments probed once in a session are skipped in later passes.
	// One inner set per channel, touched only by that channel's worker.
	seen := make(map[string]map[string]struct{}, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		seen[ch.ID] = make(map[string]struct{})
	}

	go c.logProgress(ctx)

	passes := 0
	for ctx.Err() == nil {
		c.runPass(ctx, cfg, resolver, prb, seen)
		passes++
		c.collector.PassCompleted()

		if ctx.Err() != nil {
			break
		}

		// Pacing between passes; interruptible so stop latency stays small.
		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	c.finish(passes)
}

// runPass probes every channel once through a bounded worker pool.
func (c *Checker) runPass(ctx context.Context, cfg RunConfig, resolver Resolver, prb Prober, seen map[string]map[string]struct{}) {
	c.setChannelsDone(0)

	sem := make(chan struct{}, cfg.Concurrency)
	var wg sync.WaitGroup

	for _, ch := range cfg.Channels {
		// Checkpoint: no new channel work after stop or deadline.
		if ctx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(ch playlist.Channel) {
			defer wg.Done()
			defer func() { <-sem }()

			c.checkChannel(ctx, ch, resolver, prb, seen[ch.ID])
			c.incChannelsDone()
		}(ch)
	}

	wg.Wait()
}

// checkChannel resolves one channel and probes its unseen segments.
func (c *Checker) checkChannel(ctx context.Context, ch playlist.Channel, resolver Resolver, prb Prober, seen map[string]struct{}) {
	if ctx.Err() != nil {
		return
	}

	segments, err := resolver.Resolve(ctx, ch)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("channel_resolution_failed",
			"channel", ch.ID,
			"name", ch.Name,
			"error", err,
		)
		out := prober.ResolutionFailure(ch.StreamURL(), err)
		c.tracker.Record(ch.ID, ch.Name, out)
		c.collector.SegmentProbed(false, 0, 0, out.Category)
		return
	}

	c.logger.Debug("channel_resolved",
		"channel", ch.ID,
		"segments", len(segments),
	)

	for _, seg := range segments {
		// Checkpoint before each probe.
		if ctx.Err() != nil {
			return
		}
		if _, ok := seen[seg.URL]; ok {
			continue
		}

		out := prb.Probe(ctx, seg)
		if !out.OK && ctx.Err() != nil {
			// Cancellation mid-probe, not a real failure.
			return
		}

		seen[seg.URL] = struct{}{}
		c.tracker.Record(ch.ID, ch.Name, out)
		c.collector.SegmentProbed(out.OK, out.Bytes, out.Duration, out.Category)

		if !out.OK {
			c.logger.Warn("segment_failed",
				"channel", ch.ID,
				"url", out.URL,
				"category", out.Category,
				"error", out.Err,
			)
		}
	}
}

// finish determines the terminal status, builds the report, and moves
// the checker into its terminal state.
func (c *Checker) finish(passes int) {
	end := time.Now()

	c.mu.Lock()
	status := "completed"
	state := StateCompleted
	if c.stopRequested {
		status = "stopped"
		state = StateStopped
	}
	snaps := c.tracker.Snapshots()
	rep := report.Build(status, c.startTime, end, c.runCfg.Duration, snaps)
	rep.P50, rep.P95, rep.P99 = c.tracker.GlobalPercentiles()

	c.lastReport = rep
	c.lastStatus = status
	c.lastSessionID = c.sessionID
	c.state = state
	done := c.done
	c.done = nil
	onReport := c.onReport
	c.mu.Unlock()

	c.collector.RunEnded(status)
	c.collector.SetState(int(state))

	c.logger.Info("check_finished",
		"session", rep.SessionID,
		"status", status,
		"passes", passes,
		"channels", rep.Summary.ChannelsChecked,
		"segments", rep.Summary.TotalSegments,
		"success_rate", fmt.Sprintf("%.2f", rep.Summary.SuccessRate),
	)

	if onReport != nil {
		onReport(rep)
	}
	close(done)
}

// logProgress emits periodic progress lines while a session runs.
func (c *Checker) logProgress(ctx context.Context) {
	ticker := time.NewTicker(progressLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.Status()
			if st.State != StateRunning {
				return
			}
			c.collector.SetElapsed(st.Elapsed)
			c.collector.SetChannelsDone(st.ChannelsDone)
			c.logger.Info("check_progress",
				"session", st.SessionID,
				"elapsed", st.Elapsed.Round(time.Second).String(),
				"channels_done", st.ChannelsDone,
				"channels_total", st.ChannelsTotal,
				"percent", fmt.Sprintf("%.1f", st.ProgressPercent),
			)
		}
	}
}

func (c *Checker) setChannelsDone(n int) {
	c.mu.Lock()
	c.channelsDone = n
	c.mu.Unlock()
}

func (c *Checker) incChannelsDone() {
	c.mu.Lock()
	c.channelsDone++
	c.mu.Unlock()
}
