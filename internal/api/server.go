// Package api exposes the control API: run status, session start/stop,
// the latest report, and recent log lines.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamwatch/hls-checker/internal/checker"
	"github.com/streamwatch/hls-checker/internal/config"
	"github.com/streamwatch/hls-checker/internal/logging"
	"github.com/streamwatch/hls-checker/internal/playlist"
)

const defaultLogLimit = 100

// ChannelLoader fetches the channel set for a new session. count <= 0
// means all channels; refresh pulls a fresh catalog from upstream first.
type ChannelLoader func(ctx context.Context, count int, refresh bool) ([]playlist.Channel, error)

// Options configures the control API server.
type Options struct {
	Addr     string
	Logger   *slog.Logger
	Checker  *checker.Checker
	Defaults *config.Config
	Channels ChannelLoader

	// Ring backs GET /api/logs; nil disables the endpoint's content.
	Ring *logging.RingHandler

	// SetExport, when non-nil, lets a start request override whether the
	// finished session gets exported to disk.
	SetExport func(bool)

	Version string
}

// Server is the control API HTTP server.
type Server struct {
	opts   Options
	router chi.Router
	srv    *http.Server
}

// NewServer builds the server and its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Defaults == nil {
		opts.Defaults = config.DefaultConfig()
	}

	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/check", s.handleStartCheck)
		r.Post("/check/stop", s.handleStopCheck)
		r.Get("/reports/latest", s.handleLatestReport)
		r.Get("/logs", s.handleLogs)
	})
	s.router = r

	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the route handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a goroutine. Use Shutdown to stop.
func (s *Server) Start() error {
	s.opts.Logger.Info("api_server_starting", "addr", s.opts.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.opts.Logger.Error("api_server_error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.opts.Logger.Debug("api_server_shutting_down")
	return s.srv.Shutdown(ctx)
}

// statusResponse is the JSON shape of GET /api/status.
type statusResponse struct {
	State               string  `json:"state"`
	SessionID           string  `json:"session_id,omitempty"`
	ElapsedSeconds      float64 `json:"elapsed_seconds"`
	ChannelsTotal       int     `json:"channels_total"`
	ChannelsDone        int     `json:"channels_done"`
	ProgressPercent     float64 `json:"progress_percent"`
	EstimatedCompletion string  `json:"estimated_completion,omitempty"`

	LastSessionID string `json:"last_session_id,omitempty"`
	LastStatus    string `json:"last_status,omitempty"`
	Version       string `json:"version,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Checker.Status()

	resp := statusResponse{
		State:           st.State.String(),
		SessionID:       st.SessionID,
		ElapsedSeconds:  st.Elapsed.Seconds(),
		ChannelsTotal:   st.ChannelsTotal,
		ChannelsDone:    st.ChannelsDone,
		ProgressPercent: st.ProgressPercent,
		LastSessionID:   st.LastSessionID,
		LastStatus:      st.LastStatus,
		Version:         s.opts.Version,
	}
	if !st.EstimatedCompletion.IsZero() {
		resp.EstimatedCompletion = st.EstimatedCompletion.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// checkRequest is the JSON body of POST /api/check. Absent fields fall
// back to the configured defaults. Channels accepts a number, the string
// "all", or an explicit list of channel IDs.
type checkRequest struct {
	Channels             json.RawMessage `json:"channels"`
	DurationMinutes      int             `json:"duration_minutes"`
	CheckIntervalSeconds int             `json:"check_interval_seconds"`
	TimeoutSeconds       int             `json:"timeout_seconds"`
	MaxRetries           *int            `json:"max_retries"`
	Concurrency          int             `json:"concurrency"`
	RefreshPlaylist      *bool           `json:"refresh_playlist"`
	ExportData           *bool           `json:"export_data"`
}

// parseChannelSelector interprets the channels field. It returns either a
// count (ids nil) or an explicit ID list.
func parseChannelSelector(raw json.RawMessage, defaultCount int) (count int, ids []string, err error) {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultCount, nil, nil
	}

	var n int
	if json.Unmarshal(raw, &n) == nil {
		if n < 1 {
			return 0, nil, fmt.Errorf("channels must be >= 1, %q or a list of IDs", "all")
		}
		return n, nil, nil
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s != "all" {
			return 0, nil, fmt.Errorf("unknown channel selector %q", s)
		}
		return 0, nil, nil // 0 = all
	}

	if json.Unmarshal(raw, &ids) == nil {
		if len(ids) == 0 {
			return 0, nil, errors.New("channel ID list is empty")
		}
		return 0, ids, nil
	}

	return 0, nil, errors.New("channels must be a number, \"all\", or a list of IDs")
}

// filterByID keeps the channels whose IDs are in ids, in catalog order.
func filterByID(channels []playlist.Channel, ids []string) []playlist.Channel {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]playlist.Channel, 0, len(ids))
	for _, ch := range channels {
		if _, ok := want[ch.ID]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (s *Server) handleStartCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	defaults := s.opts.Defaults

	count, ids, err := parseChannelSelector(req.Channels, defaults.ChannelCount())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	refresh := defaults.RefreshPlaylist
	if req.RefreshPlaylist != nil {
		refresh = *req.RefreshPlaylist
	}

	if ids != nil {
		count = 0 // load everything, then select the requested IDs
	}
	channels, err := s.opts.Channels(r.Context(), count, refresh)
	if err != nil {
		s.opts.Logger.Error("channel_load_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load channels: "+err.Error())
		return
	}
	if ids != nil {
		channels = filterByID(channels, ids)
		if len(channels) == 0 {
			writeError(w, http.StatusBadRequest, "none of the requested channel IDs exist")
			return
		}
	}

	cfg := checker.RunConfig{
		Channels:    channels,
		Duration:    time.Duration(defaults.Minutes) * time.Minute,
		Interval:    defaults.CheckInterval,
		Timeout:     defaults.Timeout,
		MaxRetries:  defaults.MaxRetries,
		Concurrency: defaults.Concurrency,
	}
	if req.DurationMinutes > 0 {
		cfg.Duration = time.Duration(req.DurationMinutes) * time.Minute
	}
	if req.CheckIntervalSeconds > 0 {
		cfg.Interval = time.Duration(req.CheckIntervalSeconds) * time.Second
	}
	if req.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	if req.Concurrency > 0 {
		cfg.Concurrency = req.Concurrency
	}

	if req.ExportData != nil && s.opts.SetExport != nil {
		s.opts.SetExport(*req.ExportData)
	}

	sessionID, err := s.opts.Checker.Start(cfg)
	switch {
	case errors.Is(err, checker.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, checker.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sessionID,
		"state":      checker.StateRunning.String(),
		"channels":   len(channels),
	})
}

func (s *Server) handleStopCheck(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Checker.Status()
	if err := s.opts.Checker.Stop(); err != nil {
		if errors.Is(err, checker.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": st.SessionID,
		"state":      "stopping",
	})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	rep := s.opts.Checker.LastReport()
	if rep == nil {
		writeError(w, http.StatusNotFound, "no report available yet")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	lines := []string{}
	var total int64
	if s.opts.Ring != nil {
		lines = s.opts.Ring.RecentLines(limit)
		total = s.opts.Ring.TotalLines()
		if lines == nil {
			lines = []string{}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lines": lines,
		"count": len(lines),
		"total": total,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// requestLogger logs each request at debug level with its status and timing.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.opts.Logger.Debug("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
