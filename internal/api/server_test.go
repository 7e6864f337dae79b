package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streamwatch/hls-checker/internal/checker"
	"github.com/streamwatch/hls-checker/internal/config"
	"github.com/streamwatch/hls-checker/internal/logging"
	"github.com/streamwatch/hls-checker/internal/playlist"
	"github.com/streamwatch/hls-checker/internal/prober"
)

// stubResolver returns one segment per channel.
type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, ch playlist.Channel) ([]playlist.Segment, error) {
	return []playlist.Segment{{URL: "http://cdn.example.com/" + ch.ID + "/seg0.ts"}}, nil
}

// stubProber succeeds instantly.
type stubProber struct{}

func (stubProber) Probe(ctx context.Context, seg playlist.Segment) prober.Outcome {
	return prober.Outcome{URL: seg.URL, OK: true, Bytes: 1000, Duration: time.Millisecond, When: time.Now()}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestChecker() *checker.Checker {
	return checker.New(checker.Options{
		Logger:      discardLogger(),
		NewResolver: func(time.Duration) checker.Resolver { return stubResolver{} },
		NewProber:   func(time.Duration, int, *slog.Logger) checker.Prober { return stubProber{} },
	})
}

func testChannels(ctx context.Context, count int, refresh bool) ([]playlist.Channel, error) {
	channels := []playlist.Channel{
		{ID: "1", Name: "One", URL: "http://cdn.example.com/1/index.m3u8"},
		{ID: "2", Name: "Two", URL: "http://cdn.example.com/2/index.m3u8"},
	}
	if count > 0 && count < len(channels) {
		channels = channels[:count]
	}
	return channels, nil
}

func newTestServer(c *checker.Checker) *Server {
	return NewServer(Options{
		Addr:     "127.0.0.1:0",
		Logger:   discardLogger(),
		Checker:  c,
		Defaults: config.DefaultConfig(),
		Channels: testChannels,
		Version:  "test",
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func waitDone(t *testing.T, c *checker.Checker) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status().State != checker.StateRunning {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("checker did not finish")
}

func TestStatus_Idle(t *testing.T) {
	s := newTestServer(newTestChecker())

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestStartCheck(t *testing.T) {
	c := newTestChecker()
	s := newTestServer(c)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{
		"channels":         2,
		"duration_minutes": 1,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", rec.Code, body)
	}
	if body["session_id"] == "" || body["session_id"] == nil {
		t.Error("response missing session_id")
	}
	if body["state"] != "running" {
		t.Errorf("state = %v, want running", body["state"])
	}
	if body["channels"] != float64(2) {
		t.Errorf("channels = %v, want 2", body["channels"])
	}

	rec, body = doJSON(t, s.Handler(), http.MethodGet, "/api/status", nil)
	if body["state"] != "running" {
		t.Errorf("status after start = %v, want running", body["state"])
	}
	if body["channels_total"] != float64(2) {
		t.Errorf("channels_total = %v, want 2", body["channels_total"])
	}

	c.Stop()
	waitDone(t, c)
}

func TestStartCheck_EmptyBodyUsesDefaults(t *testing.T) {
	c := newTestChecker()
	s := newTestServer(c)

	req := httptest.NewRequest(http.MethodPost, "/api/check", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with empty body, got %d: %s", rec.Code, rec.Body.String())
	}

	c.Stop()
	waitDone(t, c)
}

func TestStartCheck_Conflict(t *testing.T) {
	c := newTestChecker()
	s := newTestServer(c)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{"duration_minutes": 1})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first start: expected 202, got %d", rec.Code)
	}

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{"duration_minutes": 1})
	if rec.Code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", rec.Code)
	}
	if body["error"] == nil {
		t.Error("conflict response missing error message")
	}

	c.Stop()
	waitDone(t, c)
}

func TestStartCheck_InvalidBody(t *testing.T) {
	s := newTestServer(newTestChecker())

	req := httptest.NewRequest(http.MethodPost, "/api/check", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestStartCheck_InvalidConfig(t *testing.T) {
	s := newTestServer(newTestChecker())

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{
		"max_retries": -1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %v", rec.Code, body)
	}
}

func TestStartCheck_ChannelLoadFailure(t *testing.T) {
	s := NewServer(Options{
		Logger:  discardLogger(),
		Checker: newTestChecker(),
		Channels: func(ctx context.Context, count int, refresh bool) ([]playlist.Channel, error) {
			return nil, errors.New("upstream unavailable")
		},
	})

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{"duration_minutes": 1})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d: %v", rec.Code, body)
	}
}

func TestStartCheck_ExportOverride(t *testing.T) {
	var export atomic.Bool
	export.Store(true)

	c := newTestChecker()
	s := NewServer(Options{
		Logger:    discardLogger(),
		Checker:   c,
		Channels:  testChannels,
		SetExport: func(v bool) { export.Store(v) },
	})

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{
		"duration_minutes": 1,
		"export_data":      false,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if export.Load() {
		t.Error("export_data: false should disable export for the session")
	}

	c.Stop()
	waitDone(t, c)
}

func TestStopCheck(t *testing.T) {
	c := newTestChecker()
	s := newTestServer(c)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{"duration_minutes": 1})
	if rec.Code != http.StatusAccepted {
		t.Fatal("setup: start failed")
	}

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/check/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	if body["state"] != "stopping" {
		t.Errorf("state = %v, want stopping", body["state"])
	}

	waitDone(t, c)
}

func TestStopCheck_NotRunning(t *testing.T) {
	s := newTestServer(newTestChecker())

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/check/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestLatestReport(t *testing.T) {
	c := newTestChecker()
	s := newTestServer(c)

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/reports/latest", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("no sessions yet: expected 404, got %d", rec.Code)
	}

	// Run a short session to completion.
	if _, err := c.Start(checker.RunConfig{
		Channels: []playlist.Channel{{ID: "1", Name: "One", URL: "http://cdn.example.com/1/index.m3u8"}},
		Duration: 50 * time.Millisecond,
		Interval: time.Hour,
	}); err != nil {
		t.Fatal(err)
	}
	waitDone(t, c)

	rec, body = doJSON(t, s.Handler(), http.MethodGet, "/api/reports/latest", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "completed" {
		t.Errorf("report status = %v, want completed", body["status"])
	}
	if body["session_id"] == nil {
		t.Error("report missing session_id")
	}
	if _, ok := body["summary"]; !ok {
		t.Error("report missing summary")
	}
}

func TestLogs(t *testing.T) {
	ring := logging.NewRingHandler(slog.NewTextHandler(io.Discard, nil), 16)
	logger := slog.New(ring)
	logger.Info("check_starting", "session", "s1")
	logger.Info("check_finished", "session", "s1")

	s := NewServer(Options{
		Logger:  discardLogger(),
		Checker: newTestChecker(),
		Ring:    ring,
	})

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/logs?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	lines, _ := body["lines"].([]any)
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2 entries", body["lines"])
	}

	rec, _ = doJSON(t, s.Handler(), http.MethodGet, "/api/logs?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", rec.Code)
	}
}

func TestLogs_NoRing(t *testing.T) {
	s := NewServer(Options{
		Logger:  discardLogger(),
		Checker: newTestChecker(),
	})

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/logs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["count"] != float64(0) {
		t.Errorf("count = %v, want 0", body["count"])
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(newTestChecker())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := newTestServer(newTestChecker())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestStartCheck_ChannelSelectors(t *testing.T) {
	tests := []struct {
		name         string
		channels     any
		wantCode     int
		wantChannels float64
	}{
		{"count", 1, http.StatusAccepted, 1},
		{"all", "all", http.StatusAccepted, 2},
		{"id list", []string{"2"}, http.StatusAccepted, 1},
		{"unknown ids", []string{"99"}, http.StatusBadRequest, 0},
		{"bad string", "some", http.StatusBadRequest, 0},
		{"zero count", 0, http.StatusBadRequest, 0},
		{"empty list", []string{}, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChecker()
			s := newTestServer(c)

			rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/check", map[string]any{
				"channels":         tt.channels,
				"duration_minutes": 1,
			})
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %v", rec.Code, tt.wantCode, body)
			}
			if rec.Code != http.StatusAccepted {
				return
			}
			if body["channels"] != tt.wantChannels {
				t.Errorf("channels = %v, want %v", body["channels"], tt.wantChannels)
			}
			c.Stop()
			waitDone(t, c)
		})
	}
}

func TestStatus_TerminalStateAfterRun(t *testing.T) {
	c := newTestChecker()
	s := newTestServer(c)

	if _, err := c.Start(checker.RunConfig{
		Channels: []playlist.Channel{{ID: "1", Name: "One", URL: "http://cdn.example.com/1/index.m3u8"}},
		Duration: 50 * time.Millisecond,
		Interval: time.Hour,
	}); err != nil {
		t.Fatal(err)
	}
	waitDone(t, c)

	_, body := doJSON(t, s.Handler(), http.MethodGet, "/api/status", nil)
	if body["state"] != "completed" {
		t.Errorf("state = %v, want completed", body["state"])
	}
	if body["last_status"] != "completed" {
		t.Errorf("last_status = %v, want completed", body["last_status"])
	}
	if body["last_session_id"] == nil {
		t.Error("status missing last_session_id")
	}
}
