package prober

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/streamwatch/hls-checker/internal/playlist"
)

// Prober downloads segments and classifies the results.
type Prober struct {
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
	rng        *rand.Rand
}

// New creates a Prober. maxRetries is the number of additional attempts
// after the first; only transient failures are retried.
func New(client *http.Client, maxRetries int, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		client:     client,
		maxRetries: maxRetries,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Probe downloads one segment. It makes up to maxRetries+1 attempts,
// retrying only transient failures (timeouts and connection errors).
// Duration covers only the successful attempt; time spent on failed
// attempts is not counted. The returned Outcome always describes the
// final attempt.
func (p *Prober) Probe(ctx context.Context, seg playlist.Segment) Outcome {
	var out Outcome
	bo := newBackoff(p.rng)

	attempts := p.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		out = p.attempt(ctx, seg)
		if out.OK || !transient(out.Category) {
			return out
		}

		if attempt < attempts {
			p.logger.Debug("probe_retrying",
				"url", seg.URL,
				"attempt", attempt,
				"category", out.Category,
			)
			if !p.pause(ctx, bo.next()) {
				return out
			}
		}
	}
	return out
}

// attempt performs a single download.
func (p *Prober) attempt(ctx context.Context, seg playlist.Segment) Outcome {
	out := Outcome{
		Segment: seg.Sequence,
		URL:     seg.URL,
		When:    time.Now(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seg.URL, nil)
	if err != nil {
		out.Category = CategoryConnectionRefused
		out.Err = err
		return out
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		out.Category = classifyTransport(err)
		out.Err = err
		return out
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		out.Category = classifyStatus(resp.StatusCode)
		out.Err = fmt.Errorf("segment returned %s", resp.Status)
		io.Copy(io.Discard, resp.Body)
		return out
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		out.Category = classifyTransport(err)
		out.Err = err
		return out
	}

	if resp.ContentLength > 0 && n < resp.ContentLength {
		out.Category = CategoryIncompleteBody
		out.Err = fmt.Errorf("short read: got %d of %d bytes", n, resp.ContentLength)
		return out
	}

	out.OK = true
	out.Bytes = n
	out.Duration = time.Since(start)
	return out
}

// pause waits out a retry delay, returning false if the context was
// canceled first.
func (p *Prober) pause(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// classifyTransport maps a transport-level error to a failure category.
func classifyTransport(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	// Truncated bodies surface as unexpected EOF from io.Copy.
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryIncompleteBody
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnectionRefused
	}
	if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") {
		return CategoryConnectionRefused
	}

	return CategoryConnectionRefused
}

// classifyStatus maps an HTTP error status to a failure category.
func classifyStatus(code int) string {
	if code >= 500 {
		return CategoryHTTP5xx
	}
	return CategoryHTTP4xx
}
