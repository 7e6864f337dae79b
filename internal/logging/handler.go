package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// MaxLineLength is the maximum length of a single buffered line before truncation.
	MaxLineLength = 4096

	// DefaultBufferLines is the default number of log lines kept in memory.
	DefaultBufferLines = 1000
)

// RingHandler is an slog.Handler that mirrors records into a bounded
// in-memory ring buffer while forwarding them to a wrapped handler.
// The buffered lines back the control API's recent-logs endpoint, so
// a dashboard can tail a run without access to the process stderr.
type RingHandler struct {
	next slog.Handler

	mu     sync.Mutex
	buffer []string
	bufIdx int
	filled bool
	total  int64
}

// NewRingHandler wraps next with a ring buffer of capacity lines.
// If capacity <= 0, DefaultBufferLines is used.
func NewRingHandler(next slog.Handler, capacity int) *RingHandler {
	if capacity <= 0 {
		capacity = DefaultBufferLines
	}
	return &RingHandler{
		next:   next,
		buffer: make([]string, capacity),
	}
}

// Enabled reports whether the wrapped handler handles records at the given level.
func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle formats the record into the ring buffer and forwards it.
func (h *RingHandler) Handle(ctx context.Context, r slog.Record) error {
	line := formatRecord(r)
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % len(h.buffer)
	if h.bufIdx == 0 {
		h.filled = true
	}
	h.total++
	h.mu.Unlock()

	return h.next.Handle(ctx, r)
}

// WithAttrs returns a handler sharing this ring buffer with added attributes.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringChild{parent: h, next: h.next.WithAttrs(attrs)}
}

// WithGroup returns a handler sharing this ring buffer with the given group.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	return &ringChild{parent: h, next: h.next.WithGroup(name)}
}

// ringChild forwards to a derived handler but buffers into the parent ring.
type ringChild struct {
	parent *RingHandler
	next   slog.Handler
}

func (c *ringChild) Enabled(ctx context.Context, level slog.Level) bool {
	return c.next.Enabled(ctx, level)
}

func (c *ringChild) Handle(ctx context.Context, r slog.Record) error {
	line := formatRecord(r)
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	c.parent.mu.Lock()
	c.parent.buffer[c.parent.bufIdx] = line
	c.parent.bufIdx = (c.parent.bufIdx + 1) % len(c.parent.buffer)
	if c.parent.bufIdx == 0 {
		c.parent.filled = true
	}
	c.parent.total++
	c.parent.mu.Unlock()

	return c.next.Handle(ctx, r)
}

func (c *ringChild) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringChild{parent: c.parent, next: c.next.WithAttrs(attrs)}
}

func (c *ringChild) WithGroup(name string) slog.Handler {
	return &ringChild{parent: c.parent, next: c.next.WithGroup(name)}
}

// formatRecord renders a record as a single human-readable line.
func formatRecord(r slog.Record) string {
	line := r.Time.Format(time.TimeOnly) + " " + r.Level.String() + " " + r.Message
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		return true
	})
	return line
}

// RecentLines returns up to n of the most recent buffered lines, oldest first.
func (h *RingHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.bufIdx
	if h.filled {
		size = len(h.buffer)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + len(h.buffer)) % len(h.buffer)
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}

// TotalLines returns the number of lines handled since creation,
// including lines that have since been evicted from the buffer.
func (h *RingHandler) TotalLines() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}
