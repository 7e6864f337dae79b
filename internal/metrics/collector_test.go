package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("1.0")
	if c.Registry() == nil {
		t.Fatal("collector has no registry")
	}

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	for _, want := range []string{
		"hls_checker_info",
		"hls_checker_state",
		"hls_checker_run_active",
		"hls_checker_passes_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestCollector_Independence(t *testing.T) {
	// Two collectors must not share a registry.
	a := NewCollector("1.0")
	b := NewCollector("1.0")

	a.PassCompleted()
	if got := testutil.ToFloat64(b.passesTotal); got != 0 {
		t.Errorf("second collector passes = %v, want 0", got)
	}
}

func TestCollector_SegmentProbed(t *testing.T) {
	c := NewCollector("1.0")

	c.SegmentProbed(true, 2048, 100*time.Millisecond, "")
	c.SegmentProbed(true, 1024, 50*time.Millisecond, "")
	c.SegmentProbed(false, 0, 0, "timeout")
	c.SegmentProbed(false, 0, 0, "timeout")
	c.SegmentProbed(false, 0, 0, "http_5xx")

	if got := testutil.ToFloat64(c.segmentsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.segmentsTotal.WithLabelValues("failure")); got != 3 {
		t.Errorf("failure count = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.bytesTotal); got != 3072 {
		t.Errorf("bytes = %v, want 3072", got)
	}
	if got := testutil.ToFloat64(c.failuresTotal.WithLabelValues("timeout")); got != 2 {
		t.Errorf("timeout failures = %v, want 2", got)
	}
}

func TestCollector_RunLifecycle(t *testing.T) {
	c := NewCollector("1.0")

	c.RunStarted(10)
	if got := testutil.ToFloat64(c.runActive); got != 1 {
		t.Errorf("run_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.channelsTotal); got != 10 {
		t.Errorf("channels_total = %v, want 10", got)
	}

	c.SetChannelsDone(4)
	if got := testutil.ToFloat64(c.channelsDone); got != 4 {
		t.Errorf("channels_done = %v, want 4", got)
	}

	c.RunEnded("completed")
	if got := testutil.ToFloat64(c.runActive); got != 0 {
		t.Errorf("run_active after end = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed runs = %v, want 1", got)
	}
}
