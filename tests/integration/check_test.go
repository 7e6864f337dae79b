//go:build integration

// Package integration contains end-to-end tests that exercise the full
// check pipeline: playlist resolution, segment probing, statistics, and
// export. Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/streamwatch/hls-checker/internal/checker"
	"github.com/streamwatch/hls-checker/internal/playlist"
	"github.com/streamwatch/hls-checker/internal/prober"
	"github.com/streamwatch/hls-checker/internal/report"
)

// newTestOrigin serves a master playlist, one media playlist, and
// segment bodies for a set of channels.
func newTestOrigin(t *testing.T, channels, segments int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	for c := 1; c <= channels; c++ {
		ch := fmt.Sprintf("ch%d", c)

		mux.HandleFunc("/"+ch+"/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720\n/%s/media.m3u8\n", ch)
		})
		mux.HandleFunc("/"+ch+"/media.m3u8", func(w http.ResponseWriter, r *http.Request) {
			var b strings.Builder
			b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:100\n")
			for s := 0; s < segments; s++ {
				fmt.Fprintf(&b, "#EXTINF:6.000,\n/%s/seg%d.ts\n", ch, 100+s)
			}
			w.Write([]byte(b.String()))
		})
		for s := 0; s < segments; s++ {
			mux.HandleFunc(fmt.Sprintf("/%s/seg%d.ts", ch, 100+s), func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(strings.Repeat("d", 4096)))
			})
		}
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIntegration_FullCheckSession(t *testing.T) {
	origin := newTestOrigin(t, 3, 4)

	channels := make([]playlist.Channel, 0, 3)
	for c := 1; c <= 3; c++ {
		channels = append(channels, playlist.Channel{
			ID:        fmt.Sprintf("%d", c),
			Name:      fmt.Sprintf("Channel %d", c),
			MasterURL: fmt.Sprintf("%s/ch%d/master.m3u8", origin.URL, c),
		})
	}

	dataDir := t.TempDir()
	exporter := report.NewExporter(dataDir)

	exported := make(chan *report.Report, 1)
	chk := checker.New(checker.Options{
		OnReport: func(rep *report.Report) {
			if _, err := exporter.Export(rep); err != nil {
				t.Errorf("export: %v", err)
			}
			exported <- rep
		},
	})

	if _, err := chk.Start(checker.RunConfig{
		Channels:    channels,
		Duration:    2 * time.Second,
		Interval:    500 * time.Millisecond,
		Timeout:     5 * time.Second,
		MaxRetries:  1,
		Concurrency: 2,
	}); err != nil {
		t.Fatal(err)
	}

	var rep *report.Report
	select {
	case rep = <-exported:
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish")
	}

	if rep.Status != "completed" {
		t.Errorf("status = %q, want completed", rep.Status)
	}
	if rep.Summary.ChannelsChecked != 3 {
		t.Errorf("ChannelsChecked = %d, want 3", rep.Summary.ChannelsChecked)
	}
	// 3 channels x 4 segments, deduped across passes.
	if rep.Summary.TotalSegments != 12 {
		t.Errorf("TotalSegments = %d, want 12", rep.Summary.TotalSegments)
	}
	if rep.Summary.SuccessRate != 100.0 {
		t.Errorf("SuccessRate = %v, want 100", rep.Summary.SuccessRate)
	}
	if rep.Summary.TotalBytes != 12*4096 {
		t.Errorf("TotalBytes = %d, want %d", rep.Summary.TotalBytes, 12*4096)
	}

	for _, name := range []string{
		fmt.Sprintf("csv/hls_channels_final_stats_%s.csv", rep.SessionID),
		fmt.Sprintf("csv/hls_global_summary_%s.csv", rep.SessionID),
		fmt.Sprintf("json/hls_api_report_%s.json", rep.SessionID),
	} {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}
}

// TestIntegration_LiveOrigin probes a real HLS origin when one is
// configured. Set via TEST_ORIGIN_URL environment variable.
func TestIntegration_LiveOrigin(t *testing.T) {
	url := os.Getenv("TEST_ORIGIN_URL")
	if url == "" {
		t.Skip("TEST_ORIGIN_URL not set - skipping live origin test")
	}

	resolver := playlist.NewResolver(&http.Client{Timeout: 10 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	segments, err := resolver.Resolve(ctx, playlist.Channel{ID: "live", Name: "live", MasterURL: url})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(segments) == 0 {
		t.Skip("origin returned an empty media playlist")
	}

	p := prober.New(&http.Client{Timeout: 10 * time.Second}, 1, nil)
	out := p.Probe(ctx, segments[0])
	if !out.OK {
		t.Errorf("probe failed: %v (%s)", out.Err, out.Category)
	}
	if out.Bytes == 0 {
		t.Error("probe reported zero bytes")
	}
}
