package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/streamwatch/hls-checker/internal/config"
	"github.com/streamwatch/hls-checker/internal/playlist"
)

func writeCatalog(t *testing.T, channels []playlist.Channel) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlist_streams.json")
	cat := &playlist.Catalog{Channels: channels}
	if err := cat.Save(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunAll_Passes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PlaylistPath = writeCatalog(t, []playlist.Channel{
		{ID: "1", Name: "One", URL: "http://cdn.example.com/1/index.m3u8"},
	})
	cfg.DataDir = t.TempDir()

	result := RunAll(cfg)
	if !result.Passed {
		for _, c := range result.Checks {
			t.Logf("%s", c.String())
		}
		t.Fatal("expected all checks to pass")
	}
	if len(result.Checks) != 3 {
		t.Errorf("got %d checks, want 3", len(result.Checks))
	}
}

func TestRunAll_NoExportSkipsDataDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PlaylistPath = writeCatalog(t, []playlist.Channel{
		{ID: "1", Name: "One", URL: "http://cdn.example.com/1/index.m3u8"},
	})
	cfg.ExportData = false
	cfg.DataDir = "/nonexistent/should/not/matter"

	result := RunAll(cfg)
	if !result.Passed {
		t.Error("data dir must not be checked when export is off")
	}
	for _, c := range result.Checks {
		if c.Name == "data_directory" {
			t.Error("data_directory check ran with export disabled")
		}
	}
}

func TestCheckCatalog_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	c := checkCatalog(path, false)
	if c.Passed {
		t.Error("missing catalog without refresh should fail")
	}

	c = checkCatalog(path, true)
	if !c.Passed || !c.Warning {
		t.Errorf("missing catalog with refresh should warn, got %+v", c)
	}
}

func TestCheckCatalog_NoUsableChannels(t *testing.T) {
	path := writeCatalog(t, []playlist.Channel{
		{ID: "1", Name: "No URL"},
	})

	c := checkCatalog(path, false)
	if c.Passed {
		t.Error("catalog without stream URLs should fail")
	}
	if !strings.Contains(c.Message, "no channels") {
		t.Errorf("message = %q", c.Message)
	}
}

func TestCheckCatalog_CountsUsable(t *testing.T) {
	path := writeCatalog(t, []playlist.Channel{
		{ID: "1", Name: "One", URL: "http://cdn.example.com/1/index.m3u8"},
		{ID: "2", Name: "Two"},
	})

	c := checkCatalog(path, false)
	if !c.Passed {
		t.Fatalf("check failed: %s", c.Message)
	}
	if !strings.Contains(c.Message, "2 channels, 1 usable") {
		t.Errorf("message = %q", c.Message)
	}
}

func TestCheckDataDir(t *testing.T) {
	c := checkDataDir(filepath.Join(t.TempDir(), "data", "nested"))
	if !c.Passed {
		t.Errorf("writable nested dir should pass: %s", c.Message)
	}
}

func TestCheckDataDir_NotWritable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can write anywhere")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)

	c := checkDataDir(filepath.Join(dir, "data"))
	if c.Passed {
		t.Error("unwritable dir should fail")
	}
}

func TestCheckFileDescriptors(t *testing.T) {
	c := checkFileDescriptors(4)
	if !c.Passed {
		t.Error("fd check is advisory and must never fail")
	}
	if c.Actual <= 0 {
		t.Errorf("Actual = %d, want the current rlimit", c.Actual)
	}
}

func TestCheckString(t *testing.T) {
	c := Check{Name: "channel_catalog", Passed: true, Message: "ok"}
	if got := c.String(); !strings.Contains(got, "✓") {
		t.Errorf("String() = %q, want pass marker", got)
	}

	c = Check{Name: "data_directory", Passed: false, Message: "nope"}
	if got := c.String(); !strings.Contains(got, "✗") {
		t.Errorf("String() = %q, want fail marker", got)
	}
}
