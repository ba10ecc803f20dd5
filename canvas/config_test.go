package canvas

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/domcanvas/overlay"
	"github.com/hazyhaar/domcanvas/surface"
	"github.com/hazyhaar/domcanvas/surface/chromedom"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.FrameInterval != DefaultFrameInterval {
		t.Errorf("frame interval: got %v", cfg.FrameInterval)
	}
	if cfg.QueueMax != surface.DefaultQueueMax {
		t.Errorf("queue max: got %d", cfg.QueueMax)
	}
	if cfg.SnapEpsilon != overlay.DefaultSnapEpsilon {
		t.Errorf("snap epsilon: got %g", cfg.SnapEpsilon)
	}
	if cfg.HTTPAddr != ":8470" {
		t.Errorf("http addr: got %q", cfg.HTTPAddr)
	}
	if cfg.HTTPMaxBody != DefaultHTTPMaxBody {
		t.Errorf("http max body: got %d", cfg.HTTPMaxBody)
	}
	if cfg.HTTPRateLimit != 0 {
		t.Errorf("http rate limit: got %d, want 0 (off)", cfg.HTTPRateLimit)
	}
	if cfg.JournalSnapshotInterval != 5*time.Minute {
		t.Errorf("snapshot interval: got %v", cfg.JournalSnapshotInterval)
	}
	if cfg.Browser.Stealth != "headless" {
		t.Errorf("stealth: got %q", cfg.Browser.Stealth)
	}
	if cfg.Browser.NavTimeout != 30*time.Second {
		t.Errorf("nav timeout: got %v", cfg.Browser.NavTimeout)
	}
}

func TestLoadConfig(t *testing.T) {
	doc := `
frame_interval: 50ms
history_depth: 10
snap_epsilon: 8
http_addr: ":9000"
http_rate_limit: 30
journal_path: /var/lib/domcanvas/journal.db
browser:
  remote: ws://localhost:9222/devtools
  stealth: headful
  nav_timeout: 10s
`
	path := filepath.Join(t.TempDir(), "canvas.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FrameInterval != 50*time.Millisecond {
		t.Errorf("frame interval: got %v", cfg.FrameInterval)
	}
	if cfg.HistoryDepth != 10 {
		t.Errorf("history depth: got %d", cfg.HistoryDepth)
	}
	if cfg.SnapEpsilon != 8 {
		t.Errorf("snap epsilon: got %g", cfg.SnapEpsilon)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("http addr: got %q", cfg.HTTPAddr)
	}
	if cfg.HTTPRateLimit != 30 {
		t.Errorf("http rate limit: got %d", cfg.HTTPRateLimit)
	}
	if cfg.JournalPath != "/var/lib/domcanvas/journal.db" {
		t.Errorf("journal path: got %q", cfg.JournalPath)
	}
	if cfg.Browser.Remote != "ws://localhost:9222/devtools" {
		t.Errorf("remote: got %q", cfg.Browser.Remote)
	}
	if cfg.Browser.Stealth != "headful" {
		t.Errorf("stealth: got %q", cfg.Browser.Stealth)
	}
	if cfg.Browser.NavTimeout != 10*time.Second {
		t.Errorf("nav timeout: got %v", cfg.Browser.NavTimeout)
	}

	// Unset fields still get their defaults.
	if cfg.QueueMax != surface.DefaultQueueMax {
		t.Errorf("queue max: got %d", cfg.QueueMax)
	}
	if cfg.ZoomMax == 0 {
		t.Error("zoom max not defaulted")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestChromeConfig_Mapping(t *testing.T) {
	var cfg Config
	cfg.Browser = BrowserConfig{
		Remote:     "ws://chrome:9222",
		Stealth:    "headful",
		UserAgent:  "domcanvas/test",
		Proxy:      "socks5://proxy:1080",
		NavTimeout: 5 * time.Second,
	}

	cc := cfg.ChromeConfig()
	if cc.RemoteURL != "ws://chrome:9222" {
		t.Errorf("remote url: got %q", cc.RemoteURL)
	}
	if cc.Stealth != chromedom.LevelHeadful {
		t.Errorf("stealth: got %v, want headful", cc.Stealth)
	}
	if cc.UserAgent != "domcanvas/test" || cc.Proxy != "socks5://proxy:1080" {
		t.Errorf("passthrough: got %q %q", cc.UserAgent, cc.Proxy)
	}
	if cc.NavTimeout != 5*time.Second {
		t.Errorf("nav timeout: got %v", cc.NavTimeout)
	}

	cfg.Browser.Stealth = "headless"
	if cfg.ChromeConfig().Stealth != chromedom.LevelHeadless {
		t.Error("headless did not map")
	}
}
