package canvas

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/domcanvas/overlay"
	"github.com/hazyhaar/domcanvas/surface"
	"github.com/hazyhaar/domcanvas/surface/chromedom"
	"github.com/hazyhaar/domcanvas/viewport"
)

// DefaultFrameInterval is the reconciler tick period: pending external
// records are at most one frame stale.
const DefaultFrameInterval = 16 * time.Millisecond

// DefaultHTTPMaxBody caps API request bodies. Layer edits are small;
// the largest legitimate payload is a content.html patch.
const DefaultHTTPMaxBody = 1 << 20

// Config is the session configuration, loadable from YAML.
type Config struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
	HistoryDepth  int           `yaml:"history_depth"`
	QueueMax      int           `yaml:"queue_max"`
	SnapEpsilon   float64       `yaml:"snap_epsilon"`
	ZoomMin       float64       `yaml:"zoom_min"`
	ZoomMax       float64       `yaml:"zoom_max"`

	HTTPAddr                string        `yaml:"http_addr"`
	HTTPMaxBody             int64         `yaml:"http_max_body"`
	HTTPRateLimit           int           `yaml:"http_rate_limit"` // requests/min per client, 0 = off
	JournalPath             string        `yaml:"journal_path"`
	JournalSnapshotInterval time.Duration `yaml:"journal_snapshot_interval"`

	Browser BrowserConfig `yaml:"browser"`
}

// BrowserConfig controls the Chrome surface when one is attached.
type BrowserConfig struct {
	Remote     string        `yaml:"remote"`  // ws:// URL of an external Chrome
	Stealth    string        `yaml:"stealth"` // headless | headful
	UserAgent  string        `yaml:"user_agent"`
	Proxy      string        `yaml:"proxy"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

func (c *Config) defaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.HistoryDepth <= 0 {
		c.HistoryDepth = 0 // layer.NewHistory applies its own default
	}
	if c.QueueMax <= 0 {
		c.QueueMax = surface.DefaultQueueMax
	}
	if c.SnapEpsilon <= 0 {
		c.SnapEpsilon = overlay.DefaultSnapEpsilon
	}
	if c.ZoomMin <= 0 {
		c.ZoomMin = viewport.DefaultZoomMin
	}
	if c.ZoomMax <= 0 {
		c.ZoomMax = viewport.DefaultZoomMax
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8470"
	}
	if c.HTTPMaxBody <= 0 {
		c.HTTPMaxBody = DefaultHTTPMaxBody
	}
	if c.JournalSnapshotInterval <= 0 {
		c.JournalSnapshotInterval = 5 * time.Minute
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.defaults()
	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("canvas: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("canvas: parse config %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}

// ChromeConfig maps the browser section onto the chromedom configuration.
func (c Config) ChromeConfig() chromedom.Config {
	level := chromedom.LevelHeadless
	if c.Browser.Stealth == "headful" {
		level = chromedom.LevelHeadful
	}
	return chromedom.Config{
		RemoteURL:  c.Browser.Remote,
		Stealth:    level,
		UserAgent:  c.Browser.UserAgent,
		Proxy:      c.Browser.Proxy,
		NavTimeout: c.Browser.NavTimeout,
	}
}
