// Package chromedom implements the rendering surface on a live Chrome page
// driven over CDP. An injected agent script owns per-node refs, reports
// mutations through a runtime binding and executes reconciler writes
// in-page, draining its own mutation records before they can echo back as
// observed change.
package chromedom

import (
	"log/slog"
	"time"
)

// StealthLevel controls how the browser and its pages are opened.
type StealthLevel int

const (
	LevelHeadless StealthLevel = iota // headless with stealth patches
	LevelHeadful                      // visible browser window
)

// Config configures the browser manager and its pages.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via the launcher.
	RemoteURL string

	// Stealth selects headless stealth or a visible window.
	Stealth StealthLevel

	// UserAgent overrides Chrome's user agent when launching locally.
	UserAgent string

	// Proxy is an optional proxy server for the launched Chrome.
	Proxy string

	// NavTimeout bounds navigation and load waiting. Default: 30s.
	NavTimeout time.Duration

	// StyleProps is the computed-style subset captured per node snapshot.
	StyleProps []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.StyleProps == nil {
		c.StyleProps = []string{
			"display", "position", "color", "background-color",
			"font-size", "font-family", "font-weight", "line-height",
			"text-align", "opacity", "z-index", "overflow", "border-radius",
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
