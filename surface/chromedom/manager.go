package chromedom

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Manager owns the Chrome process: launch or remote-connect, hand out the
// Rod handle, shut down.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or connects to a remote instance, and returns the
// Rod browser handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("chromedom: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	log := m.cfg.Logger
	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("chromedom: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(m.cfg.Stealth == LevelHeadless)
		l = l.Set("disable-blink-features", "AutomationControlled")
		if m.cfg.UserAgent != "" {
			l = l.Set("user-agent", m.cfg.UserAgent)
		}
		if m.cfg.Proxy != "" {
			l = l.Proxy(m.cfg.Proxy)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("chromedom: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("chromedom: launched local chrome", "url", wsURL, "headless", m.cfg.Stealth == LevelHeadless)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("chromedom: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("chromedom: ignore cert errors failed", "error", err)
	}

	m.browser = b
	return b, nil
}

// Browser returns the current Rod browser handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// Close shuts down Chrome and the launcher.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}
