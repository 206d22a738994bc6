// CLAUDE:SUMMARY Owns the Chrome instance live pages run in; launched on first Open, local (headless or headful) or remote.
// Package browser runs zap mode against live pages: it drives Chrome through
// Rod, snapshots the rendered DOM with measured boxes and draws the zap
// overlay inside the page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("browser: closed")

// Config configures a Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket of a Chrome to attach to. Empty
	// launches a local one.
	RemoteURL string

	// Headful shows the window so a user can zap by hand. Headless tabs get
	// the stealth patches instead.
	Headful bool

	// ResourceBlocking lists request types never fetched (images, fonts, media...).
	ResourceBlocking []string

	// Timeout bounds each navigation. Default 30s.
	Timeout time.Duration

	Logger *slog.Logger
}

// Manager hands out tabs of a single Chrome, started on the first Open.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	local   *launcher.Launcher
	closed  bool
}

// NewManager returns a Manager. No Chrome runs until Open.
func NewManager(cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg}
}

// connected returns the browser, connecting on first use.
func (m *Manager) connected(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return nil, ErrClosed
	case m.browser != nil:
		return m.browser, nil
	}

	controlURL := m.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).
			Headless(!m.cfg.Headful).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch chrome: %w", err)
		}
		m.local, controlURL = l, u
	}

	b := rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return nil, fmt.Errorf("browser: connect %s: %w", redact(controlURL), err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		m.cfg.Logger.Warn("browser: ignore cert errors", "error", err)
	}
	m.cfg.Logger.Info("browser: ready",
		"remote", m.cfg.RemoteURL != "", "headful", m.cfg.Headful, "control", redact(controlURL))
	m.browser = b
	return b, nil
}

// Close stops Chrome, or detaches from a remote one. Tabs opened by the
// Manager are unusable afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.cleanup()
	return err
}

func (m *Manager) cleanup() {
	if m.local != nil {
		m.local.Cleanup()
		m.local = nil
	}
}

// redact drops the DevTools session token from a control URL for logging.
func redact(controlURL string) string {
	if i := strings.Index(controlURL, "/devtools/"); i >= 0 {
		return controlURL[:i] + "/devtools/..."
	}
	return controlURL
}
