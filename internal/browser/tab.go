package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is one page of the managed Chrome.
type Tab struct {
	Page    *rod.Page
	PageURL string

	logger  *slog.Logger
	timeout time.Duration
}

// Open starts Chrome if needed, creates a tab and navigates it to pageURL.
// A load that outlasts the timeout is logged and the tab is still returned:
// slow pages are zappable once the parser is done.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Tab, error) {
	b, err := m.connected(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if m.cfg.Headful {
		page, err = b.Page(proto.TargetCreateTarget{})
	} else {
		page, err = stealth.Page(b)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: new tab: %w", err)
	}
	if err := applyResourceBlocking(page, m.cfg.ResourceBlocking); err != nil {
		m.cfg.Logger.Warn("browser: resource blocking", "url", pageURL, "error", err)
	}

	nav, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := page.Context(nav).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(nav).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: load not finished", "url", pageURL, "error", err)
	}
	return &Tab{Page: page, PageURL: pageURL, logger: m.cfg.Logger, timeout: m.cfg.Timeout}, nil
}

// StyleID is the id of the <style> element ApplyStylesheet manages.
const StyleID = "darkzap-style"

// ApplyStylesheet installs css in a single managed <style> element, replacing
// the previous one. An empty css removes it.
func (t *Tab) ApplyStylesheet(ctx context.Context, css string) error {
	_, err := t.Page.Context(ctx).Eval(`(css) => {
		let el = document.getElementById("`+StyleID+`");
		if (!css) { if (el) el.remove(); return; }
		if (!el) {
			el = document.createElement("style");
			el.id = "`+StyleID+`";
			(document.head || document.documentElement).appendChild(el);
		}
		el.textContent = css;
	}`, css)
	if err != nil {
		return fmt.Errorf("browser: apply stylesheet: %w", err)
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
