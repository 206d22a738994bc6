package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/darkzap/darkmode"
	"github.com/hazyhaar/darkzap/internal/browser"
	"github.com/hazyhaar/darkzap/zap"
)

const reloadDebounce = 300 * time.Millisecond

// fileReloader opens file pages and reloads them when the file changes on
// disk. Directories are watched rather than files so editors that replace the
// file by rename are seen too.
type fileReloader struct {
	host   *zap.Host
	width  float64
	logger *slog.Logger

	pages   map[string][]string // clean path -> page ids
	pending map[string]time.Time
}

func newFileReloader(host *zap.Host, width float64, logger *slog.Logger) *fileReloader {
	return &fileReloader{
		host:    host,
		width:   width,
		logger:  logger,
		pages:   make(map[string][]string),
		pending: make(map[string]time.Time),
	}
}

func (f *fileReloader) open(id, name, path string) error {
	doc, err := loadDocument(path, f.width)
	if err != nil {
		return err
	}
	f.host.Open(id, name, doc, nil)
	clean := filepath.Clean(path)
	f.pages[clean] = append(f.pages[clean], id)
	return nil
}

// run watches the page files until ctx is done. It returns at once when
// there are no file pages.
func (f *fileReloader) run(ctx context.Context) {
	if len(f.pages) == 0 {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.Warn("darkzap: file watcher unavailable", "error", err)
		return
	}
	defer w.Close()

	dirs := make(map[string]bool)
	for path := range f.pages {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			f.logger.Warn("darkzap: watch dir", "dir", dir, "error", err)
		}
	}

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			f.handle(ev, time.Now())
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warn("darkzap: file watcher", "error", err)
		case now := <-tick.C:
			f.flush(now)
		}
	}
}

func (f *fileReloader) handle(ev fsnotify.Event, now time.Time) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(ev.Name)
	if _, ok := f.pages[path]; ok {
		f.pending[path] = now
	}
}

// flush reloads the files that stayed quiet for reloadDebounce.
func (f *fileReloader) flush(now time.Time) {
	for path, at := range f.pending {
		if now.Sub(at) < reloadDebounce {
			continue
		}
		delete(f.pending, path)
		doc, err := loadDocument(path, f.width)
		if err != nil {
			f.logger.Warn("darkzap: reload failed", "path", path, "error", err)
			continue
		}
		for _, id := range f.pages[path] {
			if err := f.host.Reload(id, doc); err != nil {
				f.logger.Warn("darkzap: reload failed", "page", id, "error", err)
			}
		}
	}
}

type liveTab struct {
	id   string
	host string
	tab  *browser.Tab
}

func openLivePage(ctx context.Context, logger *slog.Logger, host *zap.Host, svc *darkmode.Service, mgr *browser.Manager, id, name, url string) (*liveTab, error) {
	tab, err := mgr.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	lt := &liveTab{id: id, host: name, tab: tab}
	applyStyle(ctx, logger, svc, lt)

	page, err := browser.Snapshot(ctx, tab)
	if err != nil {
		tab.Close()
		return nil, err
	}
	host.Open(id, name, page, browser.NewSurface(tab))
	go func() {
		if err := page.Forward(ctx, host, id); err != nil {
			logger.Warn("darkzap: event forwarding stopped", "page", id, "error", err)
		}
	}()
	return lt, nil
}

// restyle re-applies the dark mode stylesheet of every live tab whose host
// changed. "" means every tab.
func restyle(ctx context.Context, logger *slog.Logger, svc *darkmode.Service, tabs []*liveTab, hosts <-chan string) {
	for h := range hosts {
		for _, lt := range tabs {
			if h == "" || h == lt.host {
				applyStyle(ctx, logger, svc, lt)
			}
		}
	}
}

func applyStyle(ctx context.Context, logger *slog.Logger, svc *darkmode.Service, lt *liveTab) {
	css, err := svc.Stylesheet(ctx, lt.host, browser.OverlayID)
	if err != nil {
		logger.Warn("darkzap: stylesheet", "page", lt.id, "host", lt.host, "error", err)
		return
	}
	if err := lt.tab.ApplyStylesheet(ctx, css); err != nil {
		logger.Warn("darkzap: apply stylesheet", "page", lt.id, "error", err)
	}
}
