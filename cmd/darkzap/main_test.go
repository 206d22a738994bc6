package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hazyhaar/darkzap/internal/config"
	"github.com/hazyhaar/darkzap/zap"
)

func TestLoadConfig_LiveURL(t *testing.T) {
	cfg, err := loadConfig(options{liveURL: "https://example.com/", logLevel: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Pages) != 1 || cfg.Pages[0].ID != "page1" || cfg.Pages[0].URL != "https://example.com/" {
		t.Errorf("pages: %+v", cfg.Pages)
	}
	if cfg.Browser.Stealth != "headful" || cfg.LogLevel != "debug" {
		t.Errorf("browser %q, log level %q", cfg.Browser.Stealth, cfg.LogLevel)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	} {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v", in, got)
		}
	}
}

func TestPageHost(t *testing.T) {
	tests := []struct {
		page config.PageConfig
		want string
		err  bool
	}{
		{config.PageConfig{Host: "a.com", HTML: "a.html"}, "a.com", false},
		{config.PageConfig{URL: "https://b.com/x"}, "b.com", false},
		{config.PageConfig{HTML: "c.html"}, "localhost", false},
		{config.PageConfig{Host: "bad host", HTML: "c.html"}, "", true},
	}
	for _, tt := range tests {
		got, err := pageHost(tt.page)
		if (err != nil) != tt.err || (!tt.err && got != tt.want) {
			t.Errorf("pageHost(%+v) = %q, %v", tt.page, got, err)
		}
	}
}

func TestFileReloader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte(`<html><body><p>one</p></body></html>`), 0o644); err != nil {
		t.Fatal(err)
	}

	host := zap.NewHost(nil)
	f := newFileReloader(host, 800, slog.Default())
	if err := f.open("p1", "localhost", path); err != nil {
		t.Fatal(err)
	}
	if err := f.open("p2", "localhost", filepath.Join(dir, "missing.html")); err == nil {
		t.Error("missing file should fail")
	}

	os.WriteFile(path, []byte(`<html><body><h1>two</h1></body></html>`), 0o644)
	t0 := time.Now()
	f.handle(fsnotify.Event{Name: path, Op: fsnotify.Write}, t0)
	f.handle(fsnotify.Event{Name: filepath.Join(dir, "other.html"), Op: fsnotify.Write}, t0)
	f.handle(fsnotify.Event{Name: path, Op: fsnotify.Chmod}, t0)
	if len(f.pending) != 1 {
		t.Fatalf("pending: %v", f.pending)
	}

	f.flush(t0.Add(reloadDebounce / 2))
	if _, err := host.Commit("p1", "h1", 0); !errors.Is(err, zap.ErrNoTarget) {
		t.Errorf("reloaded before the debounce window: %v", err)
	}

	f.flush(t0.Add(reloadDebounce))
	if _, err := host.Commit("p1", "h1", 0); err != nil {
		t.Errorf("page not reloaded: %v", err)
	}
	if len(f.pending) != 0 {
		t.Errorf("pending after flush: %v", f.pending)
	}
}
