// CLAUDE:SUMMARY CLI entry point for darkzap: one-shot selector synthesis, or serve zap mode and dark mode prefs over HTTP/MCP.
// Command darkzap builds blacklist selectors for page elements and serves the
// dark mode preferences they end up in.
//
// Usage:
//
//	darkzap -html page.html -target "#ad" -level 3   # synthesize one selector and exit
//	darkzap -config darkzap.yaml                      # serve the configured pages over HTTP
//	darkzap -config darkzap.yaml -mcp                 # same, plus MCP on stdio
//	darkzap -url https://example.com                  # zap a live page in a visible Chrome
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/darkzap/dom"
	"github.com/hazyhaar/darkzap/internal/config"
	"github.com/hazyhaar/darkzap/selector"
)

type options struct {
	configPath string
	htmlPath   string
	target     string
	level      string
	liveURL    string
	mcp        bool
	logLevel   string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to darkzap.yaml config file")
	flag.StringVar(&o.htmlPath, "html", "", "HTML file for one-shot synthesis")
	flag.StringVar(&o.target, "target", "", "selector of the element to synthesize for (with -html)")
	flag.StringVar(&o.level, "level", "", "specificity level 0-9 (with -html)")
	flag.StringVar(&o.liveURL, "url", "", "open a live page in a visible Chrome")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools on stdio")
	flag.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, o); err != nil {
		logger.Error("darkzap: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.liveURL != "" {
		cfg.Pages = append(cfg.Pages, config.PageConfig{
			ID:  fmt.Sprintf("page%d", len(cfg.Pages)+1),
			URL: o.liveURL,
		})
		cfg.Browser.Stealth = "headful"
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, o options) error {
	if o.htmlPath != "" {
		return runOnce(cfg, o)
	}
	return serve(ctx, logger, cfg, o.mcp)
}

// runOnce prints the committed selector of the first element matching
// -target as JSON.
func runOnce(cfg *config.Config, o options) error {
	if o.target == "" {
		return fmt.Errorf("-target is required with -html")
	}
	level := cfg.Level()
	if o.level != "" {
		l, err := selector.ParseLevel(o.level)
		if err != nil {
			return err
		}
		level = l
	}

	doc, err := loadDocument(o.htmlPath, cfg.Viewport.Width)
	if err != nil {
		return err
	}
	nodes, err := doc.QueryAll(o.target)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no element matches %q", o.target)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(selector.Commit(doc, nodes[0], level))
}

func loadDocument(path string, width float64) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dom.Parse(f, dom.NewFlowLayout(width))
}
