package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/darkzap/darkmode"
	"github.com/hazyhaar/darkzap/internal/browser"
	"github.com/hazyhaar/darkzap/internal/config"
	"github.com/hazyhaar/darkzap/kit"
	"github.com/hazyhaar/darkzap/shield"
	"github.com/hazyhaar/darkzap/zap"
)

func serve(ctx context.Context, logger *slog.Logger, cfg *config.Config, withMCP bool) error {
	svc, err := darkmode.Open(cfg.DBPath, darkmode.WithLogger(logger))
	if err != nil {
		return err
	}
	defer svc.Close()

	host := zap.NewHost(svc,
		zap.WithHostLogger(logger),
		zap.WithSessionOptions(
			zap.WithViewport(cfg.Viewport),
			zap.WithEditorSize(cfg.Editor),
			zap.WithDefaultLevel(cfg.Level()),
		))

	// Blacklist changes, local or from another process, close the editors
	// open on the affected host.
	blacklist, cancelBlacklist := svc.Subscribe(16)
	defer cancelBlacklist()
	go host.Follow(ctx, darkmode.Hosts(ctx, blacklist, darkmode.KindBlacklist))
	go svc.Watch(ctx, cfg.WatchInterval)

	files := newFileReloader(host, cfg.Viewport.Width, logger)
	var live []*liveTab
	var mgr *browser.Manager

	for _, p := range cfg.Pages {
		name, err := pageHost(p)
		if err != nil {
			return fmt.Errorf("page %s: %w", p.ID, err)
		}
		if p.HTML != "" {
			if err := files.open(p.ID, name, p.HTML); err != nil {
				return fmt.Errorf("page %s: %w", p.ID, err)
			}
			continue
		}

		if mgr == nil {
			mgr = browser.NewManager(browser.Config{
				RemoteURL:        cfg.Browser.Remote,
				Headful:          cfg.Browser.Stealth == "headful",
				ResourceBlocking: cfg.Browser.ResourceBlocking,
				Timeout:          cfg.Browser.Timeout,
				Logger:           logger,
			})
			defer mgr.Close()
		}
		lt, err := openLivePage(ctx, logger, host, svc, mgr, p.ID, name, p.URL)
		if err != nil {
			return fmt.Errorf("page %s: %w", p.ID, err)
		}
		defer lt.tab.Close()
		live = append(live, lt)
	}

	go files.run(ctx)
	if len(live) > 0 {
		changes, cancelChanges := svc.Subscribe(16)
		defer cancelChanges()
		go restyle(ctx, logger, svc, live, darkmode.Hosts(ctx, changes))
	}

	if withMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "darkzap", Version: "0.1.0"}, nil)
		host.RegisterMCP(mcpSrv)
		svc.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("darkzap: MCP on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("darkzap: MCP stdio", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(kit.RequestID)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	host.RegisterHTTP(r)
	svc.RegisterHTTP(r)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("darkzap: server starting", "addr", cfg.Listen, "pages", host.Pages())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("darkzap: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("darkzap: shutdown", "error", err)
	}
	return nil
}

// pageHost is the blacklist key of a page: the configured host, else the URL
// host. File pages without one share "localhost".
func pageHost(p config.PageConfig) (string, error) {
	if p.Host != "" {
		return p.Host, darkmode.ValidHost(p.Host)
	}
	if p.URL != "" {
		return darkmode.HostOf(p.URL)
	}
	return "localhost", nil
}
