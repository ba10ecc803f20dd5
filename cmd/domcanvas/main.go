// Command domcanvas opens a live editing session over a rendered document
// and exposes it through an HTTP API or as an MCP stdio server.
//
// Usage:
//
//	domcanvas -url https://example.com              # edit a live page
//	domcanvas -html page.html                       # edit a local document
//	domcanvas -config domcanvas.yaml -url ...       # with YAML config
//	domcanvas -url https://example.com -mcp         # serve MCP on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domcanvas/canvas"
	"github.com/hazyhaar/domcanvas/surface"
	"github.com/hazyhaar/domcanvas/surface/chromedom"
)

func main() {
	configPath := flag.String("config", "", "path to domcanvas.yaml config file")
	pageURL := flag.String("url", "", "URL of the page to edit (Chrome surface)")
	htmlPath := flag.String("html", "", "path to a local HTML document (in-memory surface)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	journalPath := flag.String("journal", "", "path to the command journal database (overrides config)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP on stdio instead of HTTP")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *pageURL, *htmlPath, *addr, *journalPath, *mcpStdio); err != nil {
		logger.Error("domcanvas: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL, htmlPath, addr, journalPath string, mcpStdio bool) error {
	cfg := canvas.DefaultConfig()
	if configPath != "" {
		loaded, err := canvas.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	if journalPath != "" {
		cfg.JournalPath = journalPath
	}

	surf, cleanup, err := openSurface(ctx, logger, cfg, pageURL, htmlPath)
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := canvas.Open(ctx, surf, cfg, canvas.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sess.Close()

	unsub := canvas.LogEvents(sess.Bus(), logger)
	defer unsub()

	go func() {
		if err := sess.Run(ctx); err != nil {
			logger.Error("domcanvas: session loop", "error", err)
		}
	}()

	if mcpStdio {
		return runMCP(ctx, sess)
	}
	return runHTTP(ctx, logger, sess, cfg.HTTPAddr)
}

// openSurface picks the rendering surface: a Chrome page for a URL, an
// in-memory document for a local HTML file.
func openSurface(ctx context.Context, logger *slog.Logger, cfg canvas.Config, pageURL, htmlPath string) (surface.Surface, func(), error) {
	switch {
	case htmlPath != "":
		src, err := os.ReadFile(htmlPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read html: %w", err)
		}
		m, err := surface.NewMemDOM(string(src))
		if err != nil {
			return nil, nil, fmt.Errorf("parse html: %w", err)
		}
		return m, func() {}, nil

	case pageURL != "":
		mgr := chromedom.NewManager(cfg.ChromeConfig())
		if _, err := mgr.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("start browser: %w", err)
		}
		page, err := chromedom.Open(ctx, mgr, pageURL)
		if err != nil {
			mgr.Close()
			return nil, nil, fmt.Errorf("open page: %w", err)
		}
		logger.Info("domcanvas: page open", "url", pageURL)
		return page, func() { mgr.Close() }, nil
	}

	fmt.Fprintln(os.Stderr, "usage: domcanvas -url <url> | -html <file> [-config <file>] [-mcp]")
	return nil, nil, errors.New("no surface: -url or -html required")
}

func runMCP(ctx context.Context, sess *canvas.Session) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "domcanvas",
		Version: "0.1.0",
	}, nil)
	sess.RegisterMCP(srv)
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func runHTTP(ctx context.Context, logger *slog.Logger, sess *canvas.Session, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           canvas.NewRouter(sess, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("domcanvas: http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
