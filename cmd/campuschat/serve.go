package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/vcetai/campuschat/internal/api"
	"github.com/vcetai/campuschat/internal/config"
	"github.com/vcetai/campuschat/internal/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the answer API server (foreground)",
	Long: `Run the answer API server.

Serves the /api endpoints the chat client talks to, answering queries
through Groq with response caching and per-client rate limiting. Also
exposes the same tools over MCP on stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	fmt.Fprintf(os.Stderr, "campuschat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Proxy.GroqAPIKey == "" {
		return fmt.Errorf("Groq API key is required: set CAMPUSCHAT_GROQ_API_KEY or GROQ_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	groq := proxy.NewClient(cfg.Proxy.GroqAPIKey, cfg.Proxy.Model)

	var limiter *api.Limiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}

	deps := api.Deps{
		Answerer:    api.NewGroqAnswerer(groq),
		Limiter:     limiter,
		Cache:       api.NewQueryCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLMinutes)*time.Minute),
		Stats:       api.NewStats(),
		RequiredKey: cfg.Server.RequiredAPIKey,
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// Build and start MCP server (stdio transport in a goroutine).
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr, "model", groq.Model())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
