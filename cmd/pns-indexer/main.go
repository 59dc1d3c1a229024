package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pnslabs/pns-indexer/internal/auth"
	"github.com/pnslabs/pns-indexer/internal/config"
	"github.com/pnslabs/pns-indexer/internal/server"
	"github.com/pnslabs/pns-indexer/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "pns-indexer",
		Short:   "pns-indexer - cross-chain naming registry indexer",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeysCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the indexer: scan loops, sync dispatchers, and the read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage operator API keys",
	}
	cmd.AddCommand(newKeysGenerateCmd())
	return cmd
}

func newKeysGenerateCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an operator API key",
		Long: `Generate an operator API key for the admin job surface.

The plaintext key is shown once; the server is configured with its hash:

  pns-indexer keys generate
  export ADMIN_API_KEY_HASHES=<printed hash>
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysGenerate(quiet)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")
	return cmd
}

func runKeysGenerate(quiet bool) error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	if quiet {
		fmt.Println(key)
		return nil
	}

	fmt.Println("Operator API key (save this - it cannot be retrieved later):")
	fmt.Println()
	fmt.Println("   ", key)
	fmt.Println()
	fmt.Println("Configure the server with its hash:")
	fmt.Println()
	fmt.Println("    export AUTH_TYPE=api-key")
	fmt.Println("    export ADMIN_API_KEY_HASHES=" + auth.HashAPIKey(key))
	return nil
}

// Server command

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting pns-indexer", "version", version,
		"primary", cfg.Chains.Primary, "mirror", cfg.Chains.Mirror)

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(ctx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("building indexer: %w", err)
	}
	defer srv.Close()

	// Scan loops and dispatchers
	runDone := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(runDone)
	}()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Metrics on a separate listener so the public API surface never exposes
	// internal operational detail.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:     srv.MetricsHandler(),
			ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	// Graceful shutdown: stop HTTP first, then the loops
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown error", "error", err)
		}
	}

	cancel()
	select {
	case <-runDone:
	case <-shutdownCtx.Done():
		logger.Warn("scan loops did not stop before the shutdown deadline")
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
