// cmd/service/main.go
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

	"github.com/jackc/pgx/v5/pgxpool"

	"github-account-mirror/internal/api"
	"github-account-mirror/internal/config"
	"github-account-mirror/internal/github"
	"github-account-mirror/internal/ingest"
	"github-account-mirror/internal/schema"
	"github-account-mirror/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	schemaMode, err := schema.ParseMode(cfg.SchemaMode)
	if err != nil {
		return fmt.Errorf("failed to parse schema mode: %w", err)
	}
	writePolicy, err := store.ParsePolicy(cfg.WritePolicy)
	if err != nil {
		return fmt.Errorf("failed to parse write policy: %w", err)
	}

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection, held for the process lifetime and
	// released on every exit path.
	dbURL := cfg.DatabaseURL()
	dbpool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	// 5. Initialize application components
	ghClient := github.NewClient(cfg.GithubToken, cfg.RequestTimeout, logger)
	schemaMgr := schema.NewManager(dbURL, schemaMode, logger)
	st := store.New(dbpool, writePolicy, logger)
	ingestor := ingest.New(schemaMgr, ghClient, st, logger, cfg.Accounts, cfg.IngestInterval, cfg.Concurrency)

	// 6. Start the ingestor in a separate goroutine
	go ingestor.Start(ctx)

	// 7. Start the HTTP API
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(st, ingestor, logger),
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// 8. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	<-ctx.Done()
	logger.Info("Shutdown signal received. Exiting.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
