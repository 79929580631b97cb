// Package main is the entry point for the stock trader ledger server.
// It serves the get_stock_price, buy_stock and get_portfolio_status tools over
// HTTP, backed by a per-user positions ledger in SQLite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/stocktrader/internal/config"
	"github.com/aristath/stocktrader/internal/di"
	"github.com/aristath/stocktrader/internal/server"
	"github.com/aristath/stocktrader/pkg/logger"
)

// main is the application entry point. Startup order:
// 1. Load configuration
// 2. Initialize logging
// 3. Wire dependencies; this migrates the ledger and any failure is fatal
// 4. Start the maintenance scheduler and the HTTP server
// 5. Wait for a shutdown signal and shut down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting stock trader")

	// The ledger migration runs inside Wire, before the server exists
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	log.Info().
		Str("from", string(container.Migration.From)).
		Str("to", string(container.Migration.To)).
		Int64("rows_migrated", container.Migration.RowsMigrated).
		Msg("Ledger schema ready")

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})
	srv.SetJobs(jobs.Maintenance, jobs.CacheCleanup)

	if container.Scheduler != nil {
		container.Scheduler.Start()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
