// Package main is the entrypoint for the Dinex license server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DelfimCelestino/dinex/internal/api"
	"github.com/DelfimCelestino/dinex/internal/config"
	"github.com/DelfimCelestino/dinex/internal/db"
	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/DelfimCelestino/dinex/internal/maintenance"
	"github.com/DelfimCelestino/dinex/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Dinex license server")

	cfg := config.LoadServerConfig()

	if cfg.SecretKeyFallback {
		logger.Warn().Msg("LICENSE_SECRET_KEY is not set, using the built-in default; licenses signed with it are forgeable")
	}

	if cfg.DatabaseURL == "" {
		logger.Error().Msg("DATABASE_URL environment variable is required")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	signer := license.NewSigner(cfg.SecretKey)
	fingerprinter := license.NewHostFingerprinter(logger)
	manager := license.NewManager(database, signer, fingerprinter, logger)

	collector := metrics.NewCollector(logger)

	router, err := api.NewRouter(cfg, database, manager, collector, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build router")
		return 1
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Nightly report of licenses that stayed active past expiry
	expiryScheduler := maintenance.NewExpiryScheduler(database, collector, cfg.ExpirySweepSpec, logger)
	if err := expiryScheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start expiry sweep scheduler")
	}
	defer expiryScheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
