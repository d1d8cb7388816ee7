package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erauner12/listd/internal/config"
	"github.com/erauner12/listd/internal/db"
	"github.com/erauner12/listd/internal/hub"
	"github.com/erauner12/listd/internal/retry"
	"github.com/erauner12/listd/internal/storage"
	"github.com/erauner12/listd/internal/wsapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "listd").Logger()

	cfg := config.Load()

	// Pretty logging for local dev (only when explicitly set to "dev")
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL(), cfg.PGMaxConns, cfg.PGMinConns, storage.SchemaSQL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	adapter := storage.NewPostgres(pool)

	var policy backoff.BackOff = retry.NoBackoff()
	if cfg.RetryBackoff == "exponential" {
		policy = backoff.NewExponentialBackOff()
		log.Info().Msg("exponential retry backoff enabled")
	}

	srv := &wsapi.Server{
		Adapter:       adapter,
		Hub:           hub.New(),
		MaxAttempts:   cfg.MaxRetryAttempts,
		BackoffPolicy: policy,
		CORSOrigins:   cfg.CORSOrigins,
		PingDeps:      pool.Ping,
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting listd server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
