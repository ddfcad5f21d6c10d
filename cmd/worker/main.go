// Package main provides the entrypoint for the PresenceGuard worker.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/activity"
	"github.com/presenceguard/presenceguard/internal/binding"
	"github.com/presenceguard/presenceguard/internal/database"
	"github.com/presenceguard/presenceguard/internal/featureflags"
	"github.com/presenceguard/presenceguard/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "presenceguard-worker"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting PresenceGuard worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize feature flags
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})

	// Initialize the binding service and the expiry sweep job
	bindingService := binding.NewService(binding.ServiceConfig{
		Repo:     binding.NewPostgresRepository(pool),
		Activity: activity.NewPostgresRepository(pool),
		Logger:   log,
	})
	sweepJob := worker.NewSweepJob(worker.SweepJobConfig{
		Sweeper: bindingService,
		Flags:   ffService,
		Logger:  log,
	})

	// Health check server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		metrics := sweepJob.Metrics()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"sweep": map[string]interface{}{
				"totalRuns":    metrics.TotalRuns,
				"failedRuns":   metrics.FailedRuns,
				"skippedRuns":  metrics.SkippedRuns,
				"totalExpired": metrics.TotalExpired,
				"lastRunAt":    metrics.LastRunAt,
			},
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Prefer Pub/Sub dispatch when configured; fall back to a local ticker
	// so single-node deployments still sweep.
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if projectID != "" && subscription != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			SweepJob:         sweepJob,
			HealthCheck:      pool.Ping,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Fatal().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		interval := 1 * time.Hour
		if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
			if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
				interval = parsed
			}
		}
		log.Info().Dur("interval", interval).Msg("pubsub not configured, sweeping on a local ticker")

		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sweepJob.Run(ctx)
				}
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
