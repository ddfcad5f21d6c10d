// Package main provides the entrypoint for the PresenceGuard API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/activity"
	"github.com/presenceguard/presenceguard/internal/api"
	"github.com/presenceguard/presenceguard/internal/api/middleware"
	"github.com/presenceguard/presenceguard/internal/attendance"
	"github.com/presenceguard/presenceguard/internal/auth"
	"github.com/presenceguard/presenceguard/internal/binding"
	"github.com/presenceguard/presenceguard/internal/database"
	"github.com/presenceguard/presenceguard/internal/featureflags"
	"github.com/presenceguard/presenceguard/internal/session"
	"github.com/presenceguard/presenceguard/internal/telemetry"
	"github.com/presenceguard/presenceguard/internal/verification"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "presenceguard-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting PresenceGuard API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     getEnvOrDefault("JWT_ISSUER", "https://id.presenceguard.dev"),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", "presenceguard-api"),
	})
	log.Info().Msg("JWT verifier initialized")

	// Initialize feature flags repository and service
	ffRepo := featureflags.NewPostgresRepository(pool)
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: ffRepo,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	// Initialize the audit log and binding service
	activityRepo := activity.NewPostgresRepository(pool)
	bindingService := binding.NewService(binding.ServiceConfig{
		Repo:     binding.NewPostgresRepository(pool),
		Activity: activityRepo,
		Logger:   log,
	})
	log.Info().Msg("binding service initialized")

	// Initialize the session repository, fronted by Redis when configured
	var sessions session.Repository = session.NewPostgresRepository(pool)
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		cacheMetrics, err := middleware.NewProviderMetrics("session-cache")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize session cache metrics")
		}
		sessions = session.NewCache(session.CacheConfig{
			Inner:   sessions,
			Client:  redisClient,
			Flags:   ffService,
			Metrics: cacheMetrics,
			Logger:  log,
		})
		log.Info().Str("addr", redisAddr).Msg("session cache enabled")
	} else {
		log.Warn().Msg("REDIS_ADDR not set - session reads go straight to the database")
	}

	// Initialize the attendance service
	attendanceService := attendance.NewService(attendance.ServiceConfig{
		Binding:  bindingService,
		Sessions: sessions,
		Scorer:   verification.NewScorer(ffService, log),
		Repo:     attendance.NewPostgresRepository(pool),
		Activity: activityRepo,
		Flags:    ffService,
		Logger:   log,
	})
	log.Info().Msg("attendance service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		JWTService:         jwtService,
		BindingService:     bindingService,
		AttendanceService:  attendanceService,
		FeatureFlagService: ffService,
		ActivityRepo:       activityRepo,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
