// Package api provides the HTTP API for PresenceGuard.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/presenceguard/presenceguard/internal/activity"
	"github.com/presenceguard/presenceguard/internal/api/handler"
	"github.com/presenceguard/presenceguard/internal/api/middleware"
	"github.com/presenceguard/presenceguard/internal/attendance"
	"github.com/presenceguard/presenceguard/internal/auth"
	"github.com/presenceguard/presenceguard/internal/binding"
	"github.com/presenceguard/presenceguard/internal/featureflags"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version            string
	BuildTime          string
	Logger             zerolog.Logger
	ServiceName        string
	Metrics            *middleware.Metrics
	JWTService         *auth.JWTService
	BindingService     *binding.Service
	AttendanceService  *attendance.Service
	FeatureFlagService *featureflags.Service
	ActivityRepo       activity.Repository
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "presenceguard-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.FeatureFlagService)
	bindingHandler := handler.NewBindingHandler(cfg.BindingService)
	attendanceHandler := handler.NewAttendanceHandler(cfg.AttendanceService)
	adminHandler := handler.NewAdminHandler(cfg.BindingService, cfg.ActivityRepo)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.JWTService)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	// Create rate limit middleware for different endpoint categories
	loginRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)        // 10 req/min
	scanRateLimit := middleware.RateLimitByUser(middleware.ExpensiveRateLimit)  // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Binding endpoints (authenticated) - strict rate limiting since a
		// login registration can open a switch request
		r.Route("/bindings", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(loginRateLimit) // 10 requests per minute per IP
			r.Post("/login", bindingHandler.Login)
		})

		// Scan submission (authenticated) - the scoring path is the most
		// expensive request in the system
		r.Route("/attendance", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(scanRateLimit) // 30 requests per minute per user
			r.Post("/scan", attendanceHandler.SubmitScan)
		})

		// Admin endpoints (authenticated, admin role)
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminOnly)
			r.Use(standardRateLimit)

			// Switch request review
			r.Route("/switch-requests", func(r chi.Router) {
				r.Get("/", adminHandler.ListSwitchRequests)
				r.Post("/{requestId}/approve", adminHandler.ApproveSwitch)
				r.Post("/{requestId}/reject", adminHandler.RejectSwitch)
			})

			// Emergency device activation
			r.Post("/devices/emergency-activate", adminHandler.EmergencyActivate)

			// Audit log and attendance read views
			r.Get("/activity", adminHandler.ListActivity)
			r.Get("/sessions/{sessionId}/attendance", attendanceHandler.ListSessionAttendance)

			// Feature flags management
			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
