// Package api provides the HTTP API for the Dinex license server.
package api

import (
	"github.com/DelfimCelestino/dinex/internal/api/handlers"
	"github.com/DelfimCelestino/dinex/internal/api/middleware"
	"github.com/DelfimCelestino/dinex/internal/config"
	"github.com/DelfimCelestino/dinex/internal/db"
	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/DelfimCelestino/dinex/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg config.ServerConfig,
	database *db.DB,
	manager *license.Manager,
	collector *metrics.Collector,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))

	rateLimiter, err := middleware.NewRateLimiter(int64(cfg.RateLimitRequests), cfg.RateLimitPeriod, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Health check endpoint (no auth required)
	healthHandler := handlers.NewHealthHandler(database, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	r.Engine.GET("/metrics", gin.WrapH(collector.Handler()))

	// License API. Validation and hardware lookups are public; issuing,
	// updating, deleting and listing require the admin token.
	admin := middleware.AdminAuth(cfg.AdminToken)
	licensesHandler := handlers.NewLicensesHandler(manager, database, collector, admin, logger)

	apiGroup := r.Engine.Group("/api")
	licensesHandler.RegisterRoutes(apiGroup)

	// Back-office reports are an add-on: the route only answers when the
	// validated license carries the reports feature flag.
	licensesHandler.RegisterReportRoutes(apiGroup, middleware.FeatureGate(manager, "reports", logger))

	return r, nil
}
