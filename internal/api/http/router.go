package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tokens         *handlers.TokensHandler
	Queue          *handlers.QueueHandler
	Counters       *handlers.CountersHandler
	AuthMiddleware *auth.Middleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	citizen := app.Group("/tokens", cfg.AuthMiddleware.Handle, auth.RequireCitizen())
	citizen.Post("/", cfg.Tokens.RequestToken)
	citizen.Get("/", cfg.Tokens.ListTokens)
	citizen.Get("/:id", cfg.Tokens.GetToken)
	citizen.Post("/:id/cancel", cfg.Tokens.CancelToken)

	officer := app.Group("/queue", cfg.AuthMiddleware.Handle, auth.RequireOfficer())
	officer.Get("/", cfg.Queue.ListQueue)
	officer.Get("/stats", cfg.Queue.Stats)
	officer.Patch("/tokens/:id/status", cfg.Queue.UpdateStatus)
	officer.Post("/tokens/:id/remind", cfg.Queue.Remind)

	counters := app.Group("/counters", cfg.AuthMiddleware.Handle)
	counters.Get("/", auth.RequireOfficer(), cfg.Counters.ListCounters)
	counters.Post("/", auth.RequireAdmin(), cfg.Counters.CreateCounter)
	counters.Patch("/:id", auth.RequireAdmin(), cfg.Counters.UpdateCounter)
}
