// Package router wires the engine's HTTP routes.
package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exec/internal/config"
	"github.com/noah-isme/gema-exec/internal/engine"
	"github.com/noah-isme/gema-exec/internal/handler"
	"github.com/noah-isme/gema-exec/internal/middleware"
	"github.com/noah-isme/gema-exec/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Provider          engine.Provider
	EngineHandler     *handler.EngineHandler
	SubmissionHandler *handler.SubmissionHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/healthz", handler.HealthCheck(cfg, deps.Provider))
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})

	if deps.EngineHandler != nil {
		execute := api.Group("", middleware.BurstLimit("execute", 30, time.Second))
		deps.EngineHandler.Register(execute)
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", middleware.BurstLimit("submissions", 10, time.Second))
		deps.SubmissionHandler.Register(submissions)
	}
}
