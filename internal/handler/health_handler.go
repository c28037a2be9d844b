package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exec/internal/config"
	"github.com/noah-isme/gema-exec/internal/engine"
	"github.com/noah-isme/gema-exec/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Runner      string    `json:"runner"`
}

// HealthCheck returns a handler that probes the execution backend.
func HealthCheck(cfg config.Config, provider engine.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Runner:      cfg.RunnerBackend,
		}

		if err := provider.HealthCheck(c.Context()); err != nil {
			payload.Status = "degraded"
			return utils.SendSuccessWithStatus(c, fiber.StatusServiceUnavailable, err.Error(), payload)
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
