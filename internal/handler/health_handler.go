package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/realtime"
	"github.com/noah-isme/storefront-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	ChatStore   string    `json:"chat_store"`
	Connections int       `json:"connections"`
}

// HealthCheck returns a handler that reports application health and live connection count.
// registry may be nil.
func HealthCheck(cfg config.Config, registry *realtime.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			ChatStore:   cfg.ChatStore,
		}
		if registry != nil {
			payload.Connections = registry.Count()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
