package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/storefront-api/internal/config"
	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/observability"
	"github.com/noah-isme/storefront-api/internal/realtime"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RealtimeHandler *handler.RealtimeHandler
	ChatHandler     *handler.ChatHandler
	NoticeHandler   *handler.NoticeHandler
	Registry        *realtime.Registry
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Registry))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Realtime gateway authenticates during the handshake itself.
	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(api.Group("/realtime"), middleware.RateLimit("realtime_handshake", 20, time.Minute))
	}

	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(api.Group("/chat", jwtMiddleware))
	}
	if deps.NoticeHandler != nil {
		deps.NoticeHandler.Register(api.Group("/notices"))
	}

	admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole("admin"))
	if deps.ChatHandler != nil {
		deps.ChatHandler.RegisterAdmin(admin.Group("/chat"))
	}
	if deps.NoticeHandler != nil {
		deps.NoticeHandler.RegisterAdmin(admin.Group("/notices"), middleware.RateLimit("notice_create", 10, time.Minute))
	}
}
