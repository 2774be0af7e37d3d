package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/internal/utils"
)

// RealtimeHandler authenticates websocket handshakes and hands connections to the gateway.
type RealtimeHandler struct {
	gateway  service.GatewayService
	verifier *middleware.TokenVerifier
	logger   zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(gateway service.GatewayService, verifier *middleware.TokenVerifier, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		gateway:  gateway,
		verifier: verifier,
		logger:   logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket endpoint. Guards run after authentication and before the upgrade.
func (h *RealtimeHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Use("/ws", h.handshake)

	handlers := append([]fiber.Handler{}, guards...)
	handlers = append(handlers, websocket.New(h.handleConnection))
	router.Get("/ws", handlers...)
}

func (h *RealtimeHandler) handshake(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	identity, err := h.verifier.Verify(middleware.BearerToken(c))
	if err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Str("ip", c.IP()).Msg("realtime handshake rejected")
		return utils.SendError(c, fiber.StatusUnauthorized, "invalid or missing token")
	}

	c.Locals("realtime_identity", identity)
	c.Locals("user_id", identity.UserID)
	c.Locals("user_role", string(identity.Role))
	// The fasthttp request context is recycled after the upgrade, so only the correlation id is carried over.
	c.Locals("request_ctx", middleware.ContextWithCorrelation(context.Background(), middleware.GetCorrelationID(c)))
	return c.Next()
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	identity, _ := conn.Locals("realtime_identity").(models.Identity)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.GatewayConnectionOptions{
		Identity:      identity,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	if err := h.gateway.ServeConnection(conn, opts); err != nil {
		h.logger.Warn().Err(err).Str("user_id", identity.UserID).Msg("realtime connection refused")
	}
}
