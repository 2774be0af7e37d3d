package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/internal/utils"
)

// ChatHandler exposes chat history over REST so clients can rebuild state after reconnecting.
type ChatHandler struct {
	service service.ChatService
	logger  zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds shopper and admin readable chat routes.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Get("/thread", h.thread)
}

// RegisterAdmin binds admin-only chat routes.
func (h *ChatHandler) RegisterAdmin(router fiber.Router) {
	router.Get("/threads", h.recentThreads)
}

func (h *ChatHandler) thread(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFromCtx(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	before, err := parseQueryTime(c, "before")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.ChatThreadQuery{
		TargetUserID: c.Query("target_user_id"),
		Before:       before,
		Limit:        limit,
	}

	thread, err := h.service.Thread(requestContext(c), identity, query)
	if err != nil {
		status := statusForError(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to load chat thread")
		}
		return utils.SendError(c, status, errorMessage(status, err))
	}

	return utils.SendSuccess(c, "chat thread", thread)
}

func (h *ChatHandler) recentThreads(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFromCtx(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	threads, err := h.service.RecentThreads(requestContext(c), identity)
	if err != nil {
		status := statusForError(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to load recent threads")
		}
		return utils.SendError(c, status, errorMessage(status, err))
	}

	return utils.SendSuccess(c, "recent threads", threads)
}
