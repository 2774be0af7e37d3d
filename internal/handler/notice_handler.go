package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/internal/utils"
)

// NoticeHandler manages notice endpoints.
type NoticeHandler struct {
	service service.NoticeService
	logger  zerolog.Logger
}

// NewNoticeHandler creates a notice handler instance.
func NewNoticeHandler(service service.NoticeService, logger zerolog.Logger) *NoticeHandler {
	return &NoticeHandler{
		service: service,
		logger:  logger.With().Str("component", "notice_handler").Logger(),
	}
}

// Register binds the public notice listing.
func (h *NoticeHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
}

// RegisterAdmin binds notice creation. Guards run before the handler.
func (h *NoticeHandler) RegisterAdmin(router fiber.Router, guards ...fiber.Handler) {
	handlers := append([]fiber.Handler{}, guards...)
	handlers = append(handlers, h.create)
	router.Post("/", handlers...)
}

func (h *NoticeHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	notices, err := h.service.ListActive(requestContext(c), limit)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list notices")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list notices")
	}

	return utils.SendSuccess(c, "notices", notices)
}

func (h *NoticeHandler) create(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFromCtx(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var payload dto.NoticeCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	notice, err := h.service.Create(requestContext(c), identity, payload)
	if err != nil {
		status := statusForError(err)
		logger := requestLogger(h.logger, c)
		if status >= fiber.StatusInternalServerError {
			logger.Error().Err(err).Msg("failed to create notice")
		} else {
			logger.Warn().Err(err).Str("user_id", identity.UserID).Msg("notice rejected")
		}
		return utils.SendError(c, status, errorMessage(status, err))
	}

	requestLogger(h.logger, c).Info().Uint("notice_id", notice.ID).Str("user_id", identity.UserID).Msg("notice created")
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "notice created", notice)
}
