package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/dto"
	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/service"
)

type stubNoticeService struct {
	created   []dto.NoticeCreateRequest
	actor     models.Identity
	lastLimit int
	err       error
}

func (s *stubNoticeService) Create(_ context.Context, actor models.Identity, req dto.NoticeCreateRequest) (dto.NoticeResponse, error) {
	if s.err != nil {
		return dto.NoticeResponse{}, s.err
	}
	s.actor = actor
	s.created = append(s.created, req)
	return dto.NoticeResponse{ID: uint(len(s.created)), Title: req.Title, Message: req.Message, CreatedBy: actor.UserID, CreatedAt: time.Now().UTC()}, nil
}

func (s *stubNoticeService) ListActive(_ context.Context, limit int) ([]dto.NoticeResponse, error) {
	s.lastLimit = limit
	return []dto.NoticeResponse{{ID: 1, Message: "50% off"}}, nil
}

func noticeApp(svc service.NoticeService, identity models.Identity) *fiber.App {
	app := fiber.New()
	h := handler.NewNoticeHandler(svc, zerolog.Nop())
	h.Register(app.Group("/api/v1/notices"))
	h.RegisterAdmin(app.Group("/api/v1/admin/notices", func(c *fiber.Ctx) error {
		if !identity.IsZero() {
			c.Locals("identity", identity)
		}
		return c.Next()
	}))
	return app
}

func postNotice(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/notices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestNoticeHandlerCreate(t *testing.T) {
	svc := &stubNoticeService{}
	app := noticeApp(svc, models.Identity{UserID: "admin-1", Role: models.RoleAdmin})

	resp := postNotice(t, app, `{"title":"Sale","message":"50% off"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Len(t, svc.created, 1)
	require.Equal(t, "admin-1", svc.actor.UserID)

	var body struct {
		Success bool               `json:"success"`
		Data    dto.NoticeResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)
	require.Equal(t, "Sale", body.Data.Title)
}

func TestNoticeHandlerCreateErrors(t *testing.T) {
	resp := postNotice(t, noticeApp(&stubNoticeService{}, models.Identity{}), `{"message":"hi"}`)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	admin := models.Identity{UserID: "admin-1", Role: models.RoleAdmin}

	resp = postNotice(t, noticeApp(&stubNoticeService{}, admin), `{"message":`)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postNotice(t, noticeApp(&stubNoticeService{err: service.ErrNoticeInvalidPayload}, admin), `{"message":""}`)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postNotice(t, noticeApp(&stubNoticeService{err: service.ErrNoticeForbidden}, admin), `{"message":"hi"}`)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestNoticeHandlerList(t *testing.T) {
	svc := &stubNoticeService{}
	app := noticeApp(svc, models.Identity{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/notices?limit=10", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 10, svc.lastLimit)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/notices?limit=many", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
