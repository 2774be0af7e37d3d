package middleware_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/middleware"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})
	return app
}

func TestCorrelationIDSources(t *testing.T) {
	app := correlationApp()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-header")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "corr-header", resp.Header.Get("X-Correlation-ID"))

	resp, err = app.Test(httptest.NewRequest("GET", "/?correlation_id=corr-query", nil))
	require.NoError(t, err)
	require.Equal(t, "corr-query", resp.Header.Get("X-Correlation-ID"))

	resp, err = app.Test(httptest.NewRequest("GET", "/?correlation_id="+strings.Repeat("x", 200), nil))
	require.NoError(t, err)
	generated := resp.Header.Get("X-Correlation-ID")
	require.Len(t, generated, 36)
}
