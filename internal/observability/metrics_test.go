package observability_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/observability"
)

func TestMetricsHandlerExposesRealtimeCollectors(t *testing.T) {
	observability.RealtimeConnections().WithLabelValues("user").Inc()
	defer observability.RealtimeConnections().WithLabelValues("user").Dec()
	observability.RealtimeEvents().WithLabelValues("user_message", "ok").Inc()
	observability.NoticesPublished().Inc()

	app := fiber.New()
	app.Get("/metrics", observability.MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `realtime_connections{role="user"}`)
	require.Contains(t, string(body), `realtime_events_total{event="user_message",outcome="ok"}`)
	require.Contains(t, string(body), "notices_published_total")
}
