package router

import (
	"github.com/labstack/echo/v4"

	"bookmarket/internal/adapter/api/handler"
	"bookmarket/internal/adapter/api/middleware"
	"bookmarket/internal/infrastructure/metrics"
	"bookmarket/internal/infrastructure/ratelimit"
)

type Handlers struct {
	Chat      *handler.ChatHandler
	WebSocket *handler.WebSocketHandler
	Health    *handler.HealthHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter, m *metrics.Metrics) {
	SetupHealthRouter(e, h.Health, m)
	SetupChatRouter(e, h.Chat, authMiddleware, limiter)
	SetupWebSocketRouter(e, h.WebSocket, authMiddleware)
}
