package router

import (
	"github.com/labstack/echo/v4"

	"bookmarket/internal/adapter/api/handler"
	"bookmarket/internal/adapter/api/middleware"
)

// SetupWebSocketRouter sets up WebSocket routes. The token travels in the query string.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/ws", wsHandler.HandleWebSocket, authMiddleware.AuthenticateQuery)
}
