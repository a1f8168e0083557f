package router

import (
	"github.com/labstack/echo/v4"

	"bookmarket/internal/adapter/api/handler"
	"bookmarket/internal/adapter/api/middleware"
	"bookmarket/internal/infrastructure/ratelimit"
)

// SetupChatRouter sets up all chat-related routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)
	if limiter != nil {
		chatGroup.Use(middleware.RateLimit(limiter, ratelimit.ActionAPI))
	}

	chatGroup.POST("", chatHandler.CreateChat)             // POST /v1/chats - open or create a room
	chatGroup.GET("", chatHandler.GetUserChats)            // GET /v1/chats - room list
	chatGroup.GET("/:id", chatHandler.GetChatByID)         // GET /v1/chats/:id
	chatGroup.PUT("/:id/read", chatHandler.MarkChatAsRead) // PUT /v1/chats/:id/read

	chatGroup.POST("/:id/messages", chatHandler.SendMessage)
	chatGroup.GET("/:id/messages", chatHandler.GetChatMessages)
}
