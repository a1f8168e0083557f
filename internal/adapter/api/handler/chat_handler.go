package handler

import (
	"github.com/labstack/echo/v4"

	"bookmarket/internal/adapter/api/middleware"
	"bookmarket/internal/usecase"
	"bookmarket/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createChatRequest struct {
	OtherUserID string `json:"other_user_id" validate:"required"`
	BookID      string `json:"book_id"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// CreateChat opens the room shared with another user, creating it on first contact.
func (h *ChatHandler) CreateChat(c echo.Context) error {
	var req createChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	room, err := h.chatUseCase.OpenOrCreateRoom(c.Request().Context(), middleware.UserID(c), usecase.OpenRoomInput{
		OtherUserID: req.OtherUserID,
		BookID:      req.BookID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, room)
}

// GetUserChats returns the room list of the authenticated user, most recent first.
func (h *ChatHandler) GetUserChats(c echo.Context) error {
	items, err := h.chatUseCase.ListRooms(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, items)
}

func (h *ChatHandler) GetChatByID(c echo.Context) error {
	room, err := h.chatUseCase.GetRoom(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, room)
}

func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	items, err := h.chatUseCase.ListMessages(c.Request().Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, items)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	msg, err := h.chatUseCase.SendMessage(c.Request().Context(), middleware.UserID(c), c.Param("id"), req.Text)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}

func (h *ChatHandler) MarkChatAsRead(c echo.Context) error {
	if err := h.chatUseCase.MarkRead(c.Request().Context(), middleware.UserID(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]string{"status": "read"})
}
