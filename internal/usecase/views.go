package usecase

import (
	"time"

	"bookmarket/internal/domain/entity"
	"bookmarket/pkg/errors"
)

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomListItem is one row of a user's room list.
type RoomListItem struct {
	RoomID           string             `json:"room_id"`
	OtherParticipant Participant        `json:"other_participant"`
	Subject          *entity.SubjectRef `json:"subject,omitempty"`
	LastMessage      string             `json:"last_message"`
	LastMessageTime  time.Time          `json:"last_message_time"`
	UnreadCount      int                `json:"unread_count"`
}

type MessageItem struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoomHeader is the metadata shown above an open room.
type RoomHeader struct {
	RoomID           string             `json:"room_id"`
	OtherParticipant Participant        `json:"other_participant"`
	Subject          *entity.SubjectRef `json:"subject,omitempty"`
	UnreadCount      int                `json:"unread_count"`
}

// Notice is a user-facing message raised by the session, usually for a failed store call.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Renderer receives everything a session wants to show. Calls for one session are serialized;
// implementations must not call back into the session.
type Renderer interface {
	RenderRoomList(items []RoomListItem)
	RenderRoom(header RoomHeader)
	RenderMessages(roomID string, items []MessageItem)
	Notify(notice Notice)
	ReturnToRoomList()
}

func otherParticipant(room *entity.ChatRoom, viewerID string) Participant {
	id := room.OtherParticipant(viewerID)
	name := room.ParticipantName(id)
	if name == "" {
		name = id
	}
	return Participant{ID: id, Name: name}
}

func NewRoomListItem(room *entity.ChatRoom, viewerID string) RoomListItem {
	return RoomListItem{
		RoomID:           room.ID,
		OtherParticipant: otherParticipant(room, viewerID),
		Subject:          room.Subject,
		LastMessage:      room.LastMessage,
		LastMessageTime:  room.LastMessageTime,
		UnreadCount:      room.UnreadFor(viewerID),
	}
}

// NewRoomListItems keeps the order of rooms.
func NewRoomListItems(rooms []*entity.ChatRoom, viewerID string) []RoomListItem {
	items := make([]RoomListItem, 0, len(rooms))
	for _, room := range rooms {
		items = append(items, NewRoomListItem(room, viewerID))
	}
	return items
}

func NewRoomHeader(room *entity.ChatRoom, viewerID string) RoomHeader {
	return RoomHeader{
		RoomID:           room.ID,
		OtherParticipant: otherParticipant(room, viewerID),
		Subject:          room.Subject,
		UnreadCount:      room.UnreadFor(viewerID),
	}
}

func NewMessageItems(messages []*entity.Message) []MessageItem {
	items := make([]MessageItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, MessageItem{
			ID:         m.ID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Text:       m.Text,
			CreatedAt:  m.CreatedAt,
		})
	}
	return items
}

// NoticeFromError maps an error to what the user sees. Store details never leak into the message.
func NoticeFromError(err error, action string) Notice {
	switch errors.CodeOf(err) {
	case errors.CodeNotFound:
		return Notice{Code: errors.CodeNotFound, Message: "Chat not found"}
	case errors.CodeValidation, errors.CodeForbidden, errors.CodeBadRequest, errors.CodeTooManyRequests:
		if appErr, ok := errors.AsAppError(err); ok {
			return Notice{Code: appErr.Code, Message: appErr.Message}
		}
	}
	return Notice{Code: errors.CodePersistence, Message: "Failed to " + action + ". Please try again"}
}
