package repository

import (
	"context"

	"bookmarket/internal/domain/entity"
)

// Unsubscribe stops a live feed and releases its listener. Calling it more than once is a no-op.
type Unsubscribe func()

// MessagesListener receives the full ordered message set of a room on every change. A non-nil err
// ends the feed; no further calls follow it.
type MessagesListener func(messages []*entity.Message, err error)

// RoomsListener receives every room of a user, most recent activity first.
type RoomsListener func(rooms []*entity.ChatRoom, err error)

// RoomListener receives the current state of a single room.
type RoomListener func(room *entity.ChatRoom, err error)

type MessageStore interface {
	// AppendMessage persists msg and then bumps the room preview and the recipient's unread
	// counter. The two writes are not transactional.
	AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) error
	ListMessages(ctx context.Context, roomID string) ([]*entity.Message, error)
	SubscribeMessages(ctx context.Context, roomID string, listener MessagesListener) Unsubscribe
	MarkRead(ctx context.Context, roomID, userID string) error
}

type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID string) (*entity.ChatRoom, error)
	// CreateRoomIfAbsent stores room under room.ID unless a room with that id exists already. It
	// returns the surviving room and whether this call created it.
	CreateRoomIfAbsent(ctx context.Context, room *entity.ChatRoom) (*entity.ChatRoom, bool, error)
	// FindRoomByParticipants scans the rooms of userA for one that also lists userB.
	FindRoomByParticipants(ctx context.Context, userA, userB string) (*entity.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]*entity.ChatRoom, error)
	UpdateUnread(ctx context.Context, roomID, userID string, value int) error
	SubscribeRoomsForUser(ctx context.Context, userID string, listener RoomsListener) Unsubscribe
	SubscribeRoom(ctx context.Context, roomID string, listener RoomListener) Unsubscribe
}

type ChatRepository interface {
	MessageStore
	RoomDirectory
}
