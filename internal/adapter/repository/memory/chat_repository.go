package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/domain/repository"
	"bookmarket/pkg/errors"
)

// ChatRepository is an in-process document store with push subscriptions. It backs the
// STORE_DRIVER=memory mode and the tests. Every feed re-delivers its full result set on a
// goroutine owned by the subscription, the way a snapshot listener does.
type ChatRepository struct {
	mu       sync.RWMutex
	rooms    map[string]*entity.ChatRoom
	messages map[string][]*entity.Message
	last     time.Time
	now      func() time.Time

	watchMu  sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

var _ repository.ChatRepository = (*ChatRepository)(nil)

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		rooms:    make(map[string]*entity.ChatRoom),
		messages: make(map[string][]*entity.Message),
		now:      time.Now,
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// WithClock replaces the time source used for server-assigned timestamps.
func (r *ChatRepository) WithClock(now func() time.Time) *ChatRepository {
	r.now = now
	return r
}

// timestamp must be called with r.mu held. Timestamps never go backwards within one store.
func (r *ChatRepository) timestamp() time.Time {
	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Nanosecond)
	}
	r.last = t
	return t
}

func (r *ChatRepository) AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) error {
	if err := ctx.Err(); err != nil {
		return errors.Persistence("Failed to send message", err)
	}

	r.mu.Lock()
	if _, ok := r.rooms[msg.RoomID]; !ok {
		r.mu.Unlock()
		return errors.NotFound("Chat room", nil)
	}
	msg.CreatedAt = r.timestamp()
	stored := *msg
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], &stored)
	r.mu.Unlock()
	r.notify(messagesKey(msg.RoomID))

	r.mu.Lock()
	room, ok := r.rooms[msg.RoomID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Chat room", nil)
	}
	room.LastMessage = msg.Text
	room.LastMessageTime = r.timestamp()
	if room.UnreadCount == nil {
		room.UnreadCount = make(map[string]int)
	}
	room.UnreadCount[recipientID]++
	out := room.Clone()
	r.mu.Unlock()
	r.notifyRoom(out)

	return nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, roomID string) ([]*entity.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("Failed to load messages", err)
	}
	return r.snapshotMessages(roomID), nil
}

func (r *ChatRepository) snapshotMessages(roomID string) []*entity.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Message, 0, len(r.messages[roomID]))
	for _, m := range r.messages[roomID] {
		c := *m
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *ChatRepository) SubscribeMessages(ctx context.Context, roomID string, listener repository.MessagesListener) repository.Unsubscribe {
	return r.watch(ctx, messagesKey(roomID), func() bool {
		listener(r.snapshotMessages(roomID), nil)
		return true
	})
}

func (r *ChatRepository) MarkRead(ctx context.Context, roomID, userID string) error {
	return r.UpdateUnread(ctx, roomID, userID, 0)
}

func (r *ChatRepository) GetRoom(ctx context.Context, roomID string) (*entity.ChatRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("Failed to load chat", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, errors.NotFound("Chat room", nil)
	}
	return room.Clone(), nil
}

func (r *ChatRepository) CreateRoomIfAbsent(ctx context.Context, room *entity.ChatRoom) (*entity.ChatRoom, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errors.Persistence("Failed to create chat", err)
	}

	r.mu.Lock()
	if existing, ok := r.rooms[room.ID]; ok {
		r.mu.Unlock()
		return existing.Clone(), false, nil
	}
	stored := room.Clone()
	stored.CreatedAt = r.timestamp()
	stored.LastMessageTime = stored.CreatedAt
	r.rooms[room.ID] = stored
	out := stored.Clone()
	r.mu.Unlock()

	r.notifyRoom(out)
	return out, true, nil
}

func (r *ChatRepository) FindRoomByParticipants(ctx context.Context, userA, userB string) (*entity.ChatRoom, error) {
	rooms, err := r.ListRoomsForUser(ctx, userA)
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		if room.HasParticipant(userB) {
			return room, nil
		}
	}
	return nil, errors.NotFound("Chat room", nil)
}

func (r *ChatRepository) ListRoomsForUser(ctx context.Context, userID string) ([]*entity.ChatRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Persistence("Failed to load chats", err)
	}
	return r.snapshotRooms(userID), nil
}

func (r *ChatRepository) snapshotRooms(userID string) []*entity.ChatRoom {
	r.mu.RLock()
	out := make([]*entity.ChatRoom, 0)
	for _, room := range r.rooms {
		if room.HasParticipant(userID) {
			out = append(out, room.Clone())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

func (r *ChatRepository) UpdateUnread(ctx context.Context, roomID, userID string, value int) error {
	if err := ctx.Err(); err != nil {
		return errors.Persistence("Failed to update chat", err)
	}
	if value < 0 {
		value = 0
	}

	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("Chat room", nil)
	}
	if room.UnreadCount == nil {
		room.UnreadCount = make(map[string]int)
	}
	room.UnreadCount[userID] = value
	out := room.Clone()
	r.mu.Unlock()

	r.notifyRoom(out)
	return nil
}

func (r *ChatRepository) SubscribeRoomsForUser(ctx context.Context, userID string, listener repository.RoomsListener) repository.Unsubscribe {
	return r.watch(ctx, userKey(userID), func() bool {
		listener(r.snapshotRooms(userID), nil)
		return true
	})
}

func (r *ChatRepository) SubscribeRoom(ctx context.Context, roomID string, listener repository.RoomListener) repository.Unsubscribe {
	return r.watch(ctx, roomKey(roomID), func() bool {
		room, err := r.GetRoom(context.Background(), roomID)
		listener(room, err)
		return err == nil
	})
}

func (r *ChatRepository) notifyRoom(room *entity.ChatRoom) {
	keys := []string{roomKey(room.ID)}
	for _, p := range participantsOf(room) {
		keys = append(keys, userKey(p))
	}
	r.notify(keys...)
}

func participantsOf(room *entity.ChatRoom) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range append([]string{room.SellerID, room.BuyerID}, room.Participants...) {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func messagesKey(roomID string) string { return "messages/" + roomID }
func roomKey(roomID string) string     { return "room/" + roomID }
func userKey(userID string) string     { return "user/" + userID }
