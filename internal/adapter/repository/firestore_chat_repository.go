package repository

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/domain/repository"
	"bookmarket/pkg/errors"
	"bookmarket/pkg/logger"
)

const (
	roomsCollection    = "chatRooms"
	messagesCollection = "messages"
)

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) rooms() *firestore.CollectionRef {
	return r.client.Collection(roomsCollection)
}

func (r *firestoreChatRepository) messages(roomID string) *firestore.CollectionRef {
	return r.rooms().Doc(roomID).Collection(messagesCollection)
}

func (r *firestoreChatRepository) AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) error {
	// CreatedAt is left zero so the serverTimestamp tag assigns it.
	wr, err := r.messages(msg.RoomID).Doc(msg.ID).Create(ctx, msg)
	if err != nil {
		return classify(err, "Message", "Failed to send message")
	}
	msg.CreatedAt = wr.UpdateTime

	_, err = r.rooms().Doc(msg.RoomID).Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: msg.Text},
		{Path: "lastMessageTime", Value: firestore.ServerTimestamp},
		{FieldPath: firestore.FieldPath{"unreadCount", recipientID}, Value: firestore.Increment(1)},
	})
	if err != nil {
		logger.Error("AppendMessage: message %s stored but room %s preview update failed: %v", msg.ID, msg.RoomID, err)
		return classify(err, "Chat room", "Failed to send message")
	}

	return nil
}

func (r *firestoreChatRepository) messagesQuery(roomID string) firestore.Query {
	return r.messages(roomID).OrderBy("createdAt", firestore.Asc)
}

func (r *firestoreChatRepository) ListMessages(ctx context.Context, roomID string) ([]*entity.Message, error) {
	docs, err := r.messagesQuery(roomID).Documents(ctx).GetAll()
	if err != nil {
		return nil, classify(err, "Messages", "Failed to load messages")
	}
	return decodeMessages(docs)
}

func decodeMessages(docs []*firestore.DocumentSnapshot) ([]*entity.Message, error) {
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, errors.Persistence("Failed to parse message data", err)
		}
		if message.ID == "" {
			message.ID = doc.Ref.ID
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

func (r *firestoreChatRepository) SubscribeMessages(ctx context.Context, roomID string, listener repository.MessagesListener) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := r.messagesQuery(roomID).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if !feedStopped(ctx, err) {
					listener(nil, classify(err, "Messages", "Failed to load messages"))
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err == nil {
				var messages []*entity.Message
				messages, err = decodeMessages(docs)
				if err == nil {
					listener(messages, nil)
					continue
				}
			}
			if !feedStopped(ctx, err) {
				listener(nil, classify(err, "Messages", "Failed to load messages"))
			}
			return
		}
	}()

	return unsubscribeOnce(cancel)
}

func (r *firestoreChatRepository) MarkRead(ctx context.Context, roomID, userID string) error {
	return r.UpdateUnread(ctx, roomID, userID, 0)
}

func (r *firestoreChatRepository) GetRoom(ctx context.Context, roomID string) (*entity.ChatRoom, error) {
	doc, err := r.rooms().Doc(roomID).Get(ctx)
	if err != nil {
		return nil, classify(err, "Chat room", "Failed to load chat")
	}
	return decodeRoom(doc)
}

func decodeRoom(doc *firestore.DocumentSnapshot) (*entity.ChatRoom, error) {
	var room entity.ChatRoom
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Persistence("Failed to parse chat data", err)
	}
	room.ID = doc.Ref.ID
	if room.UnreadCount == nil {
		room.UnreadCount = make(map[string]int)
	}
	return &room, nil
}

// CreateRoomIfAbsent relies on Create failing with AlreadyExists, so two resolvers racing on the
// same canonical id end up reading the single stored room.
func (r *firestoreChatRepository) CreateRoomIfAbsent(ctx context.Context, room *entity.ChatRoom) (*entity.ChatRoom, bool, error) {
	ref := r.rooms().Doc(room.ID)
	wr, err := ref.Create(ctx, room)
	if err == nil {
		created := room.Clone()
		created.CreatedAt = wr.UpdateTime
		created.LastMessageTime = wr.UpdateTime
		return created, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, false, classify(err, "Chat room", "Failed to create chat")
	}

	existing, err := r.GetRoom(ctx, room.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *firestoreChatRepository) FindRoomByParticipants(ctx context.Context, userA, userB string) (*entity.ChatRoom, error) {
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

func (r *firestoreChatRepository) roomsQuery(userID string) firestore.Query {
	return r.rooms().Where("participants", "array-contains", userID)
}

func (r *firestoreChatRepository) ListRoomsForUser(ctx context.Context, userID string) ([]*entity.ChatRoom, error) {
	docs, err := r.roomsQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, classify(err, "Chat rooms", "Failed to load chats")
	}
	return decodeRooms(userID, docs), nil
}

// decodeRooms sorts in memory so the array-contains query needs no composite index.
func decodeRooms(userID string, docs []*firestore.DocumentSnapshot) []*entity.ChatRoom {
	rooms := make([]*entity.ChatRoom, 0, len(docs))
	for _, doc := range docs {
		room, err := decodeRoom(doc)
		if err != nil {
			logger.Warn("Skipping malformed chat room %s for user %s: %v", doc.Ref.ID, userID, err)
			continue
		}
		rooms = append(rooms, room)
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].LastMessageTime.After(rooms[j].LastMessageTime)
	})
	return rooms
}

func (r *firestoreChatRepository) UpdateUnread(ctx context.Context, roomID, userID string, value int) error {
	if value < 0 {
		value = 0
	}
	_, err := r.rooms().Doc(roomID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCount", userID}, Value: value},
	})
	if err != nil {
		return classify(err, "Chat room", "Failed to update chat")
	}
	return nil
}

func (r *firestoreChatRepository) SubscribeRoomsForUser(ctx context.Context, userID string, listener repository.RoomsListener) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := r.roomsQuery(userID).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err == nil {
				var docs []*firestore.DocumentSnapshot
				docs, err = snap.Documents.GetAll()
				if err == nil {
					listener(decodeRooms(userID, docs), nil)
					continue
				}
			}
			if !feedStopped(ctx, err) {
				listener(nil, classify(err, "Chat rooms", "Failed to load chats"))
			}
			return
		}
	}()

	return unsubscribeOnce(cancel)
}

func (r *firestoreChatRepository) SubscribeRoom(ctx context.Context, roomID string, listener repository.RoomListener) repository.Unsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := r.rooms().Doc(roomID).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if !feedStopped(ctx, err) {
					listener(nil, classify(err, "Chat room", "Failed to load chat"))
				}
				return
			}
			if !snap.Exists() {
				listener(nil, errors.NotFound("Chat room", nil))
				return
			}
			room, err := decodeRoom(snap)
			if err != nil {
				listener(nil, err)
				return
			}
			listener(room, nil)
		}
	}()

	return unsubscribeOnce(cancel)
}

// feedStopped distinguishes a deliberate unsubscribe from a broken listener.
func feedStopped(ctx context.Context, err error) bool {
	if ctx.Err() != nil || err == iterator.Done {
		return true
	}
	return status.Code(err) == codes.Canceled
}

func unsubscribeOnce(cancel context.CancelFunc) repository.Unsubscribe {
	var once sync.Once
	return func() { once.Do(cancel) }
}

// classify maps Firestore status codes onto the application taxonomy: a missing document is
// NOT_FOUND, everything else is a persistence failure shown to the user as a generic notice.
func classify(err error, resource, message string) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return errors.NotFound(resource, err)
	}
	return errors.Persistence(message, err)
}
