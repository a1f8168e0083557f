package usecase

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/domain/repository"
	"bookmarket/internal/domain/service"
	"bookmarket/internal/infrastructure/metrics"
	"bookmarket/internal/infrastructure/ratelimit"
	"bookmarket/pkg/errors"
	"bookmarket/pkg/logger"
)

const maxMessageLength = 2000

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	users       repository.UserDirectory
	books       repository.BookCatalog
	rateLimiter *ratelimit.RateLimiter
	metrics     *metrics.Metrics
}

// NewChatUseCase wires the chat core. rateLimiter and m may be nil.
func NewChatUseCase(
	chatRepo repository.ChatRepository,
	users repository.UserDirectory,
	books repository.BookCatalog,
	rateLimiter *ratelimit.RateLimiter,
	m *metrics.Metrics,
) *ChatUseCase {
	return &ChatUseCase{
		chatRepo:    chatRepo,
		users:       users,
		books:       books,
		rateLimiter: rateLimiter,
		metrics:     m,
	}
}

type OpenRoomInput struct {
	OtherUserID string
	BookID      string
}

// ResolveRoom returns the id of the single room shared by userA and userB, creating it if needed.
// userA is recorded as the buyer and userB as the seller. The subject is only stored when the
// room is created.
func (uc *ChatUseCase) ResolveRoom(ctx context.Context, subject *entity.SubjectRef, userA, nameA, userB, nameB string) (string, error) {
	room, err := uc.resolveRoom(ctx, subject, userA, nameA, userB, nameB)
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

func (uc *ChatUseCase) resolveRoom(ctx context.Context, subject *entity.SubjectRef, userA, nameA, userB, nameB string) (*entity.ChatRoom, error) {
	if userA == "" || userB == "" {
		return nil, errors.Validation("Both participants are required")
	}
	if userA == userB {
		return nil, errors.BadRequest("You cannot create a chat with yourself", nil)
	}

	roomID := service.RoomKey(userA, userB)

	room, err := uc.chatRepo.GetRoom(ctx, roomID)
	if err == nil {
		uc.metrics.RoomResolved("existing")
		return room, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		uc.storeFailed("resolve_room", err)
		return nil, err
	}

	// rooms created before keyed ids only exist under random ids
	room, err = uc.chatRepo.FindRoomByParticipants(ctx, userA, userB)
	if err == nil {
		logger.Debug("ResolveRoom: using legacy room %s for %s and %s", room.ID, userA, userB)
		uc.metrics.RoomResolved("legacy")
		return room, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		uc.storeFailed("resolve_room", err)
		return nil, err
	}

	room, created, err := uc.chatRepo.CreateRoomIfAbsent(ctx, &entity.ChatRoom{
		ID:           roomID,
		Participants: []string{userB, userA},
		SellerID:     userB,
		BuyerID:      userA,
		SellerName:   nameB,
		BuyerName:    nameA,
		Subject:      subject,
		LastMessage:  "",
		UnreadCount:  map[string]int{userA: 0, userB: 0},
	})
	if err != nil {
		uc.storeFailed("create_room", err)
		return nil, err
	}
	if created {
		logger.Info("ResolveRoom: created room %s for %s and %s", room.ID, userA, userB)
		uc.metrics.RoomResolved("created")
	} else {
		uc.metrics.RoomResolved("existing")
	}
	return room, nil
}

// OpenOrCreateRoom starts or resumes the conversation between userID and input.OtherUserID,
// optionally about a book.
func (uc *ChatUseCase) OpenOrCreateRoom(ctx context.Context, userID string, input OpenRoomInput) (*entity.ChatRoom, error) {
	if err := uc.allow(userID, ratelimit.ActionCreateRoom, "Rate limit exceeded. Please wait before starting another chat"); err != nil {
		return nil, err
	}
	if input.OtherUserID == "" {
		return nil, errors.Validation("Other user is required")
	}
	if input.OtherUserID == userID {
		return nil, errors.BadRequest("You cannot create a chat with yourself", nil)
	}

	otherName, err := uc.displayName(ctx, input.OtherUserID)
	if err != nil {
		return nil, err
	}
	selfName, err := uc.displayName(ctx, userID)
	if err != nil {
		selfName = userID
	}

	var subject *entity.SubjectRef
	if input.BookID != "" {
		subject, err = uc.subject(ctx, input.BookID)
		if err != nil {
			return nil, err
		}
	}

	return uc.resolveRoom(ctx, subject, userID, selfName, input.OtherUserID, otherName)
}

// displayName returns NotFound for unknown users and falls back to the id when the directory fails.
func (uc *ChatUseCase) displayName(ctx context.Context, userID string) (string, error) {
	if uc.users == nil {
		return userID, nil
	}
	profile, err := uc.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return "", errors.NotFound("User", err)
		}
		logger.Warn("displayName: profile lookup for %s failed: %v", userID, err)
		return userID, nil
	}
	return profile.DisplayName(), nil
}

func (uc *ChatUseCase) subject(ctx context.Context, bookID string) (*entity.SubjectRef, error) {
	if uc.books == nil {
		return &entity.SubjectRef{ID: bookID}, nil
	}
	book, err := uc.books.GetBookSummary(ctx, bookID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, errors.NotFound("Book", err)
		}
		logger.Warn("subject: book lookup for %s failed: %v", bookID, err)
		return &entity.SubjectRef{ID: bookID}, nil
	}
	ref := book.SubjectRef()
	ref.ID = bookID
	return ref, nil
}

// SendMessage appends text to roomID on behalf of userID.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID, roomID, text string) (*entity.Message, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}
	if err := uc.allow(userID, ratelimit.ActionSendMessage, "Rate limit exceeded. Please wait before sending another message"); err != nil {
		return nil, err
	}

	room, err := uc.participantRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	return uc.appendTo(ctx, room, userID, text)
}

// sendInRoom is SendMessage for a caller that already holds the room and checked membership.
func (uc *ChatUseCase) sendInRoom(ctx context.Context, room *entity.ChatRoom, userID, text string) (*entity.Message, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}
	if err := uc.allow(userID, ratelimit.ActionSendMessage, "Rate limit exceeded. Please wait before sending another message"); err != nil {
		return nil, err
	}
	return uc.appendTo(ctx, room, userID, text)
}

func normalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.Validation("Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return "", errors.Validation("Message is too long")
	}
	return text, nil
}

func (uc *ChatUseCase) appendTo(ctx context.Context, room *entity.ChatRoom, userID, text string) (*entity.Message, error) {
	senderName := room.ParticipantName(userID)
	if senderName == "" {
		senderName, _ = uc.displayName(ctx, userID)
		if senderName == "" {
			senderName = userID
		}
	}

	msg := &entity.Message{
		ID:         uuid.New().String(),
		RoomID:     room.ID,
		SenderID:   userID,
		SenderName: senderName,
		Text:       text,
	}
	if err := uc.chatRepo.AppendMessage(ctx, msg, room.OtherParticipant(userID)); err != nil {
		logger.Error("SendMessage: append to room %s by %s failed: %v", room.ID, userID, err)
		uc.storeFailed("append_message", err)
		return nil, err
	}
	uc.metrics.MessageSent()
	return msg, nil
}

// MarkRead clears userID's unread counter in roomID.
func (uc *ChatUseCase) MarkRead(ctx context.Context, userID, roomID string) error {
	if _, err := uc.participantRoom(ctx, userID, roomID); err != nil {
		return err
	}
	return uc.markRead(ctx, userID, roomID)
}

func (uc *ChatUseCase) markRead(ctx context.Context, userID, roomID string) error {
	if err := uc.chatRepo.MarkRead(ctx, roomID, userID); err != nil {
		uc.storeFailed("mark_read", err)
		return err
	}
	return nil
}

// GetRoom returns roomID if userID participates in it.
func (uc *ChatUseCase) GetRoom(ctx context.Context, userID, roomID string) (*entity.ChatRoom, error) {
	return uc.participantRoom(ctx, userID, roomID)
}

func (uc *ChatUseCase) participantRoom(ctx context.Context, userID, roomID string) (*entity.ChatRoom, error) {
	room, err := uc.chatRepo.GetRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, errors.CodeNotFound) {
			uc.storeFailed("get_room", err)
		}
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant in this chat", nil)
	}
	return room, nil
}

func (uc *ChatUseCase) ListRooms(ctx context.Context, userID string) ([]RoomListItem, error) {
	rooms, err := uc.chatRepo.ListRoomsForUser(ctx, userID)
	if err != nil {
		uc.storeFailed("list_rooms", err)
		return nil, err
	}
	return NewRoomListItems(rooms, userID), nil
}

func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, roomID string) ([]MessageItem, error) {
	if _, err := uc.participantRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	messages, err := uc.chatRepo.ListMessages(ctx, roomID)
	if err != nil {
		uc.storeFailed("list_messages", err)
		return nil, err
	}
	return NewMessageItems(messages), nil
}

func (uc *ChatUseCase) allow(userID, action, message string) error {
	if uc.rateLimiter == nil {
		return nil
	}
	allowed, wait := uc.rateLimiter.Allow(userID, action)
	if !allowed {
		logger.Warn("%s rate limited: user %s must wait %v", action, userID, wait)
		uc.metrics.Limited(action)
		return errors.TooManyRequests(message)
	}
	return nil
}

func (uc *ChatUseCase) storeFailed(operation string, err error) {
	if errors.Is(err, errors.CodePersistence) {
		uc.metrics.StoreError(operation)
	}
}
