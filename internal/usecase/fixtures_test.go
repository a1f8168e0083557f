package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bookmarket/internal/adapter/repository/memory"
	"bookmarket/internal/domain/entity"
	"bookmarket/internal/domain/repository"
	"bookmarket/internal/infrastructure/metrics"
	"bookmarket/pkg/errors"
)

type fakeUsers map[string]string

func (f fakeUsers) GetProfile(ctx context.Context, userID string) (*entity.UserProfile, error) {
	name, ok := f[userID]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return &entity.UserProfile{ID: userID, Username: name}, nil
}

type fakeBooks map[string]entity.BookSummary

func (f fakeBooks) GetBookSummary(ctx context.Context, bookID string) (*entity.BookSummary, error) {
	book, ok := f[bookID]
	if !ok {
		return nil, errors.NotFound("Book", nil)
	}
	book.ID = bookID
	return &book, nil
}

// countingRepo records appends and can be told to reject them.
type countingRepo struct {
	repository.ChatRepository

	mu         sync.Mutex
	appends    int
	failAppend error
}

func (r *countingRepo) AppendMessage(ctx context.Context, msg *entity.Message, recipientID string) error {
	r.mu.Lock()
	r.appends++
	failure := r.failAppend
	r.mu.Unlock()
	if failure != nil {
		return failure
	}
	return r.ChatRepository.AppendMessage(ctx, msg, recipientID)
}

func (r *countingRepo) appendCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appends
}

type fixture struct {
	store   *memory.ChatRepository
	repo    *countingRepo
	metrics *metrics.Metrics
	uc      *ChatUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewChatRepository()
	repo := &countingRepo{ChatRepository: store}
	m := metrics.New()
	users := fakeUsers{"u1": "alice", "u2": "bob", "u3": "carol"}
	books := fakeBooks{"b1": {Title: "Dune", ThumbnailURL: "https://img/dune.jpg"}}
	return &fixture{
		store:   store,
		repo:    repo,
		metrics: m,
		uc:      NewChatUseCase(repo, users, books, nil, m),
	}
}

func (f *fixture) resolve(t *testing.T, buyer, seller string) string {
	t.Helper()
	room, err := f.uc.OpenOrCreateRoom(context.Background(), buyer, OpenRoomInput{OtherUserID: seller, BookID: "b1"})
	require.NoError(t, err)
	return room.ID
}

func (f *fixture) room(t *testing.T, roomID string) *entity.ChatRoom {
	t.Helper()
	room, err := f.store.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	return room
}

// unread is safe to call from Eventually conditions.
func (f *fixture) unread(roomID, userID string) int {
	room, err := f.store.GetRoom(context.Background(), roomID)
	if err != nil {
		return -1
	}
	return room.UnreadFor(userID)
}

type recordingRenderer struct {
	mu       sync.Mutex
	lists    [][]RoomListItem
	headers  []RoomHeader
	messages [][]MessageItem
	notices  []Notice
	returns  int
}

func (r *recordingRenderer) RenderRoomList(items []RoomListItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, items)
}

func (r *recordingRenderer) RenderRoom(header RoomHeader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, header)
}

func (r *recordingRenderer) RenderMessages(roomID string, items []MessageItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, items)
}

func (r *recordingRenderer) Notify(notice Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

func (r *recordingRenderer) ReturnToRoomList() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.returns++
}

func (r *recordingRenderer) renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lists) + len(r.headers) + len(r.messages) + len(r.notices) + r.returns
}

func (r *recordingRenderer) lastMessages() []MessageItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return nil
	}
	return r.messages[len(r.messages)-1]
}

func (r *recordingRenderer) lastList() []RoomListItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lists) == 0 {
		return nil
	}
	return r.lists[len(r.lists)-1]
}

func (r *recordingRenderer) lastNotice() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

func (r *recordingRenderer) returnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.returns
}
