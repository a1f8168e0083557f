package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/usecase"
	"bookmarket/pkg/errors"
)

type fakeSession struct {
	mu      sync.Mutex
	calls   []string
	sendErr error
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) WatchRooms() { s.record("watch") }
func (s *fakeSession) OpenRoom(ctx context.Context, roomID string) error {
	s.record("open:" + roomID)
	return nil
}
func (s *fakeSession) CloseRoom() { s.record("close_room") }
func (s *fakeSession) Send(ctx context.Context, text string) (*entity.Message, error) {
	s.record("send:" + text)
	return nil, s.sendErr
}
func (s *fakeSession) Close() { s.record("close") }

func newTestClient(session Session) *Client {
	c := newClient("u1", nil)
	c.session = session
	return c
}

func nextFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	default:
		t.Fatal("no frame queued")
		return Frame{}
	}
}

func TestClientRendersViewsAsFrames(t *testing.T) {
	c := newTestClient(&fakeSession{})

	c.RenderRoomList([]usecase.RoomListItem{{RoomID: "r1", UnreadCount: 2}})
	c.RenderMessages("r1", []usecase.MessageItem{{ID: "m1", Text: "hi"}})
	c.Notify(usecase.Notice{Code: errors.CodeNotFound, Message: "Chat not found"})
	c.ReturnToRoomList()

	f := nextFrame(t, c)
	assert.Equal(t, FrameRoomList, f.Type)
	assert.NotEmpty(t, f.Timestamp)

	f = nextFrame(t, c)
	assert.Equal(t, FrameMessages, f.Type)
	assert.Equal(t, "r1", f.RoomID)

	f = nextFrame(t, c)
	assert.Equal(t, FrameNotice, f.Type)
	assert.Equal(t, map[string]interface{}{"code": "NOT_FOUND", "message": "Chat not found"}, f.Data)

	f = nextFrame(t, c)
	assert.Equal(t, FrameNavigate, f.Type)
	assert.Equal(t, map[string]interface{}{"to": "room_list"}, f.Data)
}

func TestHandleRejectsBadFrames(t *testing.T) {
	session := &fakeSession{}
	c := newTestClient(session)
	ctx := context.Background()

	c.handle(ctx, []byte("not json"))
	f := nextFrame(t, c)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, errors.CodeBadRequest, f.Data.(map[string]interface{})["code"])

	c.handle(ctx, []byte(`{"type":"open_room","request_id":"r-1"}`))
	f = nextFrame(t, c)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, "r-1", f.RequestID)
	assert.Equal(t, errors.CodeValidation, f.Data.(map[string]interface{})["code"])

	c.handle(ctx, []byte(`{"type":"typing"}`))
	f = nextFrame(t, c)
	assert.Equal(t, FrameError, f.Type)

	assert.Empty(t, session.calls)
}

func TestHandleDispatchesToSession(t *testing.T) {
	session := &fakeSession{}
	c := newTestClient(session)
	ctx := context.Background()

	c.handle(ctx, []byte(`{"type":"watch_rooms"}`))
	c.handle(ctx, []byte(`{"type":"open_room","room_id":"r1"}`))
	c.handle(ctx, []byte(`{"type":"send_message","text":"hello"}`))
	c.handle(ctx, []byte(`{"type":"close_room"}`))
	c.handle(ctx, []byte(`{"type":"ping","request_id":"p1"}`))

	assert.Equal(t, []string{"watch", "open:r1", "send:hello", "close_room"}, session.calls)
	f := nextFrame(t, c)
	assert.Equal(t, FramePong, f.Type)
	assert.Equal(t, "p1", f.RequestID)
}

func TestSendValidationErrorIsReplied(t *testing.T) {
	session := &fakeSession{sendErr: errors.Validation("Message cannot be empty")}
	c := newTestClient(session)

	c.handle(context.Background(), []byte(`{"type":"send_message","request_id":"s1","text":"  "}`))

	f := nextFrame(t, c)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, "s1", f.RequestID)
	assert.Equal(t, "Message cannot be empty", f.Data.(map[string]interface{})["message"])
}

func TestSlowClientIsClosed(t *testing.T) {
	c := newTestClient(&fakeSession{})

	for i := 0; i < sendBuffer+1; i++ {
		c.Notify(usecase.Notice{Code: "X"})
	}

	select {
	case <-c.done:
	default:
		t.Fatal("client should be closed once its buffer overflows")
	}
	assert.Len(t, c.send, sendBuffer)
}
