package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookmarket/pkg/errors"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestScenarioBuyerAsksSellerReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := f.resolve(t, "u1", "u2")
	_, err := f.uc.SendMessage(ctx, "u1", roomID, "Is this still available?")
	require.NoError(t, err)

	room := f.room(t, roomID)
	assert.Equal(t, "Is this still available?", room.LastMessage)
	assert.Equal(t, 1, room.UnreadFor("u2"))

	seller := &recordingRenderer{}
	session := f.uc.NewSession(ctx, "u2", seller)
	defer session.Close()

	require.NoError(t, session.OpenRoom(ctx, roomID))
	assert.Equal(t, 0, f.room(t, roomID).UnreadFor("u2"))

	require.Eventually(t, func() bool { return len(seller.lastMessages()) == 1 }, waitFor, tick)
	msg := seller.lastMessages()[0]
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "alice", msg.SenderName)
}

func TestScenarioReplyWhileRoomClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")
	_, err := f.uc.SendMessage(ctx, "u1", roomID, "Is this still available?")
	require.NoError(t, err)

	_, err = f.uc.SendMessage(ctx, "u2", roomID, "Yes, still available.")
	require.NoError(t, err)
	assert.Equal(t, 1, f.room(t, roomID).UnreadFor("u1"))

	buyer := &recordingRenderer{}
	session := f.uc.NewSession(ctx, "u1", buyer)
	defer session.Close()

	session.WatchRooms()
	require.Eventually(t, func() bool {
		list := buyer.lastList()
		return len(list) == 1 && list[0].UnreadCount == 1
	}, waitFor, tick)
	assert.Equal(t, "Yes, still available.", buyer.lastList()[0].LastMessage)
	assert.Equal(t, Participant{ID: "u2", Name: "bob"}, buyer.lastList()[0].OtherParticipant)

	require.NoError(t, session.OpenRoom(ctx, roomID))
	require.Eventually(t, func() bool {
		list := buyer.lastList()
		return len(list) == 1 && list[0].UnreadCount == 0
	}, waitFor, tick)
}

func TestSessionRoomViewStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")

	session := f.uc.NewSession(ctx, "u1", &recordingRenderer{})
	defer session.Close()

	_, state := session.State()
	assert.Equal(t, ViewClosed, state)

	require.NoError(t, session.OpenRoom(ctx, roomID))
	openID, state := session.State()
	assert.Equal(t, roomID, openID)
	assert.Equal(t, ViewOpen, state)
	assert.Equal(t, 2, f.store.Watchers())

	session.CloseRoom()
	_, state = session.State()
	assert.Equal(t, ViewClosed, state)
	assert.Equal(t, 0, f.store.Watchers())
}

func TestOpeningAnotherRoomReleasesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.resolve(t, "u1", "u2")
	second := f.resolve(t, "u1", "u3")

	session := f.uc.NewSession(ctx, "u1", &recordingRenderer{})
	defer session.Close()

	require.NoError(t, session.OpenRoom(ctx, first))
	require.NoError(t, session.OpenRoom(ctx, second))

	openID, state := session.State()
	assert.Equal(t, second, openID)
	assert.Equal(t, ViewOpen, state)
	assert.Equal(t, 2, f.store.Watchers())
}

func TestSessionCloseReleasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")

	session := f.uc.NewSession(ctx, "u1", &recordingRenderer{})
	session.WatchRooms()
	session.WatchRooms()
	require.NoError(t, session.OpenRoom(ctx, roomID))
	assert.Equal(t, 3, f.store.Watchers())

	session.Close()
	session.Close()

	assert.Equal(t, 0, f.store.Watchers())
	assert.Error(t, session.OpenRoom(ctx, roomID))
}

func TestNoRenderAfterClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")

	renderer := &recordingRenderer{}
	session := f.uc.NewSession(ctx, "u2", renderer)
	session.WatchRooms()
	require.NoError(t, session.OpenRoom(ctx, roomID))
	require.Eventually(t, func() bool { return renderer.lastMessages() != nil }, waitFor, tick)

	session.Close()
	before := renderer.renders()

	_, err := f.uc.SendMessage(ctx, "u1", roomID, "anyone there?")
	require.NoError(t, err)

	assert.Never(t, func() bool { return renderer.renders() != before }, 100*time.Millisecond, tick)
}

func TestOpenMissingRoomReturnsToList(t *testing.T) {
	f := newFixture(t)
	renderer := &recordingRenderer{}
	session := f.uc.NewSession(context.Background(), "u1", renderer)
	defer session.Close()

	err := session.OpenRoom(context.Background(), "no-such-room")

	assert.True(t, errors.Is(err, errors.CodeNotFound))
	notice, ok := renderer.lastNotice()
	require.True(t, ok)
	assert.Equal(t, Notice{Code: errors.CodeNotFound, Message: "Chat not found"}, notice)
	assert.Equal(t, 1, renderer.returnCount())
	_, state := session.State()
	assert.Equal(t, ViewClosed, state)
	assert.Equal(t, 0, f.store.Watchers())
}

func TestSessionSendBlankTextStaysLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")

	renderer := &recordingRenderer{}
	session := f.uc.NewSession(ctx, "u1", renderer)
	defer session.Close()
	require.NoError(t, session.OpenRoom(ctx, roomID))

	_, err := session.Send(ctx, "   ")

	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Zero(t, f.repo.appendCalls())
	_, notified := renderer.lastNotice()
	assert.False(t, notified)
}

func TestSessionSendFailureNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")

	renderer := &recordingRenderer{}
	session := f.uc.NewSession(ctx, "u1", renderer)
	defer session.Close()
	require.NoError(t, session.OpenRoom(ctx, roomID))
	f.repo.failAppend = errors.Persistence("Failed to send message", nil)

	_, err := session.Send(ctx, "hello")

	assert.True(t, errors.Is(err, errors.CodePersistence))
	notice, ok := renderer.lastNotice()
	require.True(t, ok)
	assert.Equal(t, errors.CodePersistence, notice.Code)
	assert.Equal(t, "Failed to send message. Please try again", notice.Message)
	_, state := session.State()
	assert.Equal(t, ViewOpen, state)
}

func TestSessionSendWithoutOpenRoom(t *testing.T) {
	f := newFixture(t)
	session := f.uc.NewSession(context.Background(), "u1", &recordingRenderer{})
	defer session.Close()

	_, err := session.Send(context.Background(), "hello")

	assert.True(t, errors.Is(err, errors.CodeBadRequest))
	assert.Zero(t, f.repo.appendCalls())
}

func TestSessionSendTargetsOtherParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")

	session := f.uc.NewSession(ctx, "u2", &recordingRenderer{})
	defer session.Close()
	require.NoError(t, session.OpenRoom(ctx, roomID))

	msg, err := session.Send(ctx, "Yes, still available.")
	require.NoError(t, err)
	assert.Equal(t, "bob", msg.SenderName)

	room := f.room(t, roomID)
	assert.Equal(t, 1, room.UnreadFor("u1"))
	assert.Equal(t, 0, room.UnreadFor("u2"))
}

func TestIncomingMessageWhileOpenIsMarkedRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.resolve(t, "u1", "u2")

	renderer := &recordingRenderer{}
	session := f.uc.NewSession(ctx, "u2", renderer)
	defer session.Close()
	require.NoError(t, session.OpenRoom(ctx, roomID))

	_, err := f.uc.SendMessage(ctx, "u1", roomID, "still there?")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(renderer.lastMessages()) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return f.unread(roomID, "u2") == 0 }, waitFor, tick)
}

func TestOutsiderCannotOpenRoom(t *testing.T) {
	f := newFixture(t)
	roomID := f.resolve(t, "u1", "u2")
	renderer := &recordingRenderer{}
	session := f.uc.NewSession(context.Background(), "u3", renderer)
	defer session.Close()

	err := session.OpenRoom(context.Background(), roomID)

	assert.True(t, errors.Is(err, errors.CodeForbidden))
	assert.Equal(t, 1, renderer.returnCount())
	assert.Equal(t, 0, f.store.Watchers())
}
