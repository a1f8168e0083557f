package usecase

import (
	"context"
	"sync"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/domain/repository"
	"bookmarket/pkg/errors"
	"bookmarket/pkg/logger"
)

type ViewState int

const (
	ViewClosed ViewState = iota
	ViewOpening
	ViewOpen
)

func (s ViewState) String() string {
	switch s {
	case ViewOpening:
		return "opening"
	case ViewOpen:
		return "open"
	}
	return "closed"
}

// disposer releases subscription handles in reverse order of acquisition.
type disposer struct {
	fns []repository.Unsubscribe
}

func (d *disposer) add(fn repository.Unsubscribe) {
	d.fns = append(d.fns, fn)
}

func (d *disposer) dispose() {
	for i := len(d.fns) - 1; i >= 0; i-- {
		d.fns[i]()
	}
	d.fns = nil
}

type roomView struct {
	roomID      string
	state       ViewState
	room        *entity.ChatRoom
	subs        disposer
	markingRead bool
}

// Session drives what one connected user sees: a live room list and at most one open room.
// Every store callback re-checks that its view is still current before rendering, so nothing is
// rendered after the view or the session closes.
type Session struct {
	uc       *ChatUseCase
	userID   string
	renderer Renderer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	roomsSubs disposer
	watching  bool
	view      *roomView
}

// NewSession binds a session to ctx. Live feeds end when ctx is done or Close is called.
func (uc *ChatUseCase) NewSession(ctx context.Context, userID string, renderer Renderer) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		uc:       uc,
		userID:   userID,
		renderer: renderer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Session) UserID() string {
	return s.userID
}

// State reports the state of the current room view.
func (s *Session) State() (roomID string, state ViewState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return "", ViewClosed
	}
	return s.view.roomID, s.view.state
}

// WatchRooms subscribes to the user's room list. Only the first call per session subscribes.
func (s *Session) WatchRooms() {
	s.mu.Lock()
	if s.closed || s.watching {
		s.mu.Unlock()
		return
	}
	s.watching = true
	s.mu.Unlock()

	unsub := s.track("rooms", s.uc.chatRepo.SubscribeRoomsForUser(s.ctx, s.userID, func(rooms []*entity.ChatRoom, err error) {
		if err != nil {
			logger.Error("Session %s: room list feed failed: %v", s.userID, err)
			rooms = nil
		}
		items := NewRoomListItems(rooms, s.userID)
		s.render(nil, func() { s.renderer.RenderRoomList(items) })
	}))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return
	}
	s.roomsSubs.add(unsub)
	s.mu.Unlock()
}

// OpenRoom closes the current room view, if any, and opens roomID. Failures are reported to the
// renderer and returned.
func (s *Session) OpenRoom(ctx context.Context, roomID string) error {
	v := &roomView{roomID: roomID, state: ViewOpening}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.BadRequest("Session is closed", nil)
	}
	prev := s.view
	s.view = v
	s.mu.Unlock()
	if prev != nil {
		prev.subs.dispose()
	}

	room, err := s.uc.GetRoom(ctx, s.userID, roomID)
	if err != nil {
		s.fail(v, err, "open chat")
		return err
	}

	if err := s.uc.markRead(ctx, s.userID, roomID); err != nil {
		logger.Warn("Session %s: mark read on open %s failed: %v", s.userID, roomID, err)
	}

	header := NewRoomHeader(room, s.userID)
	header.UnreadCount = 0
	s.render(v, func() {
		v.room = room
		s.renderer.RenderRoom(header)
	})

	unsubMessages := s.track("messages", s.uc.chatRepo.SubscribeMessages(s.ctx, roomID, func(messages []*entity.Message, err error) {
		if err != nil {
			logger.Error("Session %s: message feed for %s failed: %v", s.userID, roomID, err)
			messages = nil
		}
		items := NewMessageItems(messages)
		s.render(v, func() { s.renderer.RenderMessages(roomID, items) })
	}))
	unsubRoom := s.track("room", s.uc.chatRepo.SubscribeRoom(s.ctx, roomID, func(room *entity.ChatRoom, err error) {
		s.onRoomUpdate(v, room, err)
	}))

	s.mu.Lock()
	if s.closed || s.view != v {
		s.mu.Unlock()
		unsubRoom()
		unsubMessages()
		return nil
	}
	v.subs.add(unsubMessages)
	v.subs.add(unsubRoom)
	v.state = ViewOpen
	s.mu.Unlock()
	return nil
}

func (s *Session) onRoomUpdate(v *roomView, room *entity.ChatRoom, err error) {
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			s.fail(v, err, "load chat")
			return
		}
		logger.Error("Session %s: room feed for %s failed: %v", s.userID, v.roomID, err)
		return
	}

	markRead := false
	s.render(v, func() {
		v.room = room
		s.renderer.RenderRoom(NewRoomHeader(room, s.userID))
		if v.state == ViewOpen && !v.markingRead && room.UnreadFor(s.userID) > 0 {
			v.markingRead = true
			markRead = true
		}
	})
	if !markRead {
		return
	}

	// messages that arrive while the room is on screen count as read
	go func() {
		if err := s.uc.markRead(s.ctx, s.userID, v.roomID); err != nil {
			logger.Warn("Session %s: mark read for %s failed: %v", s.userID, v.roomID, err)
		}
		s.mu.Lock()
		v.markingRead = false
		s.mu.Unlock()
	}()
}

// Send posts text to the open room.
func (s *Session) Send(ctx context.Context, text string) (*entity.Message, error) {
	s.mu.Lock()
	v := s.view
	var room *entity.ChatRoom
	if !s.closed && v != nil {
		room = v.room
	}
	s.mu.Unlock()

	if room == nil {
		err := errors.BadRequest("No chat is open", nil)
		s.render(nil, func() { s.renderer.Notify(NoticeFromError(err, "send message")) })
		return nil, err
	}

	msg, err := s.uc.sendInRoom(ctx, room, s.userID, text)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			s.fail(v, err, "send message")
			return nil, err
		}
		if !errors.Is(err, errors.CodeValidation) {
			s.render(v, func() { s.renderer.Notify(NoticeFromError(err, "send message")) })
		}
		return nil, err
	}
	return msg, nil
}

// CloseRoom returns to the room list and releases the room subscriptions.
func (s *Session) CloseRoom() {
	s.mu.Lock()
	v := s.view
	s.view = nil
	s.mu.Unlock()

	if v != nil {
		v.subs.dispose()
	}
}

// Close releases every subscription. The session renders nothing afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	v := s.view
	s.view = nil
	rooms := s.roomsSubs
	s.roomsSubs = disposer{}
	s.mu.Unlock()

	if v != nil {
		v.subs.dispose()
	}
	rooms.dispose()
	s.cancel()
}

// render runs fn under the session lock if the session is open and, when v is not nil, v is
// still the current room view.
func (s *Session) render(v *roomView, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (v != nil && s.view != v) {
		return
	}
	fn()
}

// fail closes v after an error. A missing room sends the user back to the room list.
func (s *Session) fail(v *roomView, err error, action string) {
	s.mu.Lock()
	if s.closed || s.view != v {
		s.mu.Unlock()
		return
	}
	s.view = nil
	s.renderer.Notify(NoticeFromError(err, action))
	if errors.Is(err, errors.CodeNotFound) || errors.Is(err, errors.CodeForbidden) {
		s.renderer.ReturnToRoomList()
	}
	s.mu.Unlock()

	v.subs.dispose()
}

func (s *Session) track(feed string, unsub repository.Unsubscribe) repository.Unsubscribe {
	s.uc.metrics.SubscriptionOpened(feed)
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			s.uc.metrics.SubscriptionClosed(feed)
		})
	}
}
