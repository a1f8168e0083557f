package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bookmarket/internal/domain/entity"
	"bookmarket/internal/usecase"
	"bookmarket/pkg/errors"
	"bookmarket/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
	commandTimeout = 10 * time.Second
)

// Session is the per-connection chat state the client drives.
type Session interface {
	WatchRooms()
	OpenRoom(ctx context.Context, roomID string) error
	CloseRoom()
	Send(ctx context.Context, text string) (*entity.Message, error)
	Close()
}

var _ Session = (*usecase.Session)(nil)

var frameValidator = validator.New()

// Client is one WebSocket connection. It renders its session's views as frames.
type Client struct {
	ID     string
	UserID string

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	session Session
}

var _ usecase.Renderer = (*Client)(nil)

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) RenderRoomList(items []usecase.RoomListItem) {
	c.push(newFrame(FrameRoomList, items))
}

func (c *Client) RenderRoom(header usecase.RoomHeader) {
	f := newFrame(FrameRoom, header)
	f.RoomID = header.RoomID
	c.push(f)
}

func (c *Client) RenderMessages(roomID string, items []usecase.MessageItem) {
	f := newFrame(FrameMessages, items)
	f.RoomID = roomID
	c.push(f)
}

func (c *Client) Notify(notice usecase.Notice) {
	c.push(newFrame(FrameNotice, notice))
}

func (c *Client) ReturnToRoomList() {
	c.push(newFrame(FrameNavigate, NavigateData{To: FrameRoomList}))
}

// push never blocks. A client that cannot keep up is disconnected.
func (c *Client) push(f Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s frame for %s: %v", f.Type, c.UserID, err)
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		logger.Warn("WebSocket: send buffer full for client %s, closing", c.ID)
		c.Close()
	}
}

func (c *Client) replyError(requestID, code, message string) {
	f := newFrame(FrameError, ErrorData{Code: code, Message: message})
	f.RequestID = requestID
	c.push(f)
}

// Close stops the write pump and closes the socket. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
		}
	})
}

// handle dispatches one client frame to the session.
func (c *Client) handle(ctx context.Context, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Debug("WebSocket: invalid frame from %s: %v", c.UserID, err)
		c.replyError("", errors.CodeBadRequest, "Invalid message format")
		return
	}
	if err := frameValidator.Struct(frame); err != nil {
		c.replyError(frame.RequestID, errors.CodeValidation, "Invalid "+frame.Type+" frame")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch frame.Type {
	case FramePing:
		f := newFrame(FramePong, nil)
		f.RequestID = frame.RequestID
		c.push(f)

	case FrameWatchRooms:
		c.session.WatchRooms()

	case FrameOpenRoom:
		// failures are already rendered as notices
		_ = c.session.OpenRoom(ctx, frame.RoomID)

	case FrameCloseRoom:
		c.session.CloseRoom()

	case FrameSendMessage:
		if _, err := c.session.Send(ctx, frame.Text); err != nil && errors.Is(err, errors.CodeValidation) {
			appErr, _ := errors.AsAppError(err)
			c.replyError(frame.RequestID, appErr.Code, appErr.Message)
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket: read error for %s: %v", c.UserID, err)
			}
			return
		}
		c.handle(ctx, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WebSocket: write to %s failed: %v", c.UserID, err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
