package websocket

import (
	"time"
)

// Client frame types
const (
	FrameWatchRooms  = "watch_rooms"
	FrameOpenRoom    = "open_room"
	FrameCloseRoom   = "close_room"
	FrameSendMessage = "send_message"
	FramePing        = "ping"
)

// Server frame types
const (
	FrameRoomList = "room_list"
	FrameRoom     = "room"
	FrameMessages = "messages"
	FrameNotice   = "notice"
	FrameNavigate = "navigate"
	FramePong     = "pong"
	FrameError    = "error"
)

// ClientFrame is what a connected client sends.
type ClientFrame struct {
	Type      string `json:"type" validate:"required,oneof=watch_rooms open_room close_room send_message ping"`
	RequestID string `json:"request_id,omitempty"`
	RoomID    string `json:"room_id,omitempty" validate:"required_if=Type open_room"`
	Text      string `json:"text,omitempty"`
}

// Frame is what the server pushes.
type Frame struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	RoomID    string      `json:"room_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type NavigateData struct {
	To string `json:"to"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newFrame(frameType string, data interface{}) Frame {
	return Frame{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
