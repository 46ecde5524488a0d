package protocol

import (
	"encoding/json"
	"strings"
)

// Event names exchanged with the messaging server. Requests carry a
// correlation id and are answered by an "ack" envelope with the same id;
// pushes arrive without one.
const (
	// server -> client pushes
	EventConnected   = "connected"
	EventNewMessage  = "newMessage"
	EventRoomCreated = "roomCreated"
	EventRoomUpdate  = "roomUpdate"
	EventUserTyping  = "userTyping"
	EventDisconnect  = "disconnect"
	EventAck         = "ack"

	// client -> server requests
	EventGetRooms          = "getRooms"
	EventSendMessage       = "sendMessage"
	EventSendMessageToBot  = "sendMessageToBot"
	EventJoinRoom          = "joinRoom"
	EventLeaveRoom         = "leaveRoom"
	EventGetRoomMessages   = "getRoomMessages"
	EventCreatePrivateRoom = "createPrivateRoom"
	EventMarkAsRead        = "markAsRead"

	// client -> server advisory, no ack expected
	EventTyping = "typing"
)

// Envelope is the wire format for every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Request payloads.

type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

type BotMessagePayload struct {
	RoomID     string `json:"roomId"`
	Content    string `json:"content"`
	SupplierID string `json:"supplierId"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type HistoryPayload struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

type CreatePrivateRoomPayload struct {
	TargetUserID   string `json:"targetUserId"`
	TargetUserType string `json:"targetUserType"`
}

type TypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// Ack is the generic acknowledgment body. Bot sends report "status"
// instead of the boolean, so both are accepted.
type Ack struct {
	Success bool            `json:"success"`
	Status  string          `json:"status,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the ack signals acceptance.
func (a Ack) OK() bool {
	if a.Error != "" {
		return false
	}
	if a.Success {
		return true
	}
	return a.Status != "" && !strings.EqualFold(a.Status, "error")
}

// HistoryAck is the acknowledgment body of getRoomMessages.
type HistoryAck struct {
	Messages   []json.RawMessage `json:"messages"`
	HasMore    bool              `json:"hasMore"`
	NextCursor *string           `json:"nextCursor"`
}

// TypingEvent is the body of an inbound userTyping push.
type TypingEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// DisconnectEvent is the body of an inbound disconnect push.
type DisconnectEvent struct {
	Reason string `json:"reason"`
}
