// Package protocol owns the wire vocabulary and the translation of
// server-shaped payloads into the canonical chat types. Server payloads
// have drifted across backend revisions, so the same concept can arrive
// under several field names; everything above this package sees one shape.
package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Novack-secure/novack-chat-client/chat"
)

// wireMessage accepts every historical field spelling for a message.
type wireMessage struct {
	ID        string `json:"id"`
	AltID     string `json:"_id"`
	MessageID string `json:"message_id"`

	Content string `json:"content"`
	Text    string `json:"text"`

	RoomID      string `json:"roomId"`
	ChatRoomID  string `json:"chat_room_id"`
	RoomIDSnake string `json:"room_id"`

	SenderType      string `json:"senderType"`
	SenderTypeSnake string `json:"sender_type"`
	SenderID        string `json:"senderId"`
	SenderIDSnake   string `json:"sender_id"`

	// mutually exclusive sender references, used to infer the sender
	// type when no explicit type field is present
	EmployeeID      string `json:"employeeId"`
	EmployeeIDSnake string `json:"employee_id"`
	VisitorID       string `json:"visitorId"`
	VisitorIDSnake  string `json:"visitor_id"`
	IsBot           bool   `json:"isBot"`

	CreatedAt      string `json:"createdAt"`
	CreatedAtSnake string `json:"created_at"`
	Timestamp      string `json:"timestamp"`

	Sender *wireSender `json:"sender"`
}

type wireSender struct {
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	EmailAddr string `json:"email_address"`
}

type wireParticipant struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`

	Type      string `json:"type"`
	UserType  string `json:"userType"`
	TypeSnake string `json:"user_type"`

	EmployeeID string `json:"employeeId"`
	VisitorID  string `json:"visitorId"`

	Name  string `json:"name"`
	Email string `json:"email"`
}

// wireRoom accepts every historical field spelling for a room.
type wireRoom struct {
	ID          string `json:"id"`
	AltID       string `json:"_id"`
	RoomID      string `json:"roomId"`
	RoomIDSnake string `json:"room_id"`

	Name string `json:"name"`

	RoomType      string `json:"roomType"`
	RoomTypeSnake string `json:"room_type"`
	Type          string `json:"type"`
	IsGroup       bool   `json:"is_group"`

	CreatedAt      string `json:"createdAt"`
	CreatedAtSnake string `json:"created_at"`
	UpdatedAt      string `json:"updatedAt"`
	UpdatedAtSnake string `json:"updated_at"`

	LastMessage      json.RawMessage `json:"lastMessage"`
	LastMessageSnake json.RawMessage `json:"last_message"`

	UnreadCount      int `json:"unreadCount"`
	UnreadCountSnake int `json:"unread_count"`

	Participants []json.RawMessage `json:"participants"`
	Members      []json.RawMessage `json:"members"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseTime accepts RFC3339 with or without sub-second precision.
// Anything unparseable maps to the current time rather than a zero value.
func parseTime(vals ...string) time.Time {
	for _, v := range vals {
		if v == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Now()
}

func (w wireMessage) senderType() chat.SenderType {
	if t := firstNonEmpty(w.SenderType, w.SenderTypeSnake); t != "" {
		return chat.SenderType(strings.ToLower(t))
	}
	switch {
	case w.IsBot:
		return chat.SenderBot
	case firstNonEmpty(w.VisitorID, w.VisitorIDSnake) != "":
		return chat.SenderVisitor
	default:
		return chat.SenderEmployee
	}
}

// MessageFromWire converts a raw server message payload into the canonical
// shape. It never fails: missing fields fall back to defaults.
func MessageFromWire(raw json.RawMessage) chat.Message {
	var w wireMessage
	_ = json.Unmarshal(raw, &w)

	m := chat.Message{
		ID:         firstNonEmpty(w.ID, w.AltID, w.MessageID),
		Content:    firstNonEmpty(w.Content, w.Text),
		RoomID:     firstNonEmpty(w.RoomID, w.ChatRoomID, w.RoomIDSnake),
		SenderType: w.senderType(),
		SenderID: firstNonEmpty(
			w.SenderID, w.SenderIDSnake,
			w.EmployeeID, w.EmployeeIDSnake,
			w.VisitorID, w.VisitorIDSnake,
		),
		CreatedAt: parseTime(w.CreatedAt, w.CreatedAtSnake, w.Timestamp),
	}
	if w.Sender != nil {
		m.Sender = &chat.Sender{
			Name:  firstNonEmpty(w.Sender.Name, w.Sender.FullName),
			Email: firstNonEmpty(w.Sender.Email, w.Sender.EmailAddr),
		}
	}
	return m
}

// MessagesFromWire converts a batch, preserving order.
func MessagesFromWire(raws []json.RawMessage) []chat.Message {
	out := make([]chat.Message, 0, len(raws))
	for _, r := range raws {
		out = append(out, MessageFromWire(r))
	}
	return out
}

func participantFromWire(raw json.RawMessage) chat.Participant {
	var w wireParticipant
	_ = json.Unmarshal(raw, &w)

	p := chat.Participant{
		ID:    firstNonEmpty(w.ID, w.UserID, w.UserIDSnake, w.EmployeeID, w.VisitorID),
		Name:  w.Name,
		Email: w.Email,
	}
	switch {
	case firstNonEmpty(w.Type, w.UserType, w.TypeSnake) != "":
		p.Type = chat.SenderType(strings.ToLower(firstNonEmpty(w.Type, w.UserType, w.TypeSnake)))
	case w.VisitorID != "":
		p.Type = chat.SenderVisitor
	default:
		p.Type = chat.SenderEmployee
	}
	return p
}

func (w wireRoom) roomType() chat.RoomType {
	if t := firstNonEmpty(w.RoomType, w.RoomTypeSnake, w.Type); t != "" {
		return chat.RoomType(strings.ToLower(t))
	}
	if w.IsGroup {
		return chat.RoomGroup
	}
	return chat.RoomPrivate
}

// RoomFromWire converts a raw server room payload into the canonical
// shape. It never fails: missing fields fall back to defaults and absent
// participant lists map to an empty slice, not nil access downstream.
func RoomFromWire(raw json.RawMessage) chat.ChatRoom {
	var w wireRoom
	_ = json.Unmarshal(raw, &w)

	r := chat.ChatRoom{
		ID:           firstNonEmpty(w.ID, w.AltID, w.RoomID, w.RoomIDSnake),
		Name:         w.Name,
		RoomType:     w.roomType(),
		CreatedAt:    parseTime(w.CreatedAt, w.CreatedAtSnake),
		UpdatedAt:    parseTime(w.UpdatedAt, w.UpdatedAtSnake),
		UnreadCount:  w.UnreadCount,
		Participants: []chat.Participant{},
	}
	if r.UnreadCount == 0 {
		r.UnreadCount = w.UnreadCountSnake
	}
	if r.UnreadCount < 0 {
		r.UnreadCount = 0
	}

	if lm := w.LastMessage; len(lm) > 0 || len(w.LastMessageSnake) > 0 {
		if len(lm) == 0 {
			lm = w.LastMessageSnake
		}
		if string(lm) != "null" {
			m := MessageFromWire(lm)
			r.LastMessage = &m
		}
	}

	raws := w.Participants
	if len(raws) == 0 {
		raws = w.Members
	}
	for _, p := range raws {
		// members may be plain id strings rather than objects
		var id string
		if err := json.Unmarshal(p, &id); err == nil {
			r.Participants = append(r.Participants, chat.Participant{ID: id, Type: chat.SenderEmployee})
			continue
		}
		r.Participants = append(r.Participants, participantFromWire(p))
	}
	return r
}

// RoomsFromWire converts a batch, preserving order.
func RoomsFromWire(raw json.RawMessage) []chat.ChatRoom {
	var raws []json.RawMessage
	_ = json.Unmarshal(raw, &raws)
	out := make([]chat.ChatRoom, 0, len(raws))
	for _, r := range raws {
		out = append(out, RoomFromWire(r))
	}
	return out
}
