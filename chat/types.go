package chat

import (
	"strings"
	"time"
)

// SenderType discriminates the kind of principal behind a message.
// Employees, visitors and the supplier bot are structurally different
// accounts, not subtypes of one user model.
type SenderType string

const (
	SenderEmployee SenderType = "employee"
	SenderVisitor  SenderType = "visitor"
	SenderBot      SenderType = "bot"
)

// RoomType classifies a room by membership shape.
type RoomType string

const (
	RoomPrivate  RoomType = "private" // exactly two participants
	RoomGroup    RoomType = "group"
	RoomSupplier RoomType = "supplier"
)

// TempIDPrefix marks a locally synthesized message id that has not been
// confirmed by the server yet.
const TempIDPrefix = "tmp-"

// Sender is a denormalized display snapshot of a message's author,
// captured at message-creation time.
type Sender struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Message is the canonical message shape used everywhere above the wire.
type Message struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	RoomID     string     `json:"roomId"`
	SenderType SenderType `json:"senderType"`
	SenderID   string     `json:"senderId"`
	CreatedAt  time.Time  `json:"createdAt"`
	Sender     *Sender    `json:"sender,omitempty"`
}

// Pending reports whether the message is an optimistic local entry still
// awaiting server confirmation.
func (m Message) Pending() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// Participant references a principal belonging to a room.
type Participant struct {
	ID    string     `json:"id"`
	Type  SenderType `json:"type"`
	Name  string     `json:"name,omitempty"`
	Email string     `json:"email,omitempty"`
}

// ChatRoom is the canonical room shape.
type ChatRoom struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	RoomType     RoomType      `json:"roomType"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	Participants []Participant `json:"participants"`
}

// HasParticipant reports whether the room's participant set contains id.
func (r ChatRoom) HasParticipant(id string) bool {
	for _, p := range r.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a copy whose participant slice and last-message pointer
// are independent of the receiver's.
func (r ChatRoom) Clone() ChatRoom {
	out := r
	if r.LastMessage != nil {
		lm := *r.LastMessage
		out.LastMessage = &lm
	}
	if r.Participants != nil {
		out.Participants = append([]Participant(nil), r.Participants...)
	}
	return out
}

// MessagePage is one page of a room's history.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	NextCursor string    `json:"nextCursor,omitempty"`
}
