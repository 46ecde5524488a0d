package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Novack-secure/novack-chat-client/chat"
)

func TestMessageFromWireRoomIDVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"camel", `{"id":"m1","content":"hi","roomId":"r1"}`},
		{"legacy chat_room_id", `{"id":"m1","content":"hi","chat_room_id":"r1"}`},
		{"snake room_id", `{"id":"m1","content":"hi","room_id":"r1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MessageFromWire(json.RawMessage(tt.raw))
			assert.Equal(t, "r1", m.RoomID)
			assert.Equal(t, "m1", m.ID)
			assert.Equal(t, "hi", m.Content)
		})
	}
}

func TestMessageFromWireSenderType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want chat.SenderType
	}{
		{"explicit camel", `{"senderType":"visitor"}`, chat.SenderVisitor},
		{"explicit snake", `{"sender_type":"Employee"}`, chat.SenderEmployee},
		{"inferred from employee ref", `{"employee_id":"e1"}`, chat.SenderEmployee},
		{"inferred from visitor ref", `{"visitorId":"v1"}`, chat.SenderVisitor},
		{"inferred from bot flag", `{"isBot":true}`, chat.SenderBot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MessageFromWire(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, m.SenderType)
		})
	}
}

func TestMessageFromWireSenderIDFallsBackToRef(t *testing.T) {
	m := MessageFromWire(json.RawMessage(`{"visitor_id":"v7","content":"x"}`))
	assert.Equal(t, "v7", m.SenderID)
	assert.Equal(t, chat.SenderVisitor, m.SenderType)
}

func TestMessageFromWireDefaults(t *testing.T) {
	before := time.Now()
	m := MessageFromWire(json.RawMessage(`{}`))
	assert.Empty(t, m.ID)
	assert.Empty(t, m.Content)
	assert.Empty(t, m.RoomID)
	assert.False(t, m.CreatedAt.Before(before), "missing timestamp should default to now")
	assert.Nil(t, m.Sender)
}

func TestMessageFromWireMalformedPayload(t *testing.T) {
	assert.NotPanics(t, func() {
		m := MessageFromWire(json.RawMessage(`not json at all`))
		assert.Empty(t, m.ID)
		assert.False(t, m.CreatedAt.IsZero())
	})
}

func TestMessageFromWireSenderSnapshot(t *testing.T) {
	m := MessageFromWire(json.RawMessage(`{"id":"m1","sender":{"full_name":"Ada","email":"ada@example.com"}}`))
	require.NotNil(t, m.Sender)
	assert.Equal(t, "Ada", m.Sender.Name)
	assert.Equal(t, "ada@example.com", m.Sender.Email)
}

func TestMessageFromWireTimestampParsed(t *testing.T) {
	m := MessageFromWire(json.RawMessage(`{"created_at":"2026-02-01T10:30:00Z"}`))
	assert.Equal(t, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC), m.CreatedAt.UTC())
}

func TestRoomFromWireIDVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"id", `{"id":"r1"}`},
		{"_id", `{"_id":"r1"}`},
		{"roomId", `{"roomId":"r1"}`},
		{"room_id", `{"room_id":"r1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "r1", RoomFromWire(json.RawMessage(tt.raw)).ID)
		})
	}
}

func TestRoomFromWireTypeInference(t *testing.T) {
	assert.Equal(t, chat.RoomSupplier, RoomFromWire(json.RawMessage(`{"room_type":"supplier"}`)).RoomType)
	assert.Equal(t, chat.RoomGroup, RoomFromWire(json.RawMessage(`{"is_group":true}`)).RoomType)
	assert.Equal(t, chat.RoomPrivate, RoomFromWire(json.RawMessage(`{}`)).RoomType)
}

func TestRoomFromWireParticipants(t *testing.T) {
	r := RoomFromWire(json.RawMessage(`{
		"id":"r1",
		"participants":[
			{"user_id":"u1","user_type":"employee","name":"Ada"},
			{"visitorId":"v1"}
		]
	}`))
	require.Len(t, r.Participants, 2)
	assert.Equal(t, "u1", r.Participants[0].ID)
	assert.Equal(t, chat.SenderEmployee, r.Participants[0].Type)
	assert.Equal(t, "v1", r.Participants[1].ID)
	assert.Equal(t, chat.SenderVisitor, r.Participants[1].Type)
}

func TestRoomFromWireMembersAsStrings(t *testing.T) {
	r := RoomFromWire(json.RawMessage(`{"id":"r1","members":["u1","u2"]}`))
	require.Len(t, r.Participants, 2)
	assert.Equal(t, "u1", r.Participants[0].ID)
}

func TestRoomFromWireLastMessageAndUnread(t *testing.T) {
	r := RoomFromWire(json.RawMessage(`{
		"id":"r1",
		"unread_count":3,
		"last_message":{"id":"m9","content":"latest","room_id":"r1"}
	}`))
	assert.Equal(t, 3, r.UnreadCount)
	require.NotNil(t, r.LastMessage)
	assert.Equal(t, "m9", r.LastMessage.ID)
	assert.Equal(t, "latest", r.LastMessage.Content)
}

func TestRoomFromWireDefaults(t *testing.T) {
	r := RoomFromWire(json.RawMessage(`{}`))
	assert.Empty(t, r.ID)
	assert.NotNil(t, r.Participants)
	assert.Empty(t, r.Participants)
	assert.Zero(t, r.UnreadCount)
	assert.Nil(t, r.LastMessage)
}

func TestRoomsFromWirePreservesOrder(t *testing.T) {
	rooms := RoomsFromWire(json.RawMessage(`[{"id":"a"},{"id":"b"},{"id":"c"}]`))
	require.Len(t, rooms, 3)
	assert.Equal(t, "a", rooms[0].ID)
	assert.Equal(t, "c", rooms[2].ID)
}

func TestAckOK(t *testing.T) {
	assert.True(t, Ack{Success: true}.OK())
	assert.True(t, Ack{Status: "ok"}.OK())
	assert.False(t, Ack{}.OK())
	assert.False(t, Ack{Success: true, Error: "boom"}.OK())
	assert.False(t, Ack{Status: "error"}.OK())
}
