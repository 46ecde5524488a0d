package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Novack-secure/novack-chat-client/chat"
	"github.com/Novack-secure/novack-chat-client/internal/protocol"
)

func (s *Socket) ack(ctx context.Context, event string, payload any) (protocol.Ack, error) {
	data, err := s.request(ctx, event, payload, s.cfg.RequestTimeout)
	if err != nil {
		return protocol.Ack{}, err
	}
	var ack protocol.Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return protocol.Ack{}, fmt.Errorf("transport: decode %s ack: %w", event, err)
	}
	if !ack.OK() {
		msg := ack.Error
		if msg == "" {
			msg = ack.Status
		}
		return ack, fmt.Errorf("%w: %s: %s", ErrRejected, event, msg)
	}
	return ack, nil
}

// Rooms lists every room the authenticated principal belongs to.
func (s *Socket) Rooms(ctx context.Context) ([]chat.ChatRoom, error) {
	ack, err := s.ack(ctx, protocol.EventGetRooms, nil)
	if err != nil {
		return nil, err
	}
	return protocol.RoomsFromWire(ack.Data), nil
}

// SendMessage delivers one message to a room.
func (s *Socket) SendMessage(ctx context.Context, roomID, content string) error {
	_, err := s.ack(ctx, protocol.EventSendMessage, protocol.SendMessagePayload{
		RoomID:  roomID,
		Content: content,
	})
	return err
}

// SendBotMessage delivers one message to the supplier bot.
func (s *Socket) SendBotMessage(ctx context.Context, roomID, content, supplierID string) error {
	_, err := s.ack(ctx, protocol.EventSendMessageToBot, protocol.BotMessagePayload{
		RoomID:     roomID,
		Content:    content,
		SupplierID: supplierID,
	})
	return err
}

// JoinRoom subscribes the connection to a room's events.
func (s *Socket) JoinRoom(ctx context.Context, roomID string) error {
	_, err := s.ack(ctx, protocol.EventJoinRoom, protocol.RoomPayload{RoomID: roomID})
	return err
}

// LeaveRoom unsubscribes the connection from a room's events.
func (s *Socket) LeaveRoom(ctx context.Context, roomID string) error {
	_, err := s.ack(ctx, protocol.EventLeaveRoom, protocol.RoomPayload{RoomID: roomID})
	return err
}

// MarkAsRead reports the room as read on the server.
func (s *Socket) MarkAsRead(ctx context.Context, roomID string) error {
	_, err := s.ack(ctx, protocol.EventMarkAsRead, protocol.RoomPayload{RoomID: roomID})
	return err
}

// CreatePrivateRoom asks the server for a two-party room with the target
// principal, returning its (possibly denormalized) immediate view.
func (s *Socket) CreatePrivateRoom(ctx context.Context, targetID, targetType string) (chat.ChatRoom, error) {
	ack, err := s.ack(ctx, protocol.EventCreatePrivateRoom, protocol.CreatePrivateRoomPayload{
		TargetUserID:   targetID,
		TargetUserType: targetType,
	})
	if err != nil {
		return chat.ChatRoom{}, err
	}
	return protocol.RoomFromWire(ack.Data), nil
}

// RoomMessages fetches one page of a room's history. History pages can be
// large, so this call gets the longer timeout; and because an empty chat
// pane is a safe degraded state, a timed-out fetch resolves to an empty
// page instead of an error.
func (s *Socket) RoomMessages(ctx context.Context, roomID string, limit int, cursor string) (chat.MessagePage, error) {
	data, err := s.request(ctx, protocol.EventGetRoomMessages, protocol.HistoryPayload{
		RoomID: roomID,
		Limit:  limit,
		Cursor: cursor,
	}, s.cfg.HistoryTimeout)
	if err != nil {
		if errors.Is(err, ErrRequestTimeout) {
			s.log.Warnw("history fetch timed out, serving empty page", "room", roomID)
			return chat.MessagePage{Messages: []chat.Message{}}, nil
		}
		return chat.MessagePage{}, err
	}

	var ack protocol.HistoryAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return chat.MessagePage{}, fmt.Errorf("transport: decode history ack: %w", err)
	}
	page := chat.MessagePage{
		Messages: protocol.MessagesFromWire(ack.Messages),
		HasMore:  ack.HasMore,
	}
	if ack.NextCursor != nil {
		page.NextCursor = *ack.NextCursor
	}
	return page, nil
}

// Typing emits the advisory typing indicator. Fire-and-forget: no ack is
// awaited and failures are silently dropped.
func (s *Socket) Typing(roomID string, isTyping bool) {
	s.mu.Lock()
	c := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if c == nil || !connected {
		return
	}
	data, _ := json.Marshal(protocol.TypingPayload{RoomID: roomID, IsTyping: isTyping})
	frame, _ := json.Marshal(protocol.Envelope{Event: protocol.EventTyping, Data: data})
	c.tryEnqueue(frame)
}
