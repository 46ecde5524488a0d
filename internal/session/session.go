// Package session tracks the one room currently open in the UI and its
// message timeline, including the optimistic-append/reconcile send path.
package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Novack-secure/novack-chat-client/chat"
)

// Transport is the slice of the connection layer a session needs.
type Transport interface {
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, roomID, content string) error
	SendBotMessage(ctx context.Context, roomID, content, supplierID string) error
	RoomMessages(ctx context.Context, roomID string, limit int, cursor string) (chat.MessagePage, error)
}

const defaultHistoryLimit = 50

// Session is the single active room. At most one room is open at a time;
// opening another discards the previous timeline entirely.
type Session struct {
	tr           Transport
	log          *zap.SugaredLogger
	historyLimit int
	onChange     func()

	mu       sync.Mutex
	local    chat.Participant
	room     *chat.ChatRoom
	timeline []chat.Message
	epoch    uint64 // bumped on every open/close; stale async results are discarded
}

// New builds a session. onChange, if non-nil, fires after every timeline
// mutation, outside internal locks.
func New(tr Transport, log *zap.SugaredLogger, historyLimit int, onChange func()) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Session{tr: tr, log: log, historyLimit: historyLimit, onChange: onChange}
}

// SetLocal records the authenticated local principal used to stamp
// optimistic messages.
func (s *Session) SetLocal(p chat.Participant) {
	s.mu.Lock()
	s.local = p
	s.mu.Unlock()
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Open makes room current: joins it and loads the first history page,
// replacing whatever timeline was loaded before. A failed join or a
// failed (non-timeout) history fetch leaves the session closed.
func (s *Session) Open(ctx context.Context, room chat.ChatRoom) error {
	s.mu.Lock()
	s.epoch++
	e := s.epoch
	prev := s.room
	r := room.Clone()
	s.room = &r
	s.timeline = nil
	s.mu.Unlock()
	s.notify()

	if prev != nil {
		if err := s.tr.LeaveRoom(ctx, prev.ID); err != nil {
			s.log.Debugw("leave of previous room failed", "room", prev.ID, "error", err)
		}
	}

	if err := s.tr.JoinRoom(ctx, room.ID); err != nil {
		s.abandon(e)
		return err
	}

	page, err := s.tr.RoomMessages(ctx, room.ID, s.historyLimit, "")
	if err != nil {
		if lerr := s.tr.LeaveRoom(ctx, room.ID); lerr != nil {
			s.log.Debugw("leave after failed history fetch failed", "room", room.ID, "error", lerr)
		}
		s.abandon(e)
		return err
	}

	s.mu.Lock()
	if s.epoch != e {
		// the room was closed or replaced while the fetch was in
		// flight; its result no longer has a home
		s.mu.Unlock()
		return nil
	}
	s.timeline = append([]chat.Message(nil), page.Messages...)
	s.mu.Unlock()
	s.notify()
	return nil
}

// abandon resets to closed, but only if no newer open/close happened.
func (s *Session) abandon(epoch uint64) {
	s.mu.Lock()
	if s.epoch == epoch {
		s.room = nil
		s.timeline = nil
	}
	s.mu.Unlock()
	s.notify()
}

// Close leaves the current room and clears the timeline. No-op when
// nothing is open.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	room := s.room
	s.room = nil
	s.timeline = nil
	s.epoch++
	s.mu.Unlock()

	if room == nil {
		return
	}
	if err := s.tr.LeaveRoom(ctx, room.ID); err != nil {
		s.log.Debugw("leave room failed", "room", room.ID, "error", err)
	}
	s.notify()
}

// Current returns a copy of the open room, if any.
func (s *Session) Current() (chat.ChatRoom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return chat.ChatRoom{}, false
	}
	return s.room.Clone(), true
}

// Timeline returns a copy of the open room's message sequence.
func (s *Session) Timeline() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.timeline...)
}

func tempID() string {
	return chat.TempIDPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)
}

// Send appends an optimistic message, dispatches it, and rolls the
// optimistic entry back if the dispatch fails. Empty or whitespace-only
// content, or no open room, is a silent no-op.
func (s *Session) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return nil
	}
	roomID := s.room.ID
	optimistic := chat.Message{
		ID:         tempID(),
		Content:    content,
		RoomID:     roomID,
		SenderType: s.local.Type,
		SenderID:   s.local.ID,
		CreatedAt:  time.Now(),
		Sender:     &chat.Sender{Name: s.local.Name, Email: s.local.Email},
	}
	s.timeline = append(s.timeline, optimistic)
	s.mu.Unlock()
	s.notify()

	if err := s.tr.SendMessage(ctx, roomID, content); err != nil {
		s.retract(optimistic.ID)
		return err
	}
	return nil
}

// retract removes a rolled-back optimistic entry by its temporary id.
func (s *Session) retract(id string) {
	s.mu.Lock()
	for i, m := range s.timeline {
		if m.ID == id {
			s.timeline = append(s.timeline[:i], s.timeline[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// SendToBot dispatches a supplier-bot message. No optimistic entry is
// synthesized; the bot's reply arrives over the inbound path.
func (s *Session) SendToBot(ctx context.Context, content, supplierID string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return nil
	}
	roomID := s.room.ID
	s.mu.Unlock()
	return s.tr.SendBotMessage(ctx, roomID, content, supplierID)
}

// ApplyInbound merges a server-pushed message into the timeline:
//
//  1. a message for some other room (or no room open) is ignored;
//  2. an id already present is a duplicate delivery and is dropped;
//  3. an optimistic entry with the same content and sender is replaced
//     in place by its confirmed counterpart;
//  4. everything else is appended.
//
// Reconciliation is keyed on content+sender rather than on the send
// call's own ack, so it is correct whichever of the two arrives first.
func (s *Session) ApplyInbound(m chat.Message) bool {
	s.mu.Lock()

	if s.room == nil || m.RoomID != s.room.ID {
		s.mu.Unlock()
		return false
	}

	for _, ex := range s.timeline {
		if ex.ID == m.ID {
			s.mu.Unlock()
			return false
		}
	}

	replaced := false
	for i, ex := range s.timeline {
		if ex.Pending() && ex.Content == m.Content && ex.SenderID == m.SenderID {
			s.timeline[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		s.timeline = append(s.timeline, m)
	}
	s.mu.Unlock()
	s.notify()
	return true
}
