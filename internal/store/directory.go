// Package store holds the session's authoritative in-memory room set.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Novack-secure/novack-chat-client/chat"
)

// Directory is the canonical collection of rooms the local principal
// belongs to, keyed by room id. Rooms are never deleted; they live for
// the process lifetime or until the next wholesale refresh.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]chat.ChatRoom
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]chat.ChatRoom)}
}

// Upsert inserts the room if its id is unseen and reports whether it did.
// A duplicate insert is a no-op: it never overwrites the existing entry.
func (d *Directory) Upsert(room chat.ChatRoom) bool {
	if room.ID == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[room.ID]; ok {
		return false
	}
	d.rooms[room.ID] = room.Clone()
	return true
}

// Merge applies a server-pushed room update: targeted field replacement
// for a known room, plain insert for an unknown one.
func (d *Directory) Merge(room chat.ChatRoom) bool {
	if room.ID == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.rooms[room.ID]
	if !ok {
		d.rooms[room.ID] = room.Clone()
		return true
	}
	if room.Name != "" {
		cur.Name = room.Name
	}
	if room.LastMessage != nil {
		lm := *room.LastMessage
		cur.LastMessage = &lm
	}
	if len(room.Participants) > 0 {
		cur.Participants = append([]chat.Participant(nil), room.Participants...)
	}
	cur.UnreadCount = room.UnreadCount
	if !room.UpdatedAt.IsZero() {
		cur.UpdatedAt = room.UpdatedAt
	}
	d.rooms[room.ID] = cur
	return true
}

// UpdateLastMessage replaces the room's last-message pointer and advances
// its updated-at stamp. No-op for an unknown room: a missing room must
// not be conjured up as a side effect.
func (d *Directory) UpdateLastMessage(roomID string, m chat.Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	msg := m
	room.LastMessage = &msg
	room.UpdatedAt = time.Now()
	d.rooms[roomID] = room
	return true
}

// ClearUnread zeroes the room's unread counter.
func (d *Directory) ClearUnread(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	room.UnreadCount = 0
	d.rooms[roomID] = room
	return true
}

// FindByParticipant returns the private room, if any, whose participant
// set includes userID. Used to reuse an existing conversation instead of
// creating a second one for the same pair.
func (d *Directory) FindByParticipant(userID string) (chat.ChatRoom, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, room := range d.rooms {
		if room.RoomType == chat.RoomPrivate && room.HasParticipant(userID) {
			return room.Clone(), true
		}
	}
	return chat.ChatRoom{}, false
}

// ReplaceAll swaps the whole collection for a fresh server listing.
func (d *Directory) ReplaceAll(rooms []chat.ChatRoom) {
	next := make(map[string]chat.ChatRoom, len(rooms))
	for _, r := range rooms {
		if r.ID == "" {
			continue
		}
		next[r.ID] = r.Clone()
	}
	d.mu.Lock()
	d.rooms = next
	d.mu.Unlock()
}

// Get returns a copy of the room with the given id.
func (d *Directory) Get(roomID string) (chat.ChatRoom, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return chat.ChatRoom{}, false
	}
	return room.Clone(), true
}

// Len returns the number of rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Rooms returns a snapshot sorted most-recently-updated first, the order
// a chat list renders in.
func (d *Directory) Rooms() []chat.ChatRoom {
	d.mu.RLock()
	out := make([]chat.ChatRoom, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r.Clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
