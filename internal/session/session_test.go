package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Novack-secure/novack-chat-client/chat"
)

type sentCall struct {
	roomID, content, supplierID string
}

// fakeTransport records calls; function fields override the default
// always-succeed behavior.
type fakeTransport struct {
	mu     sync.Mutex
	joined []string
	left   []string
	sent   []sentCall
	bot    []sentCall

	joinErr error
	sendErr error
	histFn  func(roomID string) (chat.MessagePage, error)
}

func (f *fakeTransport) JoinRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roomID)
	return f.joinErr
}

func (f *fakeTransport) LeaveRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, roomID)
	return nil
}

func (f *fakeTransport) SendMessage(_ context.Context, roomID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCall{roomID: roomID, content: content})
	return f.sendErr
}

func (f *fakeTransport) SendBotMessage(_ context.Context, roomID, content, supplierID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bot = append(f.bot, sentCall{roomID: roomID, content: content, supplierID: supplierID})
	return nil
}

func (f *fakeTransport) RoomMessages(_ context.Context, roomID string, _ int, _ string) (chat.MessagePage, error) {
	if f.histFn != nil {
		return f.histFn(roomID)
	}
	return chat.MessagePage{Messages: []chat.Message{}}, nil
}

func (f *fakeTransport) leftRooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.left...)
}

var me = chat.Participant{ID: "me", Type: chat.SenderEmployee, Name: "Me", Email: "me@novack.io"}

func newSession(tr *fakeTransport) *Session {
	s := New(tr, nil, 0, nil)
	s.SetLocal(me)
	return s
}

func testRoom(id string) chat.ChatRoom {
	return chat.ChatRoom{ID: id, Name: id, RoomType: chat.RoomPrivate}
}

func TestOpenLoadsHistory(t *testing.T) {
	tr := &fakeTransport{
		histFn: func(roomID string) (chat.MessagePage, error) {
			return chat.MessagePage{Messages: []chat.Message{
				{ID: "m1", RoomID: roomID, Content: "old"},
				{ID: "m2", RoomID: roomID, Content: "older"},
			}}, nil
		},
	}
	s := newSession(tr)

	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "r1", cur.ID)
	assert.Equal(t, []string{"r1"}, tr.joined)
	tl := s.Timeline()
	require.Len(t, tl, 2)
	assert.Equal(t, "m1", tl[0].ID)
}

func TestOpenJoinFailureLeavesClosed(t *testing.T) {
	tr := &fakeTransport{joinErr: errors.New("join denied")}
	s := newSession(tr)

	err := s.Open(context.Background(), testRoom("r1"))
	require.Error(t, err)
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, s.Timeline())
}

func TestOpenHistoryFailureLeavesClosed(t *testing.T) {
	tr := &fakeTransport{
		histFn: func(string) (chat.MessagePage, error) {
			return chat.MessagePage{}, errors.New("server error")
		},
	}
	s := newSession(tr)

	err := s.Open(context.Background(), testRoom("r1"))
	require.Error(t, err)
	_, ok := s.Current()
	assert.False(t, ok)
	assert.Contains(t, tr.leftRooms(), "r1")
}

func TestOpenReplacesPreviousRoom(t *testing.T) {
	tr := &fakeTransport{
		histFn: func(roomID string) (chat.MessagePage, error) {
			return chat.MessagePage{Messages: []chat.Message{{ID: roomID + "-m", RoomID: roomID}}}, nil
		},
	}
	s := newSession(tr)

	require.NoError(t, s.Open(context.Background(), testRoom("r1")))
	require.NoError(t, s.Open(context.Background(), testRoom("r2")))

	cur, _ := s.Current()
	assert.Equal(t, "r2", cur.ID)
	tl := s.Timeline()
	require.Len(t, tl, 1)
	assert.Equal(t, "r2-m", tl[0].ID, "previous room's timeline is fully discarded")
	assert.Contains(t, tr.leftRooms(), "r1")
}

func TestCloseLeavesRoomAndClears(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	s.Close(context.Background())

	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, s.Timeline())
	assert.Equal(t, []string{"r1"}, tr.leftRooms())

	// idempotent
	s.Close(context.Background())
	assert.Equal(t, []string{"r1"}, tr.leftRooms())
}

func TestSendOptimisticAppend(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	require.NoError(t, s.Send(context.Background(), "hello"))

	tl := s.Timeline()
	require.Len(t, tl, 1)
	assert.Equal(t, "hello", tl[0].Content)
	assert.True(t, strings.HasPrefix(tl[0].ID, chat.TempIDPrefix))
	assert.Equal(t, "me", tl[0].SenderID)
	assert.Equal(t, chat.SenderEmployee, tl[0].SenderType)
	require.NotNil(t, tl[0].Sender)
	assert.Equal(t, "Me", tl[0].Sender.Name)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, sentCall{roomID: "r1", content: "hello"}, tr.sent[0])
}

func TestSendRollbackOnFailure(t *testing.T) {
	tr := &fakeTransport{sendErr: errors.New("network down")}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, s.Timeline(), "failed send must retract the optimistic entry")
}

func TestSendGuards(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)

	// no room open
	require.NoError(t, s.Send(context.Background(), "hello"))
	assert.Empty(t, tr.sent)

	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	// whitespace only
	require.NoError(t, s.Send(context.Background(), "   \t "))
	assert.Empty(t, tr.sent)
	assert.Empty(t, s.Timeline())
}

func TestApplyInboundReconcilesOptimistic(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))
	require.NoError(t, s.Send(context.Background(), "hello"))

	confirmed := chat.Message{ID: "srv-1", RoomID: "r1", Content: "hello", SenderID: "me", SenderType: chat.SenderEmployee}
	assert.True(t, s.ApplyInbound(confirmed))

	tl := s.Timeline()
	require.Len(t, tl, 1, "confirmed message replaces, never duplicates")
	assert.Equal(t, "srv-1", tl[0].ID)
	assert.False(t, tl[0].Pending())
}

func TestApplyInboundDeduplicatesByID(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	m := chat.Message{ID: "srv-1", RoomID: "r1", Content: "hi", SenderID: "other"}
	assert.True(t, s.ApplyInbound(m))
	assert.False(t, s.ApplyInbound(m))
	assert.False(t, s.ApplyInbound(m))

	assert.Len(t, s.Timeline(), 1)
}

func TestApplyInboundAppendsUnmatched(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))
	require.NoError(t, s.Send(context.Background(), "mine"))

	// different sender, same room: a regular inbound append
	other := chat.Message{ID: "srv-2", RoomID: "r1", Content: "theirs", SenderID: "alice"}
	assert.True(t, s.ApplyInbound(other))

	tl := s.Timeline()
	require.Len(t, tl, 2)
	assert.True(t, tl[0].Pending())
	assert.Equal(t, "srv-2", tl[1].ID)
}

func TestApplyInboundIgnoresOtherRooms(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	assert.False(t, s.ApplyInbound(chat.Message{ID: "m1", RoomID: "r2", Content: "elsewhere"}))
	assert.Empty(t, s.Timeline())

	s.Close(context.Background())
	assert.False(t, s.ApplyInbound(chat.Message{ID: "m2", RoomID: "r1"}))
}

func TestSendToBotSkipsOptimisticEcho(t *testing.T) {
	tr := &fakeTransport{}
	s := newSession(tr)
	require.NoError(t, s.Open(context.Background(), testRoom("r1")))

	require.NoError(t, s.SendToBot(context.Background(), "order status?", "sup-9"))

	assert.Empty(t, s.Timeline(), "bot sends have no local echo")
	require.Len(t, tr.bot, 1)
	assert.Equal(t, sentCall{roomID: "r1", content: "order status?", supplierID: "sup-9"}, tr.bot[0])

	// emptiness guard applies here too
	require.NoError(t, s.SendToBot(context.Background(), "  ", "sup-9"))
	assert.Len(t, tr.bot, 1)
}

func TestLateHistoryForClosedRoomIsDiscarded(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	tr := &fakeTransport{
		histFn: func(roomID string) (chat.MessagePage, error) {
			started <- struct{}{}
			<-release
			return chat.MessagePage{Messages: []chat.Message{{ID: "stale", RoomID: roomID}}}, nil
		},
	}
	s := newSession(tr)

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), testRoom("r1")) }()

	// close the room while its history fetch is still in flight
	<-started
	s.Close(context.Background())
	close(release)
	require.NoError(t, <-done)

	_, ok := s.Current()
	assert.False(t, ok)
	assert.Empty(t, s.Timeline(), "late history must not land on a stale timeline")
}
