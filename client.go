// Package chatclient is the messaging client core for the Novack visitor
// management platform: a connection orchestrator that keeps one live
// channel to the messaging server, mirrors the principal's room list, and
// mediates the optimistic send/receive flow for the open room. Consumers
// depend on this package only; the transport, wire mapping, room
// directory and room session live underneath it.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Novack-secure/novack-chat-client/chat"
	"github.com/Novack-secure/novack-chat-client/internal/session"
	"github.com/Novack-secure/novack-chat-client/internal/store"
	"github.com/Novack-secure/novack-chat-client/internal/transport"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected = transport.ErrNotConnected
	ErrNoCredential = errors.New("chatclient: no credential available")
	ErrUnknownRoom  = errors.New("chatclient: unknown room")
)

// CredentialStore owns the opaque bearer token. The client only forwards
// the token; on an authentication failure it calls Clear so the owner can
// drop the credential and route the user back to login.
type CredentialStore interface {
	Token() (string, error)
	Clear()
}

// Events are the notifications a consumer can subscribe to. All fields
// are optional. Callbacks fire on the client's goroutines; treat them as
// re-render triggers and read fresh snapshots, not as data carriers.
type Events struct {
	RoomsChanged    func()
	TimelineChanged func()
	StateChanged    func(State)
	UserTyping      func(roomID, userID string, isTyping bool)
}

// Config wires a Client.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. wss://host/chat.
	ServerURL string
	// Credentials supplies and invalidates the bearer token. Required.
	Credentials CredentialStore
	// Principal identifies the local sender. When nil it is derived
	// from the token's unverified claims at connect time.
	Principal *chat.Participant
	// HistoryLimit is the page size of the initial history fetch.
	HistoryLimit int
	// RefreshDelay postpones the room-list reconcile that follows a
	// createPrivateRoom. Defaults to 500ms.
	RefreshDelay time.Duration

	// Connection tuning; zero values take the transport defaults
	// (10s connect, 5s request, 15s history, 5 reconnect attempts
	// with capped backoff up to 5s).
	ConnectTimeout     time.Duration
	RequestTimeout     time.Duration
	HistoryTimeout     time.Duration
	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	Events Events
	Log    *zap.SugaredLogger
}

// Client is the connection orchestrator. Construct one per authenticated
// session with New; it owns its room directory and room session
// exclusively, so tests and multi-account setups can hold isolated
// instances side by side.
type Client struct {
	cfg    Config
	log    *zap.SugaredLogger
	sock   *transport.Socket
	rooms  *store.Directory
	sess   *session.Session
	typing *rate.Limiter
}

// New builds a Client. It does not connect; call OnAuthenticated once the
// ambient authentication state holds a usable credential.
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("chatclient: ServerURL is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("chatclient: Credentials is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = 500 * time.Millisecond
	}

	c := &Client{
		cfg:   cfg,
		log:   cfg.Log,
		rooms: store.NewDirectory(),
		// one typing notification per 500ms is plenty for an indicator
		typing: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}

	tcfg := transport.Config{
		URL:                cfg.ServerURL,
		ConnectTimeout:     cfg.ConnectTimeout,
		RequestTimeout:     cfg.RequestTimeout,
		HistoryTimeout:     cfg.HistoryTimeout,
		ReconnectAttempts:  cfg.ReconnectAttempts,
		ReconnectBaseDelay: cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.ReconnectMaxDelay,
		Log:                cfg.Log,
	}
	var onState func(transport.State)
	if cfg.Events.StateChanged != nil {
		onState = func(st transport.State) { cfg.Events.StateChanged(State(st)) }
	}
	c.sock = transport.New(tcfg, transport.Handlers{
		OnConnected:   c.handleConnected,
		OnNewMessage:  c.handleNewMessage,
		OnRoomCreated: c.handleRoomCreated,
		OnRoomUpdate:  c.handleRoomUpdate,
		OnTyping:      cfg.Events.UserTyping,
		OnStateChange: onState,
		OnAuthFailure: c.handleAuthFailure,
	})
	c.sess = session.New(c.sock, cfg.Log, cfg.HistoryLimit, cfg.Events.TimelineChanged)
	return c, nil
}

// OnAuthenticated is invoked by the authentication collaborator when the
// ambient state becomes "authenticated with a known principal". It
// connects (no-op when already connected) and the room list refresh runs
// as part of the successful handshake.
func (c *Client) OnAuthenticated(ctx context.Context) error {
	if c.State() == StateConnected {
		return nil
	}
	token, err := c.cfg.Credentials.Token()
	if err != nil {
		return fmt.Errorf("chatclient: credential: %w", err)
	}
	if token == "" {
		return ErrNoCredential
	}

	p := c.cfg.Principal
	if p == nil {
		derived := principalFromToken(token)
		p = &derived
	}
	c.sess.SetLocal(*p)

	return c.sock.Connect(ctx, token)
}

// OnSessionEnded is invoked when the authenticated session ends or the
// owning surface goes away. It always disconnects, regardless of
// authentication state, so no live connection outlives its owner.
func (c *Client) OnSessionEnded() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.sess.Close(ctx)
	c.sock.Disconnect()
}

// Close tears the client down. Alias of OnSessionEnded for defer use.
func (c *Client) Close() { c.OnSessionEnded() }

// State returns the connection lifecycle state.
func (c *Client) State() State { return State(c.sock.State()) }

// Rooms returns the room list snapshot, most recently updated first.
func (c *Client) Rooms() []chat.ChatRoom { return c.rooms.Rooms() }

// CurrentRoom returns the open room, if any.
func (c *Client) CurrentRoom() (chat.ChatRoom, bool) { return c.sess.Current() }

// Timeline returns the open room's message sequence.
func (c *Client) Timeline() []chat.Message { return c.sess.Timeline() }

// OpenRoom joins roomID and loads its first history page, replacing any
// previously open room.
func (c *Client) OpenRoom(ctx context.Context, roomID string) error {
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	return c.sess.Open(ctx, room)
}

// CloseRoom leaves the open room, if any.
func (c *Client) CloseRoom(ctx context.Context) { c.sess.Close(ctx) }

// Send posts content to the open room with optimistic local echo.
func (c *Client) Send(ctx context.Context, content string) error {
	return c.sess.Send(ctx, content)
}

// SendToBot posts content to the supplier bot for the open room.
func (c *Client) SendToBot(ctx context.Context, content, supplierID string) error {
	return c.sess.SendToBot(ctx, content, supplierID)
}

// MarkAsRead reports the room as read and clears its local unread count.
// The count only ever drops through this explicit call, never as a side
// effect of receiving messages.
func (c *Client) MarkAsRead(ctx context.Context, roomID string) error {
	if err := c.sock.MarkAsRead(ctx, roomID); err != nil {
		return err
	}
	if c.rooms.ClearUnread(roomID) {
		c.emitRoomsChanged()
	}
	return nil
}

// Typing emits the advisory typing indicator for the room. Start events
// are rate limited; stop events always go out.
func (c *Client) Typing(roomID string, isTyping bool) {
	if isTyping && !c.typing.Allow() {
		return
	}
	c.sock.Typing(roomID, isTyping)
}

// CreatePrivateRoom returns a two-party room with the target principal,
// reusing an existing one when the directory already has it. On a fresh
// create the server's immediate response is inserted right away and a
// delayed full refresh reconciles with the authoritative listing.
func (c *Client) CreatePrivateRoom(ctx context.Context, targetID string, targetType chat.SenderType) (chat.ChatRoom, error) {
	if room, ok := c.rooms.FindByParticipant(targetID); ok {
		return room, nil
	}
	if c.State() != StateConnected {
		return chat.ChatRoom{}, ErrNotConnected
	}

	room, err := c.sock.CreatePrivateRoom(ctx, targetID, string(targetType))
	if err != nil {
		return chat.ChatRoom{}, err
	}
	if c.rooms.Upsert(room) {
		c.emitRoomsChanged()
	}

	// the immediate response can be a partial view; pick up the
	// server's authoritative record shortly after, best effort
	time.AfterFunc(c.cfg.RefreshDelay, func() {
		rctx, cancel := context.WithTimeout(context.Background(), c.sock.RequestTimeout())
		defer cancel()
		if err := c.refreshRooms(rctx); err != nil {
			c.log.Warnw("room refresh after create failed", "error", err)
		}
	})
	return room, nil
}

func (c *Client) emitRoomsChanged() {
	if h := c.cfg.Events.RoomsChanged; h != nil {
		h()
	}
}

func (c *Client) refreshRooms(ctx context.Context) error {
	rooms, err := c.sock.Rooms(ctx)
	if err != nil {
		return err
	}
	c.rooms.ReplaceAll(rooms)
	c.emitRoomsChanged()
	return nil
}

// handleConnected runs after every successful handshake, initial and
// reconnect alike. A connection without a room list is useless to the
// caller, so the wholesale refresh happens here.
func (c *Client) handleConnected() {
	ctx, cancel := context.WithTimeout(context.Background(), c.sock.RequestTimeout())
	defer cancel()
	if err := c.refreshRooms(ctx); err != nil {
		c.log.Warnw("room list refresh failed", "error", err)
	}
}

// handleNewMessage fans one inbound message out to both stateful sinks:
// the open room's timeline and the directory's last-message preview.
func (c *Client) handleNewMessage(m chat.Message) {
	c.sess.ApplyInbound(m)
	if c.rooms.UpdateLastMessage(m.RoomID, m) {
		c.emitRoomsChanged()
	}
}

func (c *Client) handleRoomCreated(room chat.ChatRoom) {
	if c.rooms.Upsert(room) {
		c.emitRoomsChanged()
	}
}

func (c *Client) handleRoomUpdate(room chat.ChatRoom) {
	if c.rooms.Merge(room) {
		c.emitRoomsChanged()
	}
}

func (c *Client) handleAuthFailure(reason string) {
	c.log.Warnw("credential rejected, clearing stored token", "reason", reason)
	c.cfg.Credentials.Clear()
}
