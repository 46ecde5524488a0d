// Package transport maintains the single persistent websocket to the
// messaging server: handshake, request/acknowledgment correlation,
// bounded reconnection, and raw event dispatch. It knows nothing about
// which room is open or what the caller does with a message.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Novack-secure/novack-chat-client/chat"
	"github.com/Novack-secure/novack-chat-client/internal/protocol"
)

// State is the connection lifecycle state.
type State int32

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
	ErrNotConnected   = errors.New("transport: not connected")
	ErrConnectTimeout = errors.New("transport: timed out waiting for server acknowledgment")
	ErrRequestTimeout = errors.New("transport: request timed out")
	ErrRejected       = errors.New("transport: server rejected request")
)

// authMarkers identify a server-reported failure as an authentication
// problem rather than a transient network one. Auth failures are never
// retried; the credential owner is told to clear the token instead.
var authMarkers = []string{
	"unauthorized",
	"unauthenticated",
	"authentication",
	"forbidden",
	"invalid token",
	"token expired",
	"jwt",
}

func isAuthFailure(reason string) bool {
	reason = strings.ToLower(reason)
	for _, m := range authMarkers {
		if strings.Contains(reason, m) {
			return true
		}
	}
	return false
}

// Handlers receive inbound pushes and lifecycle transitions. All fields
// are optional. OnConnected fires after every successful handshake,
// including reconnects, so the owner can refresh server-derived state.
type Handlers struct {
	OnConnected   func()
	OnNewMessage  func(chat.Message)
	OnRoomCreated func(chat.ChatRoom)
	OnRoomUpdate  func(chat.ChatRoom)
	OnTyping      func(roomID, userID string, isTyping bool)
	OnStateChange func(State)
	OnAuthFailure func(reason string)
}

// Config tunes the socket. Zero values take the defaults below.
type Config struct {
	URL string

	ConnectTimeout time.Duration // wait for the connected ack, default 10s
	RequestTimeout time.Duration // per request/ack exchange, default 5s
	HistoryTimeout time.Duration // getRoomMessages only, default 15s

	ReconnectAttempts  int           // default 5
	ReconnectBaseDelay time.Duration // default 500ms, doubled per attempt
	ReconnectMaxDelay  time.Duration // default 5s

	Log *zap.SugaredLogger
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.HistoryTimeout <= 0 {
		c.HistoryTimeout = 15 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 5 * time.Second
	}
	if c.Log == nil {
		c.Log = zap.NewNop().Sugar()
	}
}

// wsConn bundles one live websocket with its outbound queue.
type wsConn struct {
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	lastReason  string // most recent server-pushed disconnect reason
	established bool   // server's connected ack was observed
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *wsConn) enqueue(b []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	case c.send <- b:
		return nil
	}
}

// tryEnqueue drops the frame when the queue is saturated; used for
// advisory traffic that must never block.
func (c *wsConn) tryEnqueue(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *wsConn) setReason(r string) {
	c.mu.Lock()
	c.lastReason = r
	c.mu.Unlock()
}

func (c *wsConn) reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReason
}

func (c *wsConn) markEstablished() {
	c.mu.Lock()
	c.established = true
	c.mu.Unlock()
}

func (c *wsConn) isEstablished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// Socket owns the single connection to the messaging endpoint.
type Socket struct {
	cfg      Config
	log      *zap.SugaredLogger
	handlers Handlers
	dialer   *websocket.Dialer

	mu         sync.Mutex
	conn       *wsConn
	state      State
	connecting bool
	closed     bool // deliberate Disconnect, suppresses reconnect
	token      string

	pendingMu sync.Mutex
	pending   map[string]chan json.RawMessage
}

// New builds a socket. Handlers may be zero; they are invoked from the
// socket's own goroutines and must not block indefinitely.
func New(cfg Config, handlers Handlers) *Socket {
	cfg.applyDefaults()
	return &Socket{
		cfg:      cfg,
		log:      cfg.Log,
		handlers: handlers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		pending: make(map[string]chan json.RawMessage),
	}
}

// RequestTimeout exposes the per-request timeout so owners can bound
// work they perform around requests.
func (s *Socket) RequestTimeout() time.Duration {
	return s.cfg.RequestTimeout
}

// State returns the current lifecycle state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	if h := s.handlers.OnStateChange; h != nil {
		h(st)
	}
}

// Connect dials the server and waits for its application-level
// "connected" acknowledgment. A transport-level handshake alone does not
// resolve the call. A concurrent Connect while one is already in flight
// is a no-op; an already-established connection is torn down first.
func (s *Socket) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.closed = false
	old := s.conn
	s.conn = nil
	s.mu.Unlock()

	if old != nil {
		old.close()
	}

	err := s.dial(ctx, token)

	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()
	return err
}

func (s *Socket) dial(ctx context.Context, token string) error {
	s.setState(StateConnecting)

	// the token travels both as a query parameter and an Authorization
	// header; older server builds read one or the other
	u := s.cfg.URL
	if strings.Contains(u, "?") {
		u += "&token=" + url.QueryEscape(token)
	} else {
		u += "?token=" + url.QueryEscape(token)
	}
	hdr := http.Header{"Authorization": []string{"Bearer " + token}}

	ws, _, err := s.dialer.DialContext(ctx, u, hdr)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("transport: dial %s: %w", s.cfg.URL, err)
	}

	c := newWSConn(ws)
	handshake := make(chan error, 1)

	s.mu.Lock()
	s.conn = c
	s.token = token
	s.mu.Unlock()

	go s.writePump(c)
	go s.readPump(c, handshake)

	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case err := <-handshake:
		if err != nil {
			s.dropConn(c)
			if reason := c.reason(); isAuthFailure(reason) {
				s.authFailed(reason)
			} else {
				s.setState(StateDisconnected)
			}
			return err
		}
	case <-timer.C:
		s.dropConn(c)
		s.setState(StateDisconnected)
		return ErrConnectTimeout
	case <-ctx.Done():
		s.dropConn(c)
		s.setState(StateDisconnected)
		return ctx.Err()
	}

	s.setState(StateConnected)
	s.log.Infow("connected to messaging server", "url", s.cfg.URL)
	if h := s.handlers.OnConnected; h != nil {
		h()
	}
	return nil
}

// dropConn detaches and closes c without triggering reconnection.
func (s *Socket) dropConn(c *wsConn) {
	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
	}
	s.mu.Unlock()
	c.close()
}

// Disconnect tears the channel down. Idempotent; safe when not connected.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	s.closed = true
	s.token = ""
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	if c != nil {
		c.close()
	}
	s.failPending()
	s.setState(StateDisconnected)
}

func (s *Socket) readPump(c *wsConn, handshake chan<- error) {
	defer s.onConnLost(c)

	acked := false
	sendHandshake := func(err error) {
		if acked {
			return
		}
		acked = true
		handshake <- err
	}

	c.ws.SetReadLimit(64 * 1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if reason := closeReason(err); reason != "" {
				c.setReason(reason)
			}
			sendHandshake(fmt.Errorf("transport: connection closed: %w", err))
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debugw("dropping malformed frame", "error", err)
			continue
		}

		switch env.Event {
		case protocol.EventConnected:
			// established here, not in dial, so a drop racing the
			// handshake result still routes to the retry policy
			c.markEstablished()
			sendHandshake(nil)

		case protocol.EventAck:
			s.resolvePending(env)

		case protocol.EventNewMessage:
			if h := s.handlers.OnNewMessage; h != nil {
				h(protocol.MessageFromWire(env.Data))
			}

		case protocol.EventRoomCreated:
			if h := s.handlers.OnRoomCreated; h != nil {
				h(protocol.RoomFromWire(env.Data))
			}

		case protocol.EventRoomUpdate:
			if h := s.handlers.OnRoomUpdate; h != nil {
				h(protocol.RoomFromWire(env.Data))
			}

		case protocol.EventUserTyping:
			if h := s.handlers.OnTyping; h != nil {
				var ev protocol.TypingEvent
				_ = json.Unmarshal(env.Data, &ev)
				h(ev.RoomID, ev.UserID, ev.IsTyping)
			}

		case protocol.EventDisconnect:
			var ev protocol.DisconnectEvent
			_ = json.Unmarshal(env.Data, &ev)
			c.setReason(ev.Reason)
			if isAuthFailure(ev.Reason) {
				sendHandshake(fmt.Errorf("transport: rejected by server: %s", ev.Reason))
			}

		default:
			s.log.Debugw("ignoring unknown event", "event", env.Event)
		}
	}
}

func (s *Socket) writePump(c *wsConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// onConnLost runs when a connection's read pump exits. A connection that
// is no longer current was replaced or deliberately closed; everything
// else is an unexpected drop that triggers the retry policy.
func (s *Socket) onConnLost(c *wsConn) {
	c.close()

	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	deliberate := s.closed
	s.mu.Unlock()

	s.failPending()

	// a connection lost before its handshake completed is a failed
	// connect attempt; dial reports that to its caller
	if !c.isEstablished() {
		return
	}

	if deliberate {
		s.setState(StateDisconnected)
		return
	}

	reason := c.reason()
	if isAuthFailure(reason) {
		s.authFailed(reason)
		return
	}

	s.log.Warnw("connection lost", "reason", reason)
	go s.reconnect()
}

// authFailed clears the stored credential and notifies the owner so the
// external token holder can drop it and redirect to login. No retry.
func (s *Socket) authFailed(reason string) {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	s.setState(StateDisconnected)
	s.log.Warnw("authentication rejected, not retrying", "reason", reason)
	if h := s.handlers.OnAuthFailure; h != nil {
		h(reason)
	}
}

func (s *Socket) reconnect() {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		s.setState(StateDisconnected)
		return
	}

	delay := s.cfg.ReconnectBaseDelay
	for attempt := 1; attempt <= s.cfg.ReconnectAttempts; attempt++ {
		s.setState(StateConnecting)
		time.Sleep(delay)
		if delay *= 2; delay > s.cfg.ReconnectMaxDelay {
			delay = s.cfg.ReconnectMaxDelay
		}

		s.mu.Lock()
		stop := s.closed || s.conn != nil || s.token == ""
		s.mu.Unlock()
		if stop {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
		err := s.dial(ctx, token)
		cancel()
		if err == nil {
			s.log.Infow("reconnected", "attempt", attempt)
			return
		}

		s.mu.Lock()
		authed := s.token == "" // cleared by the auth-failure path
		s.mu.Unlock()
		if authed {
			return
		}
		s.log.Warnw("reconnect attempt failed", "attempt", attempt, "error", err)
	}

	s.log.Errorw("reconnect attempts exhausted", "attempts", s.cfg.ReconnectAttempts)
	s.setState(StateDisconnected)
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Text
	}
	return ""
}

// request performs one request/acknowledgment exchange with its own
// timeout. Late acks after the timeout are discarded.
func (s *Socket) request(ctx context.Context, event string, payload any, timeout time.Duration) (json.RawMessage, error) {
	s.mu.Lock()
	c := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if c == nil || !connected {
		return nil, ErrNotConnected
	}

	env := protocol.Envelope{Event: event, ID: uuid.NewString()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("transport: encode %s: %w", event, err)
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s: %w", event, err)
	}

	ch := make(chan json.RawMessage, 1)
	s.pendingMu.Lock()
	s.pending[env.ID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, env.ID)
		s.pendingMu.Unlock()
	}()

	if err := c.enqueue(frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, event, timeout)
	case <-c.done:
		return nil, ErrNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Socket) resolvePending(env protocol.Envelope) {
	s.pendingMu.Lock()
	ch, ok := s.pending[env.ID]
	if ok {
		delete(s.pending, env.ID)
	}
	s.pendingMu.Unlock()
	if ok {
		ch <- env.Data
	}
}

// failPending aborts every in-flight request; their callers observe a
// closed channel and report ErrNotConnected.
func (s *Socket) failPending() {
	s.pendingMu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
}
