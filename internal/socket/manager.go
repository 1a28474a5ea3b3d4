// Package socket owns the persistent connection to the desk server: the
// auth handshake, reconnection with exponential backoff, and the room
// membership set that is replayed after every reconnect (the server does
// not remember a client's subscriptions across connection instances).
package socket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/auth"
	"github.com/deskwire/deskd/internal/dispatch"
	"github.com/deskwire/deskd/internal/wire"
)

// TokenStore supplies the bearer token for handshakes and accepts
// refreshed tokens from an external auth flow.
type TokenStore interface {
	Token() string
	Set(token string)
}

// Config holds connection endpoints and retry tuning.
type Config struct {
	URL          string
	AccountID    string
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxAttempts  int
	WriteTimeout time.Duration
}

// Manager owns one persistent connection per client session.
type Manager struct {
	cfg        Config
	transport  Transport
	dispatcher *dispatch.Dispatcher
	tokens     TokenStore
	logger     *zap.Logger

	mu      sync.Mutex
	state   State
	rooms   map[string]struct{}
	conn    Conn
	gen     int
	closing bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager creates a disconnected manager. Call Connect to establish
// the connection; decoded frames are delivered through the dispatcher.
func NewManager(cfg Config, t Transport, d *dispatch.Dispatcher, tokens TokenStore, logger *zap.Logger) *Manager {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		transport:  t,
		dispatcher: d,
		tokens:     tokens,
		logger:     logger,
		state:      Disconnected,
		rooms:      make(map[string]struct{}),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Rooms returns the locally-tracked room membership set, sorted.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// Connect establishes the connection and performs the auth handshake.
// An auth rejection is returned (and dispatched) without retry; the
// caller supplies a fresh token via UpdateAuth and calls Connect again.
// A transport failure is also returned, but the manager moves to
// Reconnecting and keeps retrying with backoff in the background, the
// same as for a connection lost later.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Disconnected {
		st := m.state
		m.mu.Unlock()
		return fmt.Errorf("connect: connection is %s", st)
	}
	m.setStateLocked(Connecting)
	m.closing = false
	m.ctx, m.cancel = context.WithCancel(ctx)
	dialCtx := m.ctx
	m.mu.Unlock()

	conn, err := m.dial(dialCtx)
	if err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			m.mu.Lock()
			m.setStateLocked(Disconnected)
			m.mu.Unlock()
			m.dispatchInternal(wire.KindAuthError, &wire.AuthResult{Reason: authErr.Reason})
			return err
		}
		m.mu.Lock()
		m.setStateLocked(Reconnecting)
		m.mu.Unlock()
		go m.reconnect(dialCtx)
		return err
	}

	m.install(conn)
	return nil
}

// Disconnect closes the connection and stops any reconnection in
// progress. The room membership set is retained for the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn = nil
	if m.state != Disconnected {
		m.setStateLocked(Disconnected)
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// UpdateAuth replaces the bearer token used for subsequent handshakes.
// It does not re-authenticate a live connection; after an auth error the
// caller must Connect again explicitly.
func (m *Manager) UpdateAuth(token string) {
	m.tokens.Set(token)
}

// JoinRoom adds a room to the membership set and, when connected, sends
// the join request. Joining an already-joined room is a no-op. The set
// is updated even while disconnected so the next reconnect replays it.
func (m *Manager) JoinRoom(room string) error {
	m.mu.Lock()
	if _, ok := m.rooms[room]; ok {
		m.mu.Unlock()
		return nil
	}
	m.rooms[room] = struct{}{}
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	// A failed join is not retried here: the next reconnect replays the
	// whole membership set.
	return m.writeJoin(conn, room)
}

// LeaveRoom removes a room from the membership set and, when connected,
// sends the leave request. Leaving an unjoined room is a no-op.
func (m *Manager) LeaveRoom(room string) error {
	m.mu.Lock()
	if _, ok := m.rooms[room]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.rooms, room)
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	frame, err := wire.EncodeLeave(room)
	if err != nil {
		return err
	}
	return conn.WriteMessage(frame, time.Now().Add(m.cfg.WriteTimeout))
}

// SendTyping emits the operator-side typing indicator for a room.
// Best-effort: silently skipped while disconnected.
func (m *Manager) SendTyping(room string, on bool) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()
	if !connected {
		return nil
	}
	frame, err := wire.EncodeTyping(room, on)
	if err != nil {
		return err
	}
	return conn.WriteMessage(frame, time.Now().Add(m.cfg.WriteTimeout))
}

// dial opens a transport connection and runs the auth handshake: the
// first client frame is auth, the first server frame is auth_ok or
// auth_error.
func (m *Manager) dial(ctx context.Context) (Conn, error) {
	conn, err := m.transport.Dial(ctx, m.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}
	frame, err := wire.EncodeAuth(m.tokens.Token(), m.cfg.AccountID)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(frame, time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth frame: %w", err)
	}
	raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read auth reply: %w", err)
	}
	evt, err := wire.Decode(raw)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("decode auth reply: %w", err)
	}
	switch evt.Kind {
	case wire.KindAuthOK:
		return conn, nil
	case wire.KindAuthError:
		_ = conn.Close()
		reason := ""
		if r, ok := evt.Payload.(*wire.AuthResult); ok && r != nil {
			reason = r.Reason
		}
		return nil, &auth.Error{Reason: reason}
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected handshake reply %q", evt.Kind)
	}
}

// install adopts a freshly authenticated connection: replays the room
// membership set (exactly once per room) and starts the read loop.
// A dial that races Disconnect and wins is discarded here, not adopted.
func (m *Manager) install(conn Conn) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.gen++
	gen := m.gen
	m.setStateLocked(Connected)
	rooms := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()
	sort.Strings(rooms)

	for _, room := range rooms {
		if err := m.writeJoin(conn, room); err != nil {
			m.logger.Warn("room replay failed", zap.String("room", room), zap.Error(err))
		}
	}

	m.dispatchInternal(wire.KindConnectionEstablished, nil)
	go m.readLoop(conn, gen)
}

// readLoop is the single event loop: every decoded frame is dispatched
// synchronously from here, so handlers never see interleaved frames.
func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		evt, derr := wire.Decode(raw)
		if derr != nil {
			m.logger.Warn("dropping unrecognized frame", zap.Error(derr))
			continue
		}
		if evt.Kind == wire.KindAuthError {
			// Credentials revoked mid-connection: surface it and stop.
			// No auto-retry; a token refresh flow must reconnect us.
			m.mu.Lock()
			stale := m.closing || gen != m.gen
			if !stale {
				m.closing = true
				m.conn = nil
				m.setStateLocked(Disconnected)
			}
			m.mu.Unlock()
			_ = conn.Close()
			if !stale {
				m.dispatcher.Dispatch(evt)
			}
			return
		}
		m.dispatcher.Dispatch(evt)
	}

	m.mu.Lock()
	if m.closing || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.setStateLocked(Reconnecting)
	ctx := m.ctx
	m.mu.Unlock()

	m.dispatchInternal(wire.KindConnectionLost, nil)
	m.reconnect(ctx)
}

// reconnect retries with exponential backoff until success, an auth
// rejection, cancellation, or the attempt budget runs out. Exhaustion is
// terminal: the manager stays Disconnected until Connect is called again.
func (m *Manager) reconnect(ctx context.Context) {
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, attempt)
		m.logger.Info("reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		conn, err := m.dial(ctx)
		if err == nil {
			m.install(conn)
			return
		}

		var authErr *auth.Error
		if errors.As(err, &authErr) {
			m.mu.Lock()
			m.setStateLocked(Disconnected)
			m.mu.Unlock()
			m.dispatchInternal(wire.KindAuthError, &wire.AuthResult{Reason: authErr.Reason})
			return
		}
		m.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	m.mu.Lock()
	m.setStateLocked(Disconnected)
	m.mu.Unlock()
	m.logger.Error("reconnect attempts exhausted", zap.Int("attempts", m.cfg.MaxAttempts))
	m.dispatchInternal(wire.KindReconnectFailed, nil)
}

func (m *Manager) writeJoin(conn Conn, room string) error {
	frame, err := wire.EncodeJoin(room)
	if err != nil {
		return err
	}
	return conn.WriteMessage(frame, time.Now().Add(m.cfg.WriteTimeout))
}

func (m *Manager) dispatchInternal(kind wire.Kind, payload any) {
	m.dispatcher.Dispatch(wire.Event{
		Kind:       kind,
		ReceivedAt: time.Now(),
		Payload:    payload,
	})
}

// setStateLocked applies a state transition. Invalid transitions are a
// programming error; they are logged and refused rather than applied.
func (m *Manager) setStateLocked(to State) {
	if m.state == to {
		return
	}
	if !canTransition(m.state, to) {
		m.logger.Error("invalid connection state transition",
			zap.String("from", string(m.state)),
			zap.String("to", string(to)))
		return
	}
	m.logger.Info("connection state",
		zap.String("from", string(m.state)),
		zap.String("to", string(to)))
	m.state = to
}
