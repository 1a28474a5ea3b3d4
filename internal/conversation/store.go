// Package conversation maintains the canonical per-contact message
// stream: snapshot loads, idempotent merges of socket events, optimistic
// sends with correlation-id reconciliation, ticket-episode derivation and
// read markers. Every merged record is written through to the SQLite
// archive, and derived changes are published on the bus.
package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/bus"
	"github.com/deskwire/deskd/internal/dispatch"
	"github.com/deskwire/deskd/internal/episode"
	"github.com/deskwire/deskd/internal/rest"
	"github.com/deskwire/deskd/internal/store"
	"github.com/deskwire/deskd/internal/wire"
)

// ViewMode selects how a conversation timeline is presented.
type ViewMode string

const (
	ViewUnified   ViewMode = "unified"
	ViewPerTicket ViewMode = "per-ticket"
)

// RoomManager is the slice of the connection manager the store needs.
type RoomManager interface {
	JoinRoom(room string) error
	LeaveRoom(room string) error
}

// API is the slice of the REST client the store needs.
type API interface {
	Conversation(ctx context.Context, contactID string) (*rest.Snapshot, error)
	SendMessage(ctx context.Context, contactID string, req rest.SendRequest) (*wire.Message, error)
	MarkRead(ctx context.Context, contactID string) error
}

// Config holds store tuning.
type Config struct {
	SendTimeout time.Duration
}

// conversationState is the in-memory canonical state for one contact.
type conversationState struct {
	contactID   string
	contactName string
	messages    []*store.Message // ascending by (timestamp, msg_id)
	episodes    []episode.Episode
	lastReadAt  int64
	unread      int
	loaded      bool

	viewMode        ViewMode
	selectedEpisode int // index into episodes; -1 when none
}

// Snapshot is a copy of one contact's conversation state, safe to read
// without holding the store's lock.
type Snapshot struct {
	ContactID       string
	ContactName     string
	Messages        []*store.Message
	Episodes        []episode.Episode
	LastReadAt      int64
	UnreadCount     int
	Loaded          bool
	ViewMode        ViewMode
	SelectedEpisode int
}

// Store is the conversation store. All state mutations happen under one
// mutex so a merge and an episode recompute for the same contact can
// never interleave.
type Store struct {
	cfg    Config
	rooms  RoomManager
	api    API
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	convs   map[string]*conversationState
	tickets map[string]*store.Ticket
	pending map[string]*pendingSend
	active  string
	loadGen map[string]uint64
}

// New creates a conversation store. db and eventBus may be nil in tests;
// archive writes and bus publications are then skipped.
func New(cfg Config, rooms RoomManager, api API, db *store.DB, eventBus *bus.Bus, logger *zap.Logger) *Store {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:     cfg,
		rooms:   rooms,
		api:     api,
		db:      db,
		bus:     eventBus,
		logger:  logger,
		now:     time.Now,
		convs:   make(map[string]*conversationState),
		tickets: make(map[string]*store.Ticket),
		pending: make(map[string]*pendingSend),
		loadGen: make(map[string]uint64),
	}
}

// Bind registers the store's handlers on the dispatcher.
func (s *Store) Bind(d *dispatch.Dispatcher) {
	d.On(wire.KindMessageReceived, func(evt wire.Event) {
		if m, ok := evt.Payload.(*wire.Message); ok {
			s.AppendIncoming(m.ToStoreMessage())
		}
	})
	d.On(wire.KindMessageSent, func(evt wire.Event) {
		m, ok := evt.Payload.(*wire.Message)
		if !ok {
			return
		}
		if m.CorrelationID != "" && s.ConfirmSend(m.CorrelationID, m) {
			return
		}
		// A send from another device or agent: plain merge.
		s.AppendIncoming(m.ToStoreMessage())
	})
	d.On(wire.KindMessageStatusUpdate, func(evt wire.Event) {
		if u, ok := evt.Payload.(*wire.StatusUpdate); ok {
			s.ApplyStatus(u)
		}
	})
	d.On(wire.KindTicketCreated, func(evt wire.Event) {
		if t, ok := evt.Payload.(*wire.Ticket); ok {
			s.ApplyTicket(t)
		}
	})
	d.On(wire.KindTicketUpdated, func(evt wire.Event) {
		if t, ok := evt.Payload.(*wire.Ticket); ok {
			s.ApplyTicket(t)
		}
	})
	d.On(wire.KindConversationAssigned, func(evt wire.Event) {
		if a, ok := evt.Payload.(*wire.Assignment); ok {
			s.ApplyAssignment(a)
		}
	})
	d.On(wire.KindConnectionEstablished, func(wire.Event) {
		// A reconnect may have missed events; refresh the active
		// conversation from the snapshot endpoint off the event loop.
		s.mu.Lock()
		active := s.active
		s.mu.Unlock()
		if active == "" {
			return
		}
		go func() {
			if err := s.LoadConversation(context.Background(), active); err != nil {
				s.logger.Warn("post-reconnect refresh failed",
					zap.String("contact_id", active), zap.Error(err))
			}
		}()
	})
}

// SelectContact makes a contact active: it joins the new contact's room
// before leaving the previous one so there is no window with no active
// subscription, then loads the conversation snapshot.
func (s *Store) SelectContact(ctx context.Context, contactID string) error {
	if contactID == "" {
		return fmt.Errorf("select contact: empty contact id")
	}
	s.mu.Lock()
	prev := s.active
	s.active = contactID
	s.mu.Unlock()

	if err := s.rooms.JoinRoom(wire.ContactRoom(contactID)); err != nil {
		return fmt.Errorf("join room for %s: %w", contactID, err)
	}
	if prev != "" && prev != contactID {
		if err := s.rooms.LeaveRoom(wire.ContactRoom(prev)); err != nil {
			s.logger.Warn("leave previous room failed",
				zap.String("contact_id", prev), zap.Error(err))
		}
	}
	return s.LoadConversation(ctx, contactID)
}

// Active returns the active contact id, or "".
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// LoadConversation fetches the snapshot for a contact and merges it.
// The result is discarded when a newer load for the same contact started
// in the meantime, or when the active contact changed away: stale
// snapshots are never merged.
func (s *Store) LoadConversation(ctx context.Context, contactID string) error {
	s.mu.Lock()
	s.loadGen[contactID]++
	gen := s.loadGen[contactID]
	s.mu.Unlock()

	if err := s.rooms.JoinRoom(wire.ContactRoom(contactID)); err != nil {
		return fmt.Errorf("join room for %s: %w", contactID, err)
	}

	if s.db != nil {
		if cursor, err := s.db.GetSyncState("cursor:" + contactID); err == nil && cursor != "" {
			s.logger.Debug("loading conversation",
				zap.String("contact_id", contactID),
				zap.String("archived_through", cursor))
		}
	}

	snap, err := s.api.Conversation(ctx, contactID)
	if err != nil {
		return fmt.Errorf("load conversation %s: %w", contactID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadGen[contactID] != gen {
		s.logger.Debug("discarding superseded snapshot", zap.String("contact_id", contactID))
		return nil
	}
	if s.active != "" && s.active != contactID {
		s.logger.Debug("discarding snapshot for inactive contact", zap.String("contact_id", contactID))
		return nil
	}
	s.mergeSnapshotLocked(contactID, snap)
	return nil
}

// MarkRead resets the contact's unread counter, recomputes per-episode
// unread counts and reports the read receipt to the server.
func (s *Store) MarkRead(ctx context.Context, contactID string) error {
	s.mu.Lock()
	conv := s.conv(contactID)
	marker := s.now().UnixMilli()
	// Message timestamps are server-assigned; under clock skew the local
	// clock can trail the newest message, which must still count as read.
	if n := len(conv.messages); n > 0 && conv.messages[n-1].Timestamp > marker {
		marker = conv.messages[n-1].Timestamp
	}
	conv.lastReadAt = marker
	s.recomputeLocked(conv)
	s.mu.Unlock()

	if err := s.api.MarkRead(ctx, contactID); err != nil {
		return fmt.Errorf("mark read %s: %w", contactID, err)
	}
	return nil
}

// SetViewMode switches a contact's timeline presentation. Leaving
// per-ticket mode clears the selected episode.
func (s *Store) SetViewMode(contactID string, mode ViewMode) error {
	if mode != ViewUnified && mode != ViewPerTicket {
		return fmt.Errorf("unknown view mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(contactID)
	conv.viewMode = mode
	if mode == ViewUnified {
		conv.selectedEpisode = -1
	}
	return nil
}

// SelectEpisode points at one episode. Valid only in per-ticket mode and
// within the current episode list.
func (s *Store) SelectEpisode(contactID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(contactID)
	if conv.viewMode != ViewPerTicket {
		return fmt.Errorf("select episode: contact %s is in %s mode", contactID, conv.viewMode)
	}
	if index < 0 || index >= len(conv.episodes) {
		return fmt.Errorf("select episode: index %d out of range (0..%d)", index, len(conv.episodes)-1)
	}
	conv.selectedEpisode = index
	return nil
}

// Conversation returns a copy of the contact's current state.
func (s *Store) Conversation(contactID string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(contactID)
	msgs := make([]*store.Message, len(conv.messages))
	copy(msgs, conv.messages)
	eps := make([]episode.Episode, len(conv.episodes))
	copy(eps, conv.episodes)
	return Snapshot{
		ContactID:       conv.contactID,
		ContactName:     conv.contactName,
		Messages:        msgs,
		Episodes:        eps,
		LastReadAt:      conv.lastReadAt,
		UnreadCount:     conv.unread,
		Loaded:          conv.loaded,
		ViewMode:        conv.viewMode,
		SelectedEpisode: conv.selectedEpisode,
	}
}

// Ticket returns the registry entry for a ticket id, or nil.
func (s *Store) Ticket(ticketID string) *store.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// conv returns (creating if needed) the state for a contact. Lock held.
func (s *Store) conv(contactID string) *conversationState {
	conv, ok := s.convs[contactID]
	if !ok {
		conv = &conversationState{
			contactID:       contactID,
			viewMode:        ViewUnified,
			selectedEpisode: -1,
		}
		s.convs[contactID] = conv
	}
	return conv
}

// mergeSnapshotLocked merges a REST snapshot into the canonical state.
// Pending local sends survive the merge: a snapshot taken before the
// server processed a send must not erase the optimistic entity.
func (s *Store) mergeSnapshotLocked(contactID string, snap *rest.Snapshot) {
	conv := s.conv(contactID)
	if snap.ContactName != "" {
		conv.contactName = snap.ContactName
	}
	if snap.LastReadAtMs > conv.lastReadAt {
		conv.lastReadAt = snap.LastReadAtMs
	}
	for i := range snap.Tickets {
		s.applyTicketLocked(&snap.Tickets[i])
	}
	for i := range snap.Messages {
		s.mergeMessageLocked(conv, snap.Messages[i].ToStoreMessage())
	}
	conv.loaded = true
	s.recomputeLocked(conv)
	s.checkpointLocked(conv)
}
