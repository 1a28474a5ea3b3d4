// Package presence tracks per-contact typing indicators and last-seen
// classification. Typing state expires on the client: servers are not
// trusted to always deliver typing_stop, so each start carries a TTL and
// expired entries are pruned lazily on read.
package presence

import (
	"sync"
	"time"

	"github.com/deskwire/deskd/internal/bus"
	"github.com/deskwire/deskd/internal/dispatch"
	"github.com/deskwire/deskd/internal/wire"
)

// Status classifies a contact by recency of activity.
type Status string

const (
	StatusOnline  Status = "online"
	StatusRecent  Status = "recent"
	StatusOffline Status = "offline"
)

// Config holds the typing TTL and the last-seen classification thresholds.
type Config struct {
	TypingTTL       time.Duration
	OnlineThreshold time.Duration
	RecentThreshold time.Duration
}

// Tracker holds volatile presence state. It is rebuilt from scratch on
// every connection; nothing here is persisted.
type Tracker struct {
	cfg Config
	now func() time.Time
	bus *bus.Bus

	mu       sync.Mutex
	typing   map[string]time.Time // contact id -> expiry
	online   map[string]struct{}  // contacts with an explicit user_online
	lastSeen map[string]time.Time
}

// New creates a tracker. eventBus may be nil; then derived notifications
// are skipped. now overrides the clock for tests; nil means time.Now.
func New(cfg Config, eventBus *bus.Bus, now func() time.Time) *Tracker {
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 10 * time.Second
	}
	if cfg.OnlineThreshold <= 0 {
		cfg.OnlineThreshold = 2 * time.Minute
	}
	if cfg.RecentThreshold <= 0 {
		cfg.RecentThreshold = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		cfg:      cfg,
		now:      now,
		bus:      eventBus,
		typing:   make(map[string]time.Time),
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// Bind registers the tracker's handlers on the dispatcher.
func (t *Tracker) Bind(d *dispatch.Dispatcher) {
	d.On(wire.KindTypingStart, func(evt wire.Event) {
		if ty, ok := evt.Payload.(*wire.Typing); ok {
			t.SetTyping(ty.ContactID, true)
		}
	})
	d.On(wire.KindTypingStop, func(evt wire.Event) {
		if ty, ok := evt.Payload.(*wire.Typing); ok {
			t.SetTyping(ty.ContactID, false)
		}
	})
	d.On(wire.KindUserOnline, func(evt wire.Event) {
		if p, ok := evt.Payload.(*wire.PresenceUpdate); ok {
			t.SetOnline(p.ContactID, true, p.LastSeenMs)
		}
	})
	d.On(wire.KindUserOffline, func(evt wire.Event) {
		if p, ok := evt.Payload.(*wire.PresenceUpdate); ok {
			t.SetOnline(p.ContactID, false, p.LastSeenMs)
		}
	})
	d.On(wire.KindConnectionLost, func(wire.Event) {
		t.Reset()
	})
}

// SetTyping records a typing transition. A start (re)arms the TTL.
func (t *Tracker) SetTyping(contactID string, on bool) {
	if contactID == "" {
		return
	}
	t.mu.Lock()
	if on {
		t.typing[contactID] = t.now().Add(t.cfg.TypingTTL)
	} else {
		delete(t.typing, contactID)
	}
	t.mu.Unlock()
	t.publish("presence.typing", contactID)
}

// IsTyping reports whether a non-expired typing indicator is active.
func (t *Tracker) IsTyping(contactID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.typing[contactID]
	if !ok {
		return false
	}
	if t.now().After(expiry) {
		delete(t.typing, contactID)
		return false
	}
	return true
}

// SetOnline records an explicit presence transition. lastSeenMs updates
// the activity timestamp when the server provides one; offline frames
// without it fall back to the current time.
func (t *Tracker) SetOnline(contactID string, online bool, lastSeenMs int64) {
	if contactID == "" {
		return
	}
	t.mu.Lock()
	if online {
		t.online[contactID] = struct{}{}
	} else {
		delete(t.online, contactID)
	}
	switch {
	case lastSeenMs > 0:
		t.lastSeen[contactID] = time.UnixMilli(lastSeenMs)
	case !online:
		t.lastSeen[contactID] = t.now()
	}
	t.mu.Unlock()
	t.publish("presence.updated", contactID)
}

// Touch records activity (an inbound message) as a last-seen signal.
func (t *Tracker) Touch(contactID string, atMs int64) {
	if contactID == "" {
		return
	}
	t.mu.Lock()
	at := time.UnixMilli(atMs)
	if at.After(t.lastSeen[contactID]) {
		t.lastSeen[contactID] = at
	}
	t.mu.Unlock()
}

// StatusOf classifies a contact. An explicit online flag wins; otherwise
// the last-seen timestamp is measured against the thresholds. Contacts
// never seen are offline.
func (t *Tracker) StatusOf(contactID string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.online[contactID]; ok {
		return StatusOnline
	}
	seen, ok := t.lastSeen[contactID]
	if !ok {
		return StatusOffline
	}
	age := t.now().Sub(seen)
	switch {
	case age <= t.cfg.OnlineThreshold:
		return StatusOnline
	case age <= t.cfg.RecentThreshold:
		return StatusRecent
	default:
		return StatusOffline
	}
}

// LastSeen returns the last activity time, or zero when unknown.
func (t *Tracker) LastSeen(contactID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen[contactID]
}

// Reset drops all volatile state. Called on connection loss: stale typing
// indicators and online flags must not survive into the next connection.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.typing = make(map[string]time.Time)
	t.online = make(map[string]struct{})
	t.mu.Unlock()
	t.publish("presence.reset", "")
}

type update struct {
	ContactID string `json:"contact_id,omitempty"`
}

func (t *Tracker) publish(kind, contactID string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: t.now(),
		Payload:   update{ContactID: contactID},
	})
}
