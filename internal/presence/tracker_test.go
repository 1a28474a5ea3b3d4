package presence

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/dispatch"
	"github.com/deskwire/deskd/internal/wire"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	tr := New(Config{
		TypingTTL:       10 * time.Second,
		OnlineThreshold: 2 * time.Minute,
		RecentThreshold: 10 * time.Minute,
	}, nil, clock.now)
	return tr, clock
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	tr, clock := newTestTracker()

	tr.SetTyping("c1", true)
	if !tr.IsTyping("c1") {
		t.Fatal("typing should be active right after start")
	}

	clock.advance(9 * time.Second)
	if !tr.IsTyping("c1") {
		t.Fatal("typing should still be active within the TTL")
	}

	clock.advance(2 * time.Second)
	if tr.IsTyping("c1") {
		t.Fatal("typing should expire after the TTL even without typing_stop")
	}
}

func TestTypingStartRearmsTTL(t *testing.T) {
	tr, clock := newTestTracker()

	tr.SetTyping("c1", true)
	clock.advance(8 * time.Second)
	tr.SetTyping("c1", true)
	clock.advance(8 * time.Second)
	if !tr.IsTyping("c1") {
		t.Fatal("second typing_start should have re-armed the TTL")
	}
}

func TestTypingStopClearsImmediately(t *testing.T) {
	tr, _ := newTestTracker()

	tr.SetTyping("c1", true)
	tr.SetTyping("c1", false)
	if tr.IsTyping("c1") {
		t.Fatal("typing_stop should clear immediately")
	}
}

func TestStatusClassification(t *testing.T) {
	tr, clock := newTestTracker()

	if got := tr.StatusOf("never_seen"); got != StatusOffline {
		t.Fatalf("unknown contact = %s, want %s", got, StatusOffline)
	}

	tr.SetOnline("c1", true, 0)
	if got := tr.StatusOf("c1"); got != StatusOnline {
		t.Fatalf("explicitly online = %s, want %s", got, StatusOnline)
	}

	// Offline transition records the current time as last seen.
	tr.SetOnline("c1", false, 0)
	if got := tr.StatusOf("c1"); got != StatusOnline {
		t.Fatalf("just went offline = %s, want %s (within online threshold)", got, StatusOnline)
	}

	clock.advance(5 * time.Minute)
	if got := tr.StatusOf("c1"); got != StatusRecent {
		t.Fatalf("after 5m = %s, want %s", got, StatusRecent)
	}

	clock.advance(10 * time.Minute)
	if got := tr.StatusOf("c1"); got != StatusOffline {
		t.Fatalf("after 15m = %s, want %s", got, StatusOffline)
	}
}

func TestExplicitOnlineBeatsStaleLastSeen(t *testing.T) {
	tr, clock := newTestTracker()

	tr.Touch("c1", clock.now().Add(-time.Hour).UnixMilli())
	tr.SetOnline("c1", true, 0)
	if got := tr.StatusOf("c1"); got != StatusOnline {
		t.Fatalf("status = %s, want %s despite stale last-seen", got, StatusOnline)
	}
}

func TestTouchNeverMovesLastSeenBackwards(t *testing.T) {
	tr, clock := newTestTracker()

	now := clock.now()
	tr.Touch("c1", now.UnixMilli())
	tr.Touch("c1", now.Add(-time.Hour).UnixMilli())
	if got := tr.LastSeen("c1"); !got.Equal(now) {
		t.Fatalf("last seen = %v, want %v", got, now)
	}
}

func TestResetDropsVolatileState(t *testing.T) {
	tr, _ := newTestTracker()

	tr.SetTyping("c1", true)
	tr.SetOnline("c2", true, 0)
	tr.Reset()

	if tr.IsTyping("c1") {
		t.Fatal("typing state should not survive a reset")
	}
	if got := tr.StatusOf("c2"); got == StatusOnline {
		t.Fatal("explicit online flag should not survive a reset")
	}
}

func TestBindRoutesWireEvents(t *testing.T) {
	tr, _ := newTestTracker()
	d := dispatch.New(zap.NewNop())
	tr.Bind(d)

	d.Dispatch(wire.Event{Kind: wire.KindTypingStart, Payload: &wire.Typing{ContactID: "c1"}})
	if !tr.IsTyping("c1") {
		t.Fatal("typing_start not applied")
	}

	d.Dispatch(wire.Event{Kind: wire.KindUserOnline, Payload: &wire.PresenceUpdate{ContactID: "c2"}})
	if got := tr.StatusOf("c2"); got != StatusOnline {
		t.Fatalf("status = %s, want %s", got, StatusOnline)
	}

	d.Dispatch(wire.Event{Kind: wire.KindConnectionLost})
	if tr.IsTyping("c1") {
		t.Fatal("typing state should reset on connection loss")
	}
	if got := tr.StatusOf("c2"); got == StatusOnline {
		t.Fatal("online flag should reset on connection loss")
	}
}
