package dispatch

import (
	"testing"

	"github.com/deskwire/deskd/internal/wire"
)

func TestDispatchOrder(t *testing.T) {
	d := New(nil)
	var order []int
	d.On(wire.KindMessageReceived, func(wire.Event) { order = append(order, 1) })
	d.On(wire.KindMessageReceived, func(wire.Event) { order = append(order, 2) })
	d.On(wire.KindMessageReceived, func(wire.Event) { order = append(order, 3) })

	d.Dispatch(wire.Event{Kind: wire.KindMessageReceived})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("delivery order = %v, want [1 2 3]", order)
	}
}

func TestDispatchOnlyMatchingKind(t *testing.T) {
	d := New(nil)
	called := 0
	d.On(wire.KindTypingStart, func(wire.Event) { called++ })

	d.Dispatch(wire.Event{Kind: wire.KindTypingStop})
	if called != 0 {
		t.Errorf("handler called %d times for wrong kind, want 0", called)
	}

	d.Dispatch(wire.Event{Kind: wire.KindTypingStart})
	if called != 1 {
		t.Errorf("handler called %d times, want 1", called)
	}
}

func TestPanicIsolation(t *testing.T) {
	d := New(nil)
	reached := false
	d.On(wire.KindTicketUpdated, func(wire.Event) { panic("boom") })
	d.On(wire.KindTicketUpdated, func(wire.Event) { reached = true })

	d.Dispatch(wire.Event{Kind: wire.KindTicketUpdated})

	if !reached {
		t.Error("handler after a panicking one was not called")
	}
}

func TestUnsubscribeRemovesExactlyOne(t *testing.T) {
	d := New(nil)
	var calls []string
	subA := d.On(wire.KindMessageSent, func(wire.Event) { calls = append(calls, "a") })
	d.On(wire.KindMessageSent, func(wire.Event) { calls = append(calls, "b") })

	subA.Unsubscribe()
	subA.Unsubscribe() // idempotent

	d.Dispatch(wire.Event{Kind: wire.KindMessageSent})

	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("calls = %v, want [b]", calls)
	}
}

// Repeated mount/unmount cycles must not accumulate handlers — the leak
// the subscription handle exists to prevent.
func TestRepeatedSubscribeCyclesDoNotLeak(t *testing.T) {
	d := New(nil)
	calls := 0
	for i := 0; i < 100; i++ {
		sub := d.On(wire.KindUserOnline, func(wire.Event) { calls++ })
		sub.Unsubscribe()
	}
	sub := d.On(wire.KindUserOnline, func(wire.Event) { calls++ })
	defer sub.Unsubscribe()

	d.Dispatch(wire.Event{Kind: wire.KindUserOnline})

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1 (orphaned handlers leaked)", calls)
	}
}

func TestOffClearsAllForKind(t *testing.T) {
	d := New(nil)
	calls := 0
	d.On(wire.KindAdminActivity, func(wire.Event) { calls++ })
	d.On(wire.KindAdminActivity, func(wire.Event) { calls++ })

	d.Off(wire.KindAdminActivity)
	d.Dispatch(wire.Event{Kind: wire.KindAdminActivity})

	if calls != 0 {
		t.Errorf("handlers called %d times after Off, want 0", calls)
	}
}
