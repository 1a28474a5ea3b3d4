package episode

import (
	"testing"

	"github.com/deskwire/deskd/internal/store"
)

func msg(id, ticketID, direction string, ts int64) *store.Message {
	return &store.Message{MsgID: id, TicketID: ticketID, Direction: direction, Timestamp: ts}
}

func ticket(id, status string) *store.Ticket {
	return &store.Ticket{ID: id, Status: status}
}

func TestDeriveContiguousRuns(t *testing.T) {
	msgs := []*store.Message{
		msg("m1", "t1", "incoming", 100),
		msg("m2", "t1", "outgoing", 200),
		msg("m3", "t2", "incoming", 300),
	}
	tickets := map[string]*store.Ticket{
		"t1": ticket("t1", "open"),
		"t2": ticket("t2", "closed"),
	}

	eps := Derive(msgs, tickets, 0)
	if len(eps) != 2 {
		t.Fatalf("episodes = %d, want 2", len(eps))
	}
	if eps[0].TicketID != "t1" || len(eps[0].Messages) != 2 {
		t.Fatalf("episode 0 = %s with %d messages, want t1 with 2", eps[0].TicketID, len(eps[0].Messages))
	}
	if eps[1].TicketID != "t2" || len(eps[1].Messages) != 1 {
		t.Fatalf("episode 1 = %s with %d messages, want t2 with 1", eps[1].TicketID, len(eps[1].Messages))
	}
	if eps[0].StartAt != 100 || eps[0].EndAt != 200 {
		t.Fatalf("episode 0 span = [%d, %d], want [100, 200]", eps[0].StartAt, eps[0].EndAt)
	}
	if eps[0].Category != CategoryNeedsReply {
		t.Fatalf("episode 0 category = %s, want %s", eps[0].Category, CategoryNeedsReply)
	}
	if eps[1].Category != CategoryResolved {
		t.Fatalf("episode 1 category = %s, want %s", eps[1].Category, CategoryResolved)
	}
}

func TestDeriveInterleavedTicketSplits(t *testing.T) {
	// The same ticket owns two separate episodes when another ticket's
	// messages interrupt its run.
	msgs := []*store.Message{
		msg("m1", "t1", "incoming", 100),
		msg("m2", "t2", "incoming", 200),
		msg("m3", "t1", "incoming", 300),
	}
	eps := Derive(msgs, nil, 0)
	if len(eps) != 3 {
		t.Fatalf("episodes = %d, want 3", len(eps))
	}
	for i, want := range []string{"t1", "t2", "t1"} {
		if eps[i].TicketID != want {
			t.Fatalf("episode %d ticket = %s, want %s", i, eps[i].TicketID, want)
		}
	}
}

func TestDeriveTicketlessMessages(t *testing.T) {
	msgs := []*store.Message{
		msg("m1", "", "incoming", 100),
		msg("m2", "", "incoming", 200),
		msg("m3", "t1", "incoming", 300),
	}
	eps := Derive(msgs, map[string]*store.Ticket{"t1": ticket("t1", "automated")}, 0)
	if len(eps) != 2 {
		t.Fatalf("episodes = %d, want 2", len(eps))
	}
	if eps[0].TicketID != "" || eps[0].Category != CategoryNeedsReply {
		t.Fatalf("ticketless episode = %s/%s, want empty/needs-reply", eps[0].TicketID, eps[0].Category)
	}
	if eps[1].Category != CategoryAutomated {
		t.Fatalf("episode 1 category = %s, want %s", eps[1].Category, CategoryAutomated)
	}
}

func TestDeriveUnreadCounts(t *testing.T) {
	msgs := []*store.Message{
		msg("m1", "t1", "incoming", 100),
		msg("m2", "t1", "incoming", 200),
		msg("m3", "t1", "outgoing", 300), // never unread
		msg("m4", "t2", "incoming", 400),
	}
	eps := Derive(msgs, nil, 150)
	if len(eps) != 2 {
		t.Fatalf("episodes = %d, want 2", len(eps))
	}
	if eps[0].UnreadCount != 1 {
		t.Fatalf("episode 0 unread = %d, want 1 (m2 only)", eps[0].UnreadCount)
	}
	if eps[1].UnreadCount != 1 {
		t.Fatalf("episode 1 unread = %d, want 1", eps[1].UnreadCount)
	}
}

func TestDeriveEmpty(t *testing.T) {
	if eps := Derive(nil, nil, 0); eps != nil {
		t.Fatalf("episodes = %v, want nil", eps)
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		status string
		want   Category
	}{
		{"open", CategoryNeedsReply},
		{"pending", CategoryNeedsReply},
		{"automated", CategoryAutomated},
		{"bot", CategoryAutomated},
		{"closed", CategoryResolved},
		{"resolved", CategoryResolved},
		{"CLOSED", CategoryResolved},
		{"", CategoryNeedsReply},
		{"snoozed", CategoryNeedsReply}, // unknown statuses stay visible
	}
	for _, tc := range cases {
		if got := Categorize(tc.status); got != tc.want {
			t.Errorf("Categorize(%q) = %s, want %s", tc.status, got, tc.want)
		}
	}
}
