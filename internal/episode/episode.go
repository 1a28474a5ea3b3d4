// Package episode groups a conversation's timeline into ticket episodes:
// maximal contiguous runs of messages that belong to the same ticket.
// The same ticket id can own several episodes when other tickets'
// messages interleave with it.
package episode

import (
	"strings"

	"github.com/deskwire/deskd/internal/store"
)

// Category is the operator-facing classification of an episode, derived
// from the owning ticket's status.
type Category string

const (
	CategoryNeedsReply Category = "needs-reply"
	CategoryAutomated  Category = "automated"
	CategoryResolved   Category = "resolved"
)

// Categorize maps a ticket status onto an episode category. Statuses the
// server adds later fall back to needs-reply so new work is never hidden.
func Categorize(ticketStatus string) Category {
	switch strings.ToLower(ticketStatus) {
	case "automated", "bot":
		return CategoryAutomated
	case "closed", "resolved":
		return CategoryResolved
	default:
		return CategoryNeedsReply
	}
}

// Episode is one contiguous same-ticket run within a conversation.
// Messages with no ticket id form their own runs with an empty TicketID.
type Episode struct {
	TicketID    string
	Category    Category
	Messages    []*store.Message
	UnreadCount int
	StartAt     int64
	EndAt       int64
}

// Derive splits an ascending (oldest-first) timeline into episodes.
// tickets supplies ticket status by id; ids with no entry categorize as
// needs-reply. lastReadAt marks incoming messages after it as unread.
func Derive(msgs []*store.Message, tickets map[string]*store.Ticket, lastReadAt int64) []Episode {
	if len(msgs) == 0 {
		return nil
	}

	var episodes []Episode
	start := 0
	for i := 1; i <= len(msgs); i++ {
		if i < len(msgs) && msgs[i].TicketID == msgs[start].TicketID {
			continue
		}
		episodes = append(episodes, build(msgs[start:i], tickets, lastReadAt))
		start = i
	}
	return episodes
}

func build(run []*store.Message, tickets map[string]*store.Ticket, lastReadAt int64) Episode {
	ticketID := run[0].TicketID
	status := ""
	if t, ok := tickets[ticketID]; ok && t != nil {
		status = t.Status
	}

	unread := 0
	for _, m := range run {
		if m.Direction == "incoming" && m.Timestamp > lastReadAt {
			unread++
		}
	}

	return Episode{
		TicketID:    ticketID,
		Category:    Categorize(status),
		Messages:    run,
		UnreadCount: unread,
		StartAt:     run[0].Timestamp,
		EndAt:       run[len(run)-1].Timestamp,
	}
}
