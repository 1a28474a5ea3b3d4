package conversation

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/bus"
	"github.com/deskwire/deskd/internal/episode"
	"github.com/deskwire/deskd/internal/store"
	"github.com/deskwire/deskd/internal/wire"
)

// Bus payload shapes. The feed server serializes these as-is.

// ConversationUpdated signals that derived state for a contact changed.
type ConversationUpdated struct {
	ContactID   string `json:"contact_id"`
	UnreadCount int    `json:"unread_count"`
	Episodes    int    `json:"episodes"`
}

// MessageUpserted signals a message was inserted or replaced.
type MessageUpserted struct {
	ContactID string `json:"contact_id"`
	MsgID     string `json:"msg_id"`
	Status    string `json:"status"`
}

// SendFailed signals an optimistic send timed out or was rejected.
type SendFailed struct {
	ContactID     string `json:"contact_id"`
	CorrelationID string `json:"correlation_id"`
	Reason        string `json:"reason,omitempty"`
}

// Assigned signals a conversation/ticket assignment change.
type Assigned struct {
	ContactID  string `json:"contact_id"`
	TicketID   string `json:"ticket_id"`
	AssigneeID string `json:"assignee_id"`
}

// AppendIncoming merges one message into the contact's canonical list.
// Idempotent on msg id: an existing entry is replaced in place, a new one
// is inserted at its sorted position, so out-of-order arrival after a
// reconnect produces neither duplicates nor a corrupted timeline.
func (s *Store) AppendIncoming(m *store.Message) {
	if m == nil || m.ContactID == "" || m.MsgID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(m.ContactID)
	s.mergeMessageLocked(conv, m)
	s.recomputeLocked(conv)
	s.checkpointLocked(conv)
}

// ApplyStatus applies a delivery-state transition to an existing message.
// Updates for unknown messages are dropped: a status carries no content
// worth fabricating a record for.
func (s *Store) ApplyStatus(u *wire.StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.conv(u.ContactID)
	i := conv.find(u.MessageID)
	if i < 0 {
		s.logger.Debug("status update for unknown message",
			zap.String("contact_id", u.ContactID),
			zap.String("message_id", u.MessageID))
		return
	}
	conv.messages[i].Status = u.Status
	if s.db != nil {
		if err := s.db.UpdateMessageStatus(u.ContactID, u.MessageID, u.Status); err != nil {
			s.logger.Warn("archive status update failed", zap.Error(err))
		}
	}
	s.publish("message.upserted", MessageUpserted{
		ContactID: u.ContactID,
		MsgID:     u.MessageID,
		Status:    u.Status,
	})
}

// ApplyTicket merges a ticket record into the registry and recomputes
// episodes for the ticket's contact: a status change can reclassify
// every episode the ticket owns.
func (s *Store) ApplyTicket(t *wire.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyTicketLocked(t)
	if conv, ok := s.convs[t.ContactID]; ok {
		s.recomputeLocked(conv)
	}
}

// ApplyAssignment records a ticket assignment change.
func (s *Store) ApplyAssignment(a *wire.Assignment) {
	s.mu.Lock()
	if t, ok := s.tickets[a.TicketID]; ok {
		t.AssigneeID = a.AssigneeID
		if s.db != nil {
			if err := s.db.UpsertTicket(t); err != nil {
				s.logger.Warn("archive ticket update failed", zap.Error(err))
			}
		}
	}
	s.mu.Unlock()
	s.publish("conversation.assigned", Assigned{
		ContactID:  a.ContactID,
		TicketID:   a.TicketID,
		AssigneeID: a.AssigneeID,
	})
}

func (s *Store) applyTicketLocked(t *wire.Ticket) {
	rec, ok := s.tickets[t.ID]
	if !ok {
		rec = &store.Ticket{ID: t.ID, ContactID: t.ContactID}
		s.tickets[t.ID] = rec
	}
	rec.Status = t.Status
	rec.UpdatedAt = s.now().UnixMilli()
	if t.AssigneeID != "" {
		rec.AssigneeID = t.AssigneeID
	}
	if t.Subject != "" {
		rec.Subject = t.Subject
	}
	if s.db != nil {
		if err := s.db.UpsertTicket(rec); err != nil {
			s.logger.Warn("archive ticket upsert failed", zap.Error(err))
		}
	}
}

// mergeMessageLocked applies the idempotent merge rule and writes the
// record through to the archive. Lock held; no recompute.
func (s *Store) mergeMessageLocked(conv *conversationState, m *store.Message) {
	if i := conv.find(m.MsgID); i >= 0 {
		conv.messages[i] = m
	} else {
		conv.insert(m)
	}
	if s.db != nil {
		if err := s.db.UpsertMessage(m); err != nil {
			s.logger.Warn("archive message upsert failed",
				zap.String("msg_id", m.MsgID), zap.Error(err))
		}
	}
	s.publish("message.upserted", MessageUpserted{
		ContactID: m.ContactID,
		MsgID:     m.MsgID,
		Status:    m.Status,
	})
}

// recomputeLocked re-derives episodes and unread counts and refreshes the
// contact rollup. O(n) over the contact's list; runs on every mutation.
func (s *Store) recomputeLocked(conv *conversationState) {
	conv.episodes = episode.Derive(conv.messages, s.tickets, conv.lastReadAt)
	unread := 0
	for _, ep := range conv.episodes {
		unread += ep.UnreadCount
	}
	conv.unread = unread
	if conv.selectedEpisode >= len(conv.episodes) {
		conv.selectedEpisode = -1
	}

	if s.db != nil && len(conv.messages) > 0 {
		last := conv.messages[len(conv.messages)-1]
		err := s.db.UpsertContact(&store.Contact{
			ID:                 conv.contactID,
			Name:               conv.contactName,
			LastMessageAt:      last.Timestamp,
			LastMessagePreview: last.Body,
		})
		if err == nil {
			err = s.db.SetContactUnread(conv.contactID, conv.unread)
		}
		if err != nil {
			s.logger.Warn("archive contact rollup failed",
				zap.String("contact_id", conv.contactID), zap.Error(err))
		}
	}

	s.publish("conversation.updated", ConversationUpdated{
		ContactID:   conv.contactID,
		UnreadCount: conv.unread,
		Episodes:    len(conv.episodes),
	})
}

// checkpointLocked records the newest message timestamp as the contact's
// sync cursor. Read on startup as a delta hint.
func (s *Store) checkpointLocked(conv *conversationState) {
	if s.db == nil || len(conv.messages) == 0 {
		return
	}
	last := conv.messages[len(conv.messages)-1]
	key := "cursor:" + conv.contactID
	if err := s.db.SetSyncState(key, strconv.FormatInt(last.Timestamp, 10)); err != nil {
		s.logger.Warn("sync checkpoint failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: s.now(), Payload: payload})
}

// find returns the index of the message with the given id, or -1.
func (c *conversationState) find(msgID string) int {
	for i, m := range c.messages {
		if m.MsgID == msgID {
			return i
		}
	}
	return -1
}

// insert places a message at its sorted position: ascending by timestamp,
// ties broken by msg id so the order is stable across replays.
func (c *conversationState) insert(m *store.Message) {
	i := sort.Search(len(c.messages), func(i int) bool {
		o := c.messages[i]
		if o.Timestamp != m.Timestamp {
			return o.Timestamp > m.Timestamp
		}
		return o.MsgID > m.MsgID
	})
	c.messages = append(c.messages, nil)
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = m
}
