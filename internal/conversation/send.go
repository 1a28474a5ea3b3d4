package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/rest"
	"github.com/deskwire/deskd/internal/store"
	"github.com/deskwire/deskd/internal/wire"
)

// pendingSend tracks one in-flight optimistic send until confirmation or
// timeout.
type pendingSend struct {
	correlationID string
	contactID     string
	timer         *time.Timer
}

// SendOptions carries the optional fields of a send.
type SendOptions struct {
	TicketID  string
	ReplyToID string
}

// SendMessage creates a local pending entity with a client-generated
// correlation id and status "sending", then delivers it to the server in
// the background. Confirmation is matched by correlation id only — the
// server echoes it on both the REST response and the message_sent socket
// frame. Without confirmation within the send timeout the entity turns
// "failed" and stays visible; it is never retried implicitly.
func (s *Store) SendMessage(ctx context.Context, contactID, body string, opts SendOptions) (string, error) {
	if contactID == "" || body == "" {
		return "", fmt.Errorf("send message: contact id and body are required")
	}

	correlationID := uuid.NewString()
	local := &store.Message{
		ContactID:     contactID,
		MsgID:         correlationID,
		CorrelationID: correlationID,
		TicketID:      opts.TicketID,
		Direction:     "outgoing",
		Body:          body,
		MessageType:   "text",
		Status:        "sending",
		ReplyToID:     opts.ReplyToID,
		Timestamp:     s.now().UnixMilli(),
	}

	s.mu.Lock()
	conv := s.conv(contactID)
	s.mergeMessageLocked(conv, local)
	s.recomputeLocked(conv)
	p := &pendingSend{correlationID: correlationID, contactID: contactID}
	p.timer = time.AfterFunc(s.cfg.SendTimeout, func() {
		s.failSend(correlationID, "send timed out")
	})
	s.pending[correlationID] = p
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.QueueOutbox(correlationID, contactID, opts.TicketID, body); err != nil {
			s.logger.Warn("outbox enqueue failed", zap.Error(err))
		} else if err := s.db.MarkOutboxSending(correlationID); err != nil {
			s.logger.Warn("outbox state update failed", zap.Error(err))
		}
	}

	go s.deliver(ctx, contactID, correlationID, rest.SendRequest{
		CorrelationID: correlationID,
		TicketID:      opts.TicketID,
		Body:          body,
		ReplyToID:     opts.ReplyToID,
	})

	return correlationID, nil
}

// deliver posts the send. Delivery is detached from the caller's
// cancellation and bounded by the send timeout instead.
func (s *Store) deliver(ctx context.Context, contactID, correlationID string, req rest.SendRequest) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
	defer cancel()

	msg, err := s.api.SendMessage(ctx, contactID, req)
	if err != nil {
		s.logger.Warn("send rejected",
			zap.String("contact_id", contactID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		s.failSend(correlationID, err.Error())
		return
	}
	s.ConfirmSend(correlationID, msg)
}

// ConfirmSend atomically replaces the pending entity with the confirmed
// server record. The correlation id is kept on the row, so a late socket
// echo after the REST response (or after a timeout already marked the
// entity failed) updates the same row instead of duplicating it. Returns
// false when the correlation id is unknown.
func (s *Store) ConfirmSend(correlationID string, m *wire.Message) bool {
	if m == nil || m.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, hasPending := s.pending[correlationID]
	if hasPending {
		p.timer.Stop()
		delete(s.pending, correlationID)
	}

	// The pending record is the authority on which conversation the send
	// belongs to; an echo with a divergent contact id must not strand the
	// optimistic row in one conversation and land the confirmed row in
	// another.
	contactID := m.ContactID
	if hasPending {
		contactID = p.contactID
	}
	if contactID == "" {
		return false
	}
	conv := s.conv(contactID)
	i := conv.findByCorrelation(correlationID)
	if i < 0 && !hasPending {
		return false
	}

	confirmed := m.ToStoreMessage()
	confirmed.ContactID = contactID
	confirmed.CorrelationID = correlationID
	if i >= 0 {
		// Remove the pending row; the confirmed record may carry a
		// different server timestamp, so it re-inserts at sort position.
		conv.messages = append(conv.messages[:i], conv.messages[i+1:]...)
	}

	if s.db != nil {
		if err := s.db.ReplaceMessageID(contactID, correlationID, confirmed.MsgID); err != nil {
			s.logger.Warn("archive id swap failed", zap.Error(err))
		}
		if err := s.db.MarkOutboxSent(correlationID, confirmed.MsgID); err != nil {
			s.logger.Warn("outbox state update failed", zap.Error(err))
		}
	}

	s.mergeMessageLocked(conv, confirmed)
	s.recomputeLocked(conv)
	s.checkpointLocked(conv)
	return true
}

// failSend marks a pending send failed. The entity stays in the timeline,
// visible but inert; only an explicit Resend creates a new attempt.
func (s *Store) failSend(correlationID, reason string) {
	s.mu.Lock()
	p, ok := s.pending[correlationID]
	if !ok {
		// Confirmed (or already failed) in the meantime.
		s.mu.Unlock()
		return
	}
	p.timer.Stop()
	delete(s.pending, correlationID)

	conv := s.conv(p.contactID)
	i := conv.findByCorrelation(correlationID)
	if i >= 0 && conv.messages[i].Status == "sending" {
		conv.messages[i].Status = "failed"
		if s.db != nil {
			if err := s.db.UpdateMessageStatus(p.contactID, conv.messages[i].MsgID, "failed"); err != nil {
				s.logger.Warn("archive status update failed", zap.Error(err))
			}
		}
	}
	if s.db != nil {
		if err := s.db.MarkOutboxFailed(correlationID, reason); err != nil {
			s.logger.Warn("outbox state update failed", zap.Error(err))
		}
	}
	contactID := p.contactID
	s.mu.Unlock()

	s.publish("message.send_failed", SendFailed{
		ContactID:     contactID,
		CorrelationID: correlationID,
		Reason:        reason,
	})
	s.publish("message.upserted", MessageUpserted{
		ContactID: contactID,
		MsgID:     correlationID,
		Status:    "failed",
	})
}

// Resend retries a failed send as an independent new entity: fresh
// correlation id, fresh timeout. The failed entity is removed.
func (s *Store) Resend(ctx context.Context, correlationID string) (string, error) {
	s.mu.Lock()
	var (
		conv *conversationState
		idx  = -1
	)
	for _, c := range s.convs {
		if i := c.findByCorrelation(correlationID); i >= 0 {
			conv, idx = c, i
			break
		}
	}
	if conv == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("resend %s: no such message", correlationID)
	}
	failed := conv.messages[idx]
	if failed.Status != "failed" {
		s.mu.Unlock()
		return "", fmt.Errorf("resend %s: message is %s, not failed", correlationID, failed.Status)
	}
	conv.messages = append(conv.messages[:idx], conv.messages[idx+1:]...)
	if s.db != nil {
		if err := s.db.DeleteMessage(failed.ContactID, failed.MsgID); err != nil {
			s.logger.Warn("archive delete failed", zap.Error(err))
		}
	}
	s.recomputeLocked(conv)
	s.mu.Unlock()

	return s.SendMessage(ctx, failed.ContactID, failed.Body, SendOptions{
		TicketID:  failed.TicketID,
		ReplyToID: failed.ReplyToID,
	})
}

// findByCorrelation returns the index of the message carrying the given
// correlation id, or -1. Pending rows also use it as their msg id, so
// both pre- and post-swap rows match.
func (c *conversationState) findByCorrelation(correlationID string) int {
	for i, m := range c.messages {
		if m.CorrelationID == correlationID || m.MsgID == correlationID {
			return i
		}
	}
	return -1
}
