package wire

import "github.com/deskwire/deskd/internal/store"

// ToStoreMessage converts a wire message to its archive representation.
func (m *Message) ToStoreMessage() *store.Message {
	msgType := m.MessageType
	if msgType == "" {
		msgType = "text"
	}
	status := m.Status
	if status == "" {
		if m.Direction == "incoming" {
			status = "received"
		} else {
			status = "sent"
		}
	}
	return &store.Message{
		ContactID:     m.ContactID,
		MsgID:         m.ID,
		CorrelationID: m.CorrelationID,
		TicketID:      m.TicketID,
		Direction:     m.Direction,
		Body:          m.Body,
		MessageType:   msgType,
		Status:        status,
		ReplyToID:     m.ReplyToID,
		Timestamp:     m.CreatedAtMs,
	}
}
