package store

import "time"

// UpsertMessage inserts or updates a message (idempotent on contact_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (contact_id, msg_id, correlation_id, ticket_id, direction, body, message_type, status, reply_to_id, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id, msg_id) DO UPDATE SET
			correlation_id = excluded.correlation_id,
			ticket_id = excluded.ticket_id,
			body = excluded.body,
			status = excluded.status,
			reply_to_id = excluded.reply_to_id`,
		m.ContactID, m.MsgID, m.CorrelationID, m.TicketID, m.Direction, m.Body, m.MessageType, m.Status, m.ReplyToID, m.Timestamp, now)
	return err
}

// UpdateMessageStatus transitions the delivery status of an archived message.
func (db *DB) UpdateMessageStatus(contactID, msgID, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE contact_id = ? AND msg_id = ?`,
		status, contactID, msgID)
	return err
}

// ReplaceMessageID swaps a pending message's client correlation id for the
// server-assigned id once the send is confirmed. The correlation id is kept
// on the row so late socket echoes still match.
func (db *DB) ReplaceMessageID(contactID, correlationID, serverMsgID string) error {
	_, err := db.Exec(`
		UPDATE messages SET msg_id = ?, correlation_id = ?
		WHERE contact_id = ? AND msg_id = ?
		AND NOT EXISTS (SELECT 1 FROM messages WHERE contact_id = ? AND msg_id = ?)`,
		serverMsgID, correlationID, contactID, correlationID, contactID, serverMsgID)
	return err
}

// DeleteMessage removes a message by its msg_id.
func (db *DB) DeleteMessage(contactID, msgID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE contact_id = ? AND msg_id = ?`, contactID, msgID)
	return err
}

// ListMessages returns messages for a contact using keyset pagination by timestamp.
func (db *DB) ListMessages(contactID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, contact_id, msg_id, correlation_id, ticket_id, direction, body, message_type, status, reply_to_id, timestamp
		FROM messages
		WHERE contact_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, msg_id DESC
		LIMIT ?`, contactID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ContactID, &m.MsgID, &m.CorrelationID, &m.TicketID, &m.Direction, &m.Body, &m.MessageType, &m.Status, &m.ReplyToID, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
