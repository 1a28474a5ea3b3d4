package store

import (
	"database/sql"
	"time"
)

// UpsertContact inserts or updates a contact record. The rollup columns
// (last message, unread) only move forward: an older event never regresses
// last_message_at.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (id, name, unread_count, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			unread_count = excluded.unread_count,
			last_message_at = MAX(contacts.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= contacts.last_message_at THEN excluded.last_message_preview ELSE contacts.last_message_preview END,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// SetContactUnread overwrites the stored unread counter for a contact.
func (db *DB) SetContactUnread(contactID string, unread int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE contacts SET unread_count = ?, updated_at = ? WHERE id = ?`,
		unread, now, contactID)
	return err
}

// ListContacts returns contacts sorted by last message timestamp descending.
func (db *DB) ListContacts(limit, offset int) ([]Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, name, unread_count, last_message_at, last_message_preview
		FROM contacts
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// GetContact returns a single contact by id, or nil if unknown.
func (db *DB) GetContact(contactID string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT id, name, unread_count, last_message_at, last_message_preview
		FROM contacts WHERE id = ?`, contactID).
		Scan(&c.ID, &c.Name, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
