package store

import (
	"database/sql"
	"time"
)

// UpsertTicket inserts or updates a ticket record.
func (db *DB) UpsertTicket(t *Ticket) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO tickets (id, contact_id, status, assignee_id, subject, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assignee_id = excluded.assignee_id,
			subject = CASE WHEN excluded.subject != '' THEN excluded.subject ELSE tickets.subject END,
			updated_at = excluded.updated_at`,
		t.ID, t.ContactID, t.Status, t.AssigneeID, t.Subject, now)
	return err
}

// GetTicket returns a ticket by id, or nil if unknown.
func (db *DB) GetTicket(ticketID string) (*Ticket, error) {
	var t Ticket
	err := db.QueryRow(`
		SELECT id, contact_id, status, assignee_id, subject, updated_at
		FROM tickets WHERE id = ?`, ticketID).
		Scan(&t.ID, &t.ContactID, &t.Status, &t.AssigneeID, &t.Subject, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTickets returns all tickets for a contact, oldest first.
func (db *DB) ListTickets(contactID string) ([]Ticket, error) {
	rows, err := db.Query(`
		SELECT id, contact_id, status, assignee_id, subject, updated_at
		FROM tickets WHERE contact_id = ? ORDER BY updated_at ASC`, contactID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.ContactID, &t.Status, &t.AssigneeID, &t.Subject, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
