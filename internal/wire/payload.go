package wire

// Message is an inbound message record as carried by message_received and
// message_sent frames, and by REST snapshot responses.
type Message struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ContactID     string `json:"contact_id"`
	TicketID      string `json:"ticket_id"`
	Direction     string `json:"direction"` // incoming | outgoing
	Body          string `json:"body"`
	MessageType   string `json:"message_type"`
	Status        string `json:"status"`
	ReplyToID     string `json:"reply_to_id,omitempty"`
	CreatedAtMs   int64  `json:"created_at_unix_ms"`
}

// StatusUpdate carries a delivery-state transition for an existing message.
type StatusUpdate struct {
	ContactID string `json:"contact_id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"` // sent | delivered | read | failed
}

// Typing carries a typing indicator for a contact's conversation.
type Typing struct {
	ContactID string `json:"contact_id"`
	AdminID   string `json:"admin_id,omitempty"`
}

// PresenceUpdate carries a contact's online/offline transition.
type PresenceUpdate struct {
	ContactID  string `json:"contact_id"`
	LastSeenMs int64  `json:"last_seen_unix_ms,omitempty"`
}

// SessionStatus carries a messaging-session lifecycle change.
type SessionStatus struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Ticket is a support ticket record as carried by ticket_created and
// ticket_updated frames.
type Ticket struct {
	ID         string `json:"id"`
	ContactID  string `json:"contact_id"`
	Status     string `json:"status"` // open | pending | automated | closed
	AssigneeID string `json:"assignee_id,omitempty"`
	Subject    string `json:"subject,omitempty"`
}

// Assignment carries a conversation being assigned to an agent.
type Assignment struct {
	ContactID  string `json:"contact_id"`
	TicketID   string `json:"ticket_id"`
	AssigneeID string `json:"assignee_id"`
}

// AdminActivity carries an agent presence/action notification.
type AdminActivity struct {
	AdminID string `json:"admin_id"`
	Action  string `json:"action"`
}

// AuthResult is the server's answer to the auth handshake frame.
type AuthResult struct {
	Reason string `json:"reason,omitempty"`
}
