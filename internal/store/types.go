package store

// Contact represents a synced contact with its conversation rollup.
type Contact struct {
	ID                 string
	Name               string
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents an archived message.
//
// MsgID is the server-assigned id once confirmed; while a send is pending
// it holds the client correlation id so the row is addressable either way.
type Message struct {
	ID            int64
	ContactID     string
	MsgID         string
	CorrelationID string
	TicketID      string
	Direction     string // incoming | outgoing
	Body          string
	MessageType   string
	Status        string // sending | sent | delivered | read | failed | received
	ReplyToID     string
	Timestamp     int64 // unix ms
}

// Ticket represents a support ticket attached to a contact.
type Ticket struct {
	ID         string
	ContactID  string
	Status     string // open | pending | automated | closed
	AssigneeID string
	Subject    string
	UpdatedAt  int64
}

// OutboxEntry represents a locally-initiated send and its lifecycle.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ContactID    string
	TicketID     string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
