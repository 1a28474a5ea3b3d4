package wire

import "time"

// Kind identifies a named event on the desk server's websocket protocol.
type Kind string

// Server-originated event kinds.
const (
	KindMessageReceived      Kind = "message_received"
	KindMessageSent          Kind = "message_sent"
	KindMessageStatusUpdate  Kind = "message_status_update"
	KindTypingStart          Kind = "typing_start"
	KindTypingStop           Kind = "typing_stop"
	KindUserOnline           Kind = "user_online"
	KindUserOffline          Kind = "user_offline"
	KindSessionStatusUpdate  Kind = "session_status_update"
	KindTicketCreated        Kind = "ticket_created"
	KindTicketUpdated        Kind = "ticket_updated"
	KindConversationAssigned Kind = "conversation_assigned"
	KindAdminActivity        Kind = "admin_activity"
	KindAuthOK               Kind = "auth_ok"
	KindAuthError            Kind = "auth_error"
)

// Connection-manager internal kinds. These never arrive on the wire; the
// manager synthesizes them so downstream handlers see one event stream.
const (
	KindConnectionEstablished Kind = "connection_established"
	KindConnectionLost        Kind = "connection_lost"
	KindReconnectFailed       Kind = "reconnect_failed"
)

// Event is a decoded inbound frame with its typed payload.
type Event struct {
	Kind       Kind
	ReceivedAt time.Time
	Payload    any
}
