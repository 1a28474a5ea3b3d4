package wire

// Room names follow the server's <entity>_<id> convention.

// ContactRoom scopes events about a single contact's conversation.
func ContactRoom(contactID string) string { return "contact_" + contactID }

// TicketRoom scopes events about a single support ticket.
func TicketRoom(ticketID string) string { return "ticket_" + ticketID }

// SessionRoom scopes events about a messaging session.
func SessionRoom(sessionID string) string { return "session_" + sessionID }

// AdminRoom scopes events addressed to a single agent.
func AdminRoom(adminID string) string { return "admin_" + adminID }
