package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownEvent is returned for frames whose event name is not part of
// the protocol. Callers log and drop these instead of trusting them.
var ErrUnknownEvent = errors.New("unknown event kind")

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses a raw inbound frame into a typed Event. The payload shape
// is validated per kind; a frame that names a known event but carries a
// malformed body is rejected rather than partially applied.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode frame envelope: %w", err)
	}
	if env.Event == "" {
		return Event{}, errors.New("frame missing event name")
	}

	kind := Kind(env.Event)
	payload, err := decodePayload(kind, env.Data)
	if err != nil {
		return Event{}, err
	}

	return Event{
		Kind:       kind,
		ReceivedAt: time.Now(),
		Payload:    payload,
	}, nil
}

func decodePayload(kind Kind, data json.RawMessage) (any, error) {
	switch kind {
	case KindMessageReceived, KindMessageSent:
		var m Message
		if err := unmarshal(kind, data, &m); err != nil {
			return nil, err
		}
		if m.ID == "" || m.ContactID == "" {
			return nil, fmt.Errorf("%s frame missing id or contact_id", kind)
		}
		return &m, nil
	case KindMessageStatusUpdate:
		var u StatusUpdate
		if err := unmarshal(kind, data, &u); err != nil {
			return nil, err
		}
		if u.MessageID == "" || u.ContactID == "" {
			return nil, fmt.Errorf("%s frame missing message_id or contact_id", kind)
		}
		return &u, nil
	case KindTypingStart, KindTypingStop:
		var ty Typing
		if err := unmarshal(kind, data, &ty); err != nil {
			return nil, err
		}
		if ty.ContactID == "" {
			return nil, fmt.Errorf("%s frame missing contact_id", kind)
		}
		return &ty, nil
	case KindUserOnline, KindUserOffline:
		var p PresenceUpdate
		if err := unmarshal(kind, data, &p); err != nil {
			return nil, err
		}
		if p.ContactID == "" {
			return nil, fmt.Errorf("%s frame missing contact_id", kind)
		}
		return &p, nil
	case KindSessionStatusUpdate:
		var s SessionStatus
		if err := unmarshal(kind, data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case KindTicketCreated, KindTicketUpdated:
		var tk Ticket
		if err := unmarshal(kind, data, &tk); err != nil {
			return nil, err
		}
		if tk.ID == "" || tk.ContactID == "" {
			return nil, fmt.Errorf("%s frame missing id or contact_id", kind)
		}
		return &tk, nil
	case KindConversationAssigned:
		var a Assignment
		if err := unmarshal(kind, data, &a); err != nil {
			return nil, err
		}
		return &a, nil
	case KindAdminActivity:
		var aa AdminActivity
		if err := unmarshal(kind, data, &aa); err != nil {
			return nil, err
		}
		return &aa, nil
	case KindAuthOK, KindAuthError:
		var r AuthResult
		if err := unmarshal(kind, data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
}

func unmarshal(kind Kind, data json.RawMessage, v any) error {
	if len(data) == 0 {
		// Some frames (auth_ok) legitimately carry no body.
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return nil
}
