package wire

import (
	"errors"
	"testing"
)

func TestDecodeMessageReceived(t *testing.T) {
	raw := []byte(`{"event":"message_received","data":{"id":"m1","contact_id":"42","ticket_id":"t1","direction":"incoming","body":"hi","message_type":"text","created_at_unix_ms":1700000000000}}`)

	evt, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != KindMessageReceived {
		t.Errorf("kind = %q, want message_received", evt.Kind)
	}
	msg, ok := evt.Payload.(*Message)
	if !ok {
		t.Fatalf("payload type = %T, want *Message", evt.Payload)
	}
	if msg.ID != "m1" || msg.ContactID != "42" || msg.TicketID != "t1" {
		t.Errorf("message = %+v", msg)
	}
	if msg.CreatedAtMs != 1700000000000 {
		t.Errorf("created_at = %d", msg.CreatedAtMs)
	}
}

func TestDecodeMessageSentCarriesCorrelationID(t *testing.T) {
	raw := []byte(`{"event":"message_sent","data":{"id":"srv-9","correlation_id":"corr-1","contact_id":"42","direction":"outgoing","body":"hi","created_at_unix_ms":1}}`)

	evt, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	msg := evt.Payload.(*Message)
	if msg.CorrelationID != "corr-1" {
		t.Errorf("correlation_id = %q, want corr-1", msg.CorrelationID)
	}
}

func TestDecodeRejectsUnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"surprise_me","data":{}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing event name", `{"data":{}}`},
		{"message without id", `{"event":"message_received","data":{"contact_id":"42"}}`},
		{"message without contact", `{"event":"message_received","data":{"id":"m1"}}`},
		{"status update without message id", `{"event":"message_status_update","data":{"contact_id":"42"}}`},
		{"typing without contact", `{"event":"typing_start","data":{"admin_id":"a1"}}`},
		{"ticket without id", `{"event":"ticket_updated","data":{"contact_id":"42"}}`},
		{"payload wrong shape", `{"event":"message_received","data":[1,2,3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); err == nil {
				t.Errorf("Decode(%s) succeeded, want error", tt.raw)
			}
		})
	}
}

func TestDecodeAuthFrames(t *testing.T) {
	evt, err := Decode([]byte(`{"event":"auth_ok"}`))
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != KindAuthOK {
		t.Errorf("kind = %q, want auth_ok", evt.Kind)
	}

	evt, err = Decode([]byte(`{"event":"auth_error","data":{"reason":"token expired"}}`))
	if err != nil {
		t.Fatal(err)
	}
	res := evt.Payload.(*AuthResult)
	if res.Reason != "token expired" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestDecodeTicketAndPresence(t *testing.T) {
	evt, err := Decode([]byte(`{"event":"ticket_created","data":{"id":"t1","contact_id":"42","status":"open"}}`))
	if err != nil {
		t.Fatal(err)
	}
	tk := evt.Payload.(*Ticket)
	if tk.Status != "open" {
		t.Errorf("status = %q", tk.Status)
	}

	evt, err = Decode([]byte(`{"event":"user_offline","data":{"contact_id":"42","last_seen_unix_ms":123}}`))
	if err != nil {
		t.Fatal(err)
	}
	p := evt.Payload.(*PresenceUpdate)
	if p.LastSeenMs != 123 {
		t.Errorf("last_seen = %d", p.LastSeenMs)
	}
}

func TestRoomNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{ContactRoom("42"), "contact_42"},
		{TicketRoom("t1"), "ticket_t1"},
		{SessionRoom("s1"), "session_s1"},
		{AdminRoom("a1"), "admin_a1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("room = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEncodeFramesRoundTrip(t *testing.T) {
	raw, err := EncodeJoin("contact_42")
	if err != nil {
		t.Fatal(err)
	}
	want := `{"event":"join_room","data":{"room":"contact_42"}}`
	if string(raw) != want {
		t.Errorf("join frame = %s, want %s", raw, want)
	}

	raw, err = EncodeAuth("tok", "acct")
	if err != nil {
		t.Fatal(err)
	}
	want = `{"event":"auth","data":{"token":"tok","account_id":"acct"}}`
	if string(raw) != want {
		t.Errorf("auth frame = %s, want %s", raw, want)
	}

	raw, err = EncodeTyping("contact_42", true)
	if err != nil {
		t.Fatal(err)
	}
	want = `{"event":"typing","data":{"room":"contact_42","state":"on"}}`
	if string(raw) != want {
		t.Errorf("typing frame = %s, want %s", raw, want)
	}
}
