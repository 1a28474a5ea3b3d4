package wire

import "encoding/json"

// Client-issued frame names.
const (
	frameAuth      = "auth"
	frameJoinRoom  = "join_room"
	frameLeaveRoom = "leave_room"
	frameTyping    = "typing"
)

type clientFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type authData struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
}

type roomData struct {
	Room string `json:"room"`
}

type typingData struct {
	Room  string `json:"room"`
	State string `json:"state"` // on | off
}

// EncodeAuth builds the handshake frame sent first on every new connection.
func EncodeAuth(token, accountID string) ([]byte, error) {
	return json.Marshal(clientFrame{Event: frameAuth, Data: authData{Token: token, AccountID: accountID}})
}

// EncodeJoin builds a join_room frame.
func EncodeJoin(room string) ([]byte, error) {
	return json.Marshal(clientFrame{Event: frameJoinRoom, Data: roomData{Room: room}})
}

// EncodeLeave builds a leave_room frame.
func EncodeLeave(room string) ([]byte, error) {
	return json.Marshal(clientFrame{Event: frameLeaveRoom, Data: roomData{Room: room}})
}

// EncodeTyping builds a typing indicator frame for the agent side.
func EncodeTyping(room string, on bool) ([]byte, error) {
	state := "off"
	if on {
		state = "on"
	}
	return json.Marshal(clientFrame{Event: frameTyping, Data: typingData{Room: room, State: state}})
}
