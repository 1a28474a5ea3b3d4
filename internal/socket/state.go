package socket

import "slices"

// State represents the connection manager's lifecycle state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions. Disconnected is both
// the initial state and the terminal one after exhausting reconnect
// attempts; only an external Connect() call leaves it.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Reconnecting, Disconnected},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connected, Disconnected},
}

func canTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}
