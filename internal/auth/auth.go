// Package auth holds the token seam between the daemon and whatever
// refresh flow the operator runs outside it. The daemon never refreshes
// tokens itself; it surfaces auth failures and accepts a replacement.
package auth

import (
	"fmt"
	"sync"
)

// Error indicates the server rejected the current credentials. It is not
// retried automatically: callers surface it so a token-refresh flow can
// supply a new token, then explicitly reconnect.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return "authentication rejected"
	}
	return fmt.Sprintf("authentication rejected: %s", e.Reason)
}

// Source supplies the bearer token for the websocket handshake and REST calls.
type Source interface {
	Token() string
}

// Static is a mutable in-memory token holder.
type Static struct {
	mu    sync.RWMutex
	token string
}

// NewStatic creates a token source seeded with the given token.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// Token returns the current bearer token.
func (s *Static) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the token. Subsequent handshakes and REST calls use the
// new value; existing connections are not re-authenticated.
func (s *Static) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
