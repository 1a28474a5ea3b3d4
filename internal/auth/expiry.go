package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt extracts the exp claim from a JWT bearer token without
// verifying the signature — the daemon is not the token's verifier, it
// only wants to log that a token is about to lapse before the server
// starts rejecting it. Returns the zero time for tokens without an exp
// claim, and an error for strings that are not JWTs at all.
func ExpiresAt(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// ExpiresWithin reports whether the token lapses within d. Opaque
// (non-JWT) tokens are never considered expiring — the server is the
// only authority for those.
func ExpiresWithin(token string, d time.Duration) bool {
	exp, err := ExpiresAt(token)
	if err != nil || exp.IsZero() {
		return false
	}
	return time.Until(exp) < d
}
