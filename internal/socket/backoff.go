package socket

import "time"

// backoffDelay returns the wait before reconnect attempt n (1-based):
// base * 2^(n-1), capped at max. The doubling is checked against the cap
// at every step so large attempt numbers cannot overflow.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
