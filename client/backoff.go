package client

import "time"

const (
	// MaxReconnectAttempts bounds automatic reconnection after a failure
	MaxReconnectAttempts = 5

	baseReconnectDelay = time.Second
	maxReconnectDelay  = 30 * time.Second
)

// BackoffDelay returns min(1s * 2^attempt, 30s)
func BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^5 seconds is already past the ceiling
	if attempt >= 5 {
		return maxReconnectDelay
	}
	d := baseReconnectDelay << uint(attempt)
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}
