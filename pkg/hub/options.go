package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// Options represents hub connection options
type Options struct {
	// MaxReconnectAttempts bounds the backoff machine after a transient
	// connection loss.
	MaxReconnectAttempts int

	// ReconnectCeiling caps the exponential backoff delay.
	ReconnectCeiling time.Duration

	// CloseRetryDelay is the fixed delay before the single safety-net
	// Start retry scheduled after the backoff machine gives up.
	CloseRetryDelay time.Duration

	// HandshakeTimeout bounds each dial attempt.
	HandshakeTimeout time.Duration

	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

// DefaultOptions returns default hub connection options
func DefaultOptions() Options {
	return Options{
		MaxReconnectAttempts: 5,
		ReconnectCeiling:     30 * time.Second,
		CloseRetryDelay:      5 * time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}

// backoffDelay returns the reconnect delay before the given 0-based
// attempt: 1s doubling per attempt, capped at the ceiling.
func backoffDelay(attempt int, ceiling time.Duration) time.Duration {
	delay := time.Second << attempt
	if delay > ceiling || delay <= 0 {
		return ceiling
	}
	return delay
}
