package transport

import "errors"

// Domain-specific errors for transport operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a session
	// that was never connected or has been torn down.
	ErrNotConnected = errors.New("transport: session not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("transport: connection failed")

	// ErrPublishFailed is returned when a publish operation fails outright.
	ErrPublishFailed = errors.New("transport: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("transport: subscribe failed")

	// ErrQueuedForReconnect is returned when a publish was accepted into the
	// outbound store while the broker session is reconnecting. The message
	// will be delivered once the session resumes. Callers should treat this
	// as success with a note, not as a failure.
	ErrQueuedForReconnect = errors.New("transport: operation queued for delivery after reconnect")
)
