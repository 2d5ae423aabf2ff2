package bridge

import "errors"

// Domain-specific errors for the synchronization core.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotReady is returned when initial setup (auth, discovery,
	// transport) has not completed. The supervisor should retry the whole
	// setup later, not resume from partial state.
	ErrNotReady = errors.New("bridge: not ready")

	// ErrUnknownDevice is returned for operations addressing a device
	// the coordinator has never discovered.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrUnknownCommand is returned when a command name is not in the
	// fixed command set.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrReconnectInProgress is returned when a forced reconnect is
	// requested while another one is already running. The second request
	// is dropped, not queued.
	ErrReconnectInProgress = errors.New("bridge: reconnection already in progress")

	// ErrCommandFailed is returned when a command's transport dispatch
	// fails for a non-queued reason.
	ErrCommandFailed = errors.New("bridge: command failed")
)
