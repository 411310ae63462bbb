package devtool

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed is returned when the WebSocket connection could not be established.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionLost is returned to every outstanding call when the connection drops.
	ErrConnectionLost = errors.New("connection lost")

	// ErrCallTimeout is returned when no matching response arrives within the call deadline.
	ErrCallTimeout = errors.New("call timed out")

	// ErrReconnectExhausted is returned when the reconnect attempt budget is spent.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrClientClosed is returned when attempting to use an intentionally closed client.
	ErrClientClosed = errors.New("client is closed")

	// ErrTargetNotFound is returned when discovery finds no matching debug target.
	ErrTargetNotFound = errors.New("debug target not found")
)

// RemoteError indicates that the remote side reported an error or a thrown
// exception for a specific call.
type RemoteError struct {
	// Method is the protocol method the failing call was issued for.
	Method string

	// Message is the remote error description.
	Message string

	// Code is the protocol error code, if any.
	Code int
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: remote error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: remote error: %s", e.Method, e.Message)
}

// IsConnectionError returns true if the error indicates a connection-level
// failure rather than a per-call or remote evaluation failure.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrReconnectExhausted) ||
		errors.Is(err, ErrClientClosed)
}
