package acp

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrChannelClosed is returned when the outbound queue can no longer
	// accept lines: the writer has stopped or the connection is shutting down.
	ErrChannelClosed = errors.New("acp: outbound channel closed")

	// ErrConnectionClosed is returned to callers whose request was still
	// pending when the connection shut down.
	ErrConnectionClosed = errors.New("acp: connection closed")
)

// SpawnError reports that the agent process could not be started.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn agent %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeError reports that the initialize exchange failed. The agent
// process has already been killed when this is returned.
type HandshakeError struct {
	Workspace string
	Err       error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed for workspace %s: %v", e.Workspace, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// TimeoutError reports that no response arrived within the request timeout.
// The connection stays usable.
type TimeoutError struct {
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.Method, e.After)
}

// MalformedLineError reports an inbound line that is not a JSON-RPC envelope.
// It is only ever logged.
type MalformedLineError struct {
	Line string
	Err  error
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed line %q: %v", e.Line, e.Err)
}

func (e *MalformedLineError) Unwrap() error { return e.Err }
