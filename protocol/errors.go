package protocol

import "errors"

// Failure taxonomy of the transport. Callers match with errors.Is; the
// transport wraps these with context but never retries or swallows them.
var (
	// ErrConnection: the socket could not be established or maintained.
	ErrConnection = errors.New("protocol: connection error")
	// ErrConnectionClosed: the stream ended before a complete frame was read.
	ErrConnectionClosed = errors.New("protocol: connection closed")
	// ErrProtocolViolation: framing desync. The connection is unusable.
	ErrProtocolViolation = errors.New("protocol: protocol violation")
	// ErrMalformedMessage: payload is not a valid message.
	ErrMalformedMessage = errors.New("protocol: malformed message")
	// ErrCorrelationMismatch: response Id differs from the request Id. The
	// connection is unusable.
	ErrCorrelationMismatch = errors.New("protocol: correlation mismatch")

	ErrNotOpen     = errors.New("protocol: connection not open")
	ErrAlreadyOpen = errors.New("protocol: connection already open")
)
