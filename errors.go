package mcpclient

import (
	"errors"
	"fmt"

	"github.com/rohithtp/my-mcp-module/internal/correlator"
	"github.com/rohithtp/my-mcp-module/internal/jsonrpc"
)

var (
	// ErrNotReady indicates a call was attempted before the handshake
	// reached Ready.
	ErrNotReady = errors.New("session not ready")

	// ErrSessionClosed indicates a call was attempted after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrCorrelationTimeout indicates no response arrived within the
	// call's deadline. The pending entry is removed before this is
	// returned.
	ErrCorrelationTimeout = correlator.ErrTimeout

	// ErrMalformedEnvelope indicates undecodable wire bytes on the
	// submission channel.
	ErrMalformedEnvelope = jsonrpc.ErrMalformedEnvelope
)

// TransportError reports a failure of the HTTP submission channel or the
// event stream connection: refused connections, unexpected status codes,
// stream disconnects.
type TransportError struct {
	// Status is the offending HTTP status code, or 0 for connection-level
	// failures.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a well-formed JSON-RPC error returned by the server for
// a specific request.
type ProtocolError struct {
	Code    int
	Message string
	Data    any
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

func protocolError(we *jsonrpc.Error) *ProtocolError {
	return &ProtocolError{Code: we.Code, Message: we.Message, Data: we.Data}
}

// HandshakeError reports a failure while establishing the session:
// stream connect failure, identity-acquisition timeout, or a negotiation
// error. Once raised, the session is Failed and all calls return it.
type HandshakeError struct {
	// State names the handshake state in which the failure occurred.
	State State
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed in state %q: %v", e.State, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// CancelledError resolves a call that was outstanding when the session
// closed or the stream was lost.
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("call cancelled: %s", e.Reason)
}
