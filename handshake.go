package mcpclient

// State is the session's handshake lifecycle state.
//
// The forward path is Disconnected → ConnectingStream → AwaitingIdentity →
// Negotiating → Ready → Closed. Failed is an absorbing state reachable from
// any non-terminal state; once entered, every outstanding and future call
// fails with the HandshakeError (or CancelledError) that triggered it.
type State string

const (
	StateDisconnected     State = "disconnected"
	StateConnectingStream State = "connecting_stream"
	StateAwaitingIdentity State = "awaiting_identity"
	StateNegotiating      State = "negotiating"
	StateReady            State = "ready"
	StateClosed           State = "closed"
	StateFailed           State = "failed"
)

// terminal reports whether no further transitions may leave s.
func (s State) terminal() bool {
	return s == StateClosed || s == StateFailed
}

// setState advances the lifecycle under the session mutex. Transitions out
// of a terminal state are refused, which is what makes Close and failure
// paths idempotent.
func (s *Session) setState(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.terminal() {
		return false
	}
	prev := s.state
	s.state = next
	s.log.Debug("session state changed", "from", string(prev), "to", string(next))
	return true
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
