// Package mcpclient implements the client half of an MCP-style tool
// protocol in which requests are POSTed over HTTP and responses may arrive
// asynchronously on a separate server-to-client event stream.
//
// A session couples three pieces: a background listener consuming the
// push channel, a correlator matching stream-delivered responses back to
// the caller that issued them, and a handshake state machine gating the
// session until the server has supplied its identity and negotiation has
// completed.
//
// Construction
//
//	sess, err := mcpclient.Open(ctx, "http://localhost:3000",
//	    mcpclient.WithLogger(logger),
//	)
//	if err != nil {
//	    // the listener is already released; nothing to clean up
//	}
//	defer sess.Close()
//
//	tools, err := sess.ListTools(ctx)
//
// # Concurrency
//
// A session is safe for concurrent callers. Responses are matched strictly
// by request id, never by order: a later call may complete before an
// earlier one. Every call carries a deadline (explicit via context, or the
// session default), and closing the session resolves all outstanding calls
// with a typed cancellation error before Close returns.
//
// # Errors
//
// Failures are typed by origin: *TransportError for the HTTP channels,
// *ProtocolError for server-reported JSON-RPC errors, *HandshakeError for
// establishment failures, ErrCorrelationTimeout for expired waits, and
// *CancelledError for calls in flight at teardown. The package performs no
// automatic retries; retry policy belongs to the caller, which knows
// whether re-running a handshake or a tool call is safe.
package mcpclient
