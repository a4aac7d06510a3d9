package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rohithtp/my-mcp-module/internal/correlator"
	"github.com/rohithtp/my-mcp-module/internal/httpkit"
	"github.com/rohithtp/my-mcp-module/internal/jsonrpc"
	"github.com/rohithtp/my-mcp-module/internal/logctx"
)

// maxResponseBody caps how much of a submission response is read.
const maxResponseBody = 10 << 20

// Call issues a request and blocks until its response arrives, on either
// channel. The result bytes are the raw JSON-RPC result; callers decode
// into their own types. If ctx carries no deadline, the session's default
// call timeout applies, so a call never waits indefinitely.
//
// A server-reported failure surfaces as *ProtocolError; an expired wait as
// ErrCorrelationTimeout; a close or stream loss mid-call as
// *CancelledError.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	env, err := s.roundTrip(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if env.Kind == jsonrpc.KindError {
		return nil, protocolError(env.Err)
	}
	return env.Result, nil
}

// Notify sends a fire-and-forget notification. It fails only on submission
// channel failure; no response is expected or awaited.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.notifyRaw(ctx, method, params)
}

// roundTrip performs one correlated request without the readiness gate (the
// negotiation exchange uses it before Ready). The waiter is registered
// before the POST goes out so a response racing in on the stream cannot be
// missed.
func (s *Session) roundTrip(ctx context.Context, method string, params any) (*jsonrpc.Envelope, error) {
	id := jsonrpc.NewRequestID(s.nextID.Add(1))
	ctx = logctx.WithRPCData(ctx, &logctx.RPCData{Method: method, ID: id.String()})

	w, err := s.corr.Register(id)
	if err != nil {
		if errors.Is(err, correlator.ErrClosed) {
			return nil, s.closedError()
		}
		return nil, err
	}

	data, err := jsonrpc.EncodeRequest(id, method, params)
	if err != nil {
		s.corr.Remove(id)
		return nil, err
	}

	s.log.DebugContext(ctx, "submitting request")
	status, body, err := s.post(ctx, data)
	if err != nil {
		s.corr.Remove(id)
		return nil, &TransportError{Err: err}
	}

	switch status {
	case http.StatusOK:
		// Immediate answer on the submission channel. Only a response or
		// error envelope owned by this request is acceptable here; anything
		// else must not pass for an empty success.
		s.corr.Remove(id)
		env, err := jsonrpc.Decode(body)
		if err != nil {
			return nil, err
		}
		if env.Kind != jsonrpc.KindResponse && env.Kind != jsonrpc.KindError {
			return nil, fmt.Errorf("%w: submission answered with a %s envelope", jsonrpc.ErrMalformedEnvelope, env.Kind)
		}
		if env.ID.String() != id.String() {
			return nil, fmt.Errorf("%w: submission answered for id %q, want %q", jsonrpc.ErrMalformedEnvelope, env.ID.String(), id.String())
		}
		return env, nil

	case http.StatusAccepted:
		// Accepted; the answer arrives on the stream.
		env, err := s.corr.Await(ctx, w)
		if err != nil {
			return nil, err
		}
		return env, nil

	default:
		s.corr.Remove(id)
		return nil, &TransportError{Status: status}
	}
}

// notifyRaw sends a notification without the readiness gate.
func (s *Session) notifyRaw(ctx context.Context, method string, params any) error {
	ctx = logctx.WithRPCData(ctx, &logctx.RPCData{Method: method})
	data, err := jsonrpc.EncodeNotification(method, params)
	if err != nil {
		return err
	}
	status, _, err := s.post(ctx, data)
	if err != nil {
		return &TransportError{Err: err}
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return &TransportError{Status: status}
	}
	return nil
}

// post submits encoded envelope bytes to the session-scoped endpoint and
// returns the status code and body.
func (s *Session) post(ctx context.Context, payload []byte) (int, []byte, error) {
	target := s.currentSubmitURL()
	if target == "" {
		return 0, nil, fmt.Errorf("no submission endpoint yet")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(sessionIDHeader, s.identityHeader())
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.submitClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// closedError picks the right terminal error for a race between a call and
// teardown.
func (s *Session) closedError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFailed && s.failure != nil {
		return s.failure
	}
	return ErrSessionClosed
}

// unmarshalResult decodes a response envelope's result into out.
func unmarshalResult(env *jsonrpc.Envelope, out any) error {
	if env.Kind != jsonrpc.KindResponse {
		return fmt.Errorf("expected response envelope, got %s", env.Kind.String())
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
