package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rohithtp/my-mcp-module/internal/jsonrpc"
	"github.com/rohithtp/my-mcp-module/mcp"
	"github.com/rohithtp/my-mcp-module/toolcache/memory"
)

// fakeServer is a minimal tool server: an event stream endpoint that issues
// the session identity and relays pushed responses, and a submission
// endpoint that answers per-method.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	sessionID    string
	omitEndpoint bool
	// duplicateEndpoint, when set, is emitted as a second endpoint event
	// right after the first one.
	duplicateEndpoint string

	// respond overrides the answer for a request; return handled=false to
	// fall through to the default behavior.
	respond func(env *jsonrpc.Envelope) (status int, body []byte, handled bool)

	push       chan string
	dropStream chan struct{}
	dropOnce   sync.Once

	mu       sync.Mutex
	received []*jsonrpc.Envelope
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		t:          t,
		sessionID:  "sess-1",
		push:       make(chan string, 16),
		dropStream: make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", f.handleStream)
	mux.HandleFunc("/message", f.handleMessage)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) handleStream(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		f.t.Error("response writer is not a flusher")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if !f.omitEndpoint {
		fmt.Fprintf(w, "event: endpoint\ndata: /message?sessionId=%s\n\n", f.sessionID)
		if f.duplicateEndpoint != "" {
			fmt.Fprintf(w, "event: endpoint\ndata: /message?sessionId=%s\n\n", f.duplicateEndpoint)
		}
	}
	fl.Flush()

	for {
		select {
		case data := <-f.push:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			fl.Flush()
		case <-f.dropStream:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (f *fakeServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	env, err := jsonrpc.Decode(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.received = append(f.received, env)
	f.mu.Unlock()

	if env.Kind == jsonrpc.KindNotification {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if f.respond != nil {
		if status, respBody, handled := f.respond(env); handled {
			f.write(w, status, respBody)
			return
		}
	}

	switch env.Method {
	case string(mcp.InitializeMethod):
		result := `{"protocolVersion":"2024-11-05","capabilities":{"tools":{"listChanged":false}},"serverInfo":{"name":"fake-server","version":"0.1.0"}}`
		f.write(w, http.StatusOK, responseBody(f.t, env.ID, result))
	default:
		f.pushResponse(env.ID, `{}`)
		w.WriteHeader(http.StatusAccepted)
	}
}

func (f *fakeServer) write(w http.ResponseWriter, status int, body []byte) {
	if len(body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// pushResponse emits a response envelope on the event stream.
func (f *fakeServer) pushResponse(id *jsonrpc.RequestID, result string) {
	f.push <- string(responseBody(f.t, id, result))
}

func (f *fakeServer) drop() {
	f.dropOnce.Do(func() { close(f.dropStream) })
}

func (f *fakeServer) methodCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.received {
		if env.Method == method {
			n++
		}
	}
	return n
}

func responseBody(t *testing.T, id *jsonrpc.RequestID, result string) []byte {
	t.Helper()
	idJSON, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal id: %v", err)
	}
	return fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%s,"result":%s}`, idJSON, result)
}

func openSession(t *testing.T, f *fakeServer, opts ...Option) *Session {
	t.Helper()
	s, err := Open(context.Background(), f.srv.URL, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenHandshake(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	s := openSession(t, f)

	if s.State() != StateReady {
		t.Fatalf("state = %q", s.State())
	}
	if s.Identity() != "sess-1" {
		t.Fatalf("identity = %q", s.Identity())
	}
	if got := s.ServerInfo().Name; got != "fake-server" {
		t.Fatalf("server name = %q", got)
	}
	caps := s.ServerCapabilities()
	if caps.Tools == nil {
		t.Fatal("expected tools capability")
	}
	if f.methodCount(string(mcp.InitializedNotificationMethod)) != 1 {
		t.Fatal("initialized notification not sent")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state after close = %q", s.State())
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDuplicateEndpointEventIgnored(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.duplicateEndpoint = "sess-2"
	s := openSession(t, f)

	// A correlated round trip proves the stream has been consumed past the
	// second endpoint event: the ping's answer is pushed after it.
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if s.Identity() != "sess-1" {
		t.Fatalf("identity changed after duplicate endpoint event: %q", s.Identity())
	}
	if s.State() != StateReady {
		t.Fatalf("state = %q", s.State())
	}
}

func TestCallAsyncViaStream(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/echo" {
			return 0, nil, false
		}
		f.pushResponse(env.ID, `{"echo":"hello"}`)
		return http.StatusAccepted, nil, true
	}
	s := openSession(t, f)

	raw, err := s.Call(context.Background(), "test/echo", map[string]any{"msg": "hello"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var result struct {
		Echo string `json:"echo"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Echo != "hello" {
		t.Fatalf("echo = %q", result.Echo)
	}
}

func TestCallDirectResponse(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/direct" {
			return 0, nil, false
		}
		return http.StatusOK, responseBody(t, env.ID, `{"direct":true}`), true
	}
	s := openSession(t, f)

	raw, err := s.Call(context.Background(), "test/direct", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(raw) != `{"direct":true}` {
		t.Fatalf("result = %s", raw)
	}
}

func TestCallDirectNonResponseBody(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/weird" {
			return 0, nil, false
		}
		// Well-formed envelope, but neither a response nor an error.
		return http.StatusOK, []byte(`{"jsonrpc":"2.0","method":"notifications/oops"}`), true
	}
	s := openSession(t, f)

	raw, err := s.Call(context.Background(), "test/weird", nil)
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
	}
	if raw != nil {
		t.Fatalf("no result expected, got %s", raw)
	}
}

func TestCallDirectMismatchedID(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/wrongid" {
			return 0, nil, false
		}
		return http.StatusOK, responseBody(t, jsonrpc.NewRequestID(9999), `{"ok":true}`), true
	}
	s := openSession(t, f)

	if _, err := s.Call(context.Background(), "test/wrongid", nil); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope for mismatched id, got %v", err)
	}
}

func TestCallServerError(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/fail" {
			return 0, nil, false
		}
		idJSON, _ := json.Marshal(env.ID)
		body := fmt.Appendf(nil, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, idJSON)
		return http.StatusOK, body, true
	}
	s := openSession(t, f)

	_, err := s.Call(context.Background(), "test/fail", nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Code != -32601 {
		t.Fatalf("code = %d", perr.Code)
	}
}

func TestCallTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/slow" {
			return 0, nil, false
		}
		// Accepted but never answered.
		return http.StatusAccepted, nil, true
	}
	s := openSession(t, f, WithCallTimeout(50*time.Millisecond))

	_, err := s.Call(context.Background(), "test/slow", nil)
	if !errors.Is(err, ErrCorrelationTimeout) {
		t.Fatalf("expected ErrCorrelationTimeout, got %v", err)
	}
}

func TestCallRejectedStatus(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/reject" {
			return 0, nil, false
		}
		return http.StatusForbidden, nil, true
	}
	s := openSession(t, f)

	_, err := s.Call(context.Background(), "test/reject", nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Status != http.StatusForbidden {
		t.Fatalf("status = %d", terr.Status)
	}
}

func TestOpenHandshakeTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.omitEndpoint = true

	_, err := Open(context.Background(), f.srv.URL, WithHandshakeTimeout(100*time.Millisecond))
	var herr *HandshakeError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	if herr.State != StateAwaitingIdentity {
		t.Fatalf("failed state = %q", herr.State)
	}
}

func TestOpenStreamConnectFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL)
	var herr *HandshakeError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	if herr.State != StateConnectingStream {
		t.Fatalf("failed state = %q", herr.State)
	}
}

func TestCloseCancelsPendingCalls(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	posted := make(chan struct{}, 1)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/hang" {
			return 0, nil, false
		}
		posted <- struct{}{}
		return http.StatusAccepted, nil, true
	}
	s := openSession(t, f)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), "test/hang", nil)
		errCh <- err
	}()

	select {
	case <-posted:
	case <-time.After(time.Second):
		t.Fatal("call never reached the server")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-errCh:
		var cerr *CancelledError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected CancelledError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending call never resolved")
	}
}

func TestCallAfterClose(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	s := openSession(t, f)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := s.Call(context.Background(), "test/late", nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Notify(context.Background(), "test/late", nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("notify: expected ErrSessionClosed, got %v", err)
	}
}

func TestStreamLossFailsSession(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	posted := make(chan struct{}, 1)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != "test/hang" {
			return 0, nil, false
		}
		posted <- struct{}{}
		return http.StatusAccepted, nil, true
	}
	s := openSession(t, f)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), "test/hang", nil)
		errCh <- err
	}()
	select {
	case <-posted:
	case <-time.After(time.Second):
		t.Fatal("call never reached the server")
	}

	f.drop()

	select {
	case err := <-errCh:
		var cerr *CancelledError
		if !errors.As(err, &cerr) {
			t.Fatalf("expected CancelledError for in-flight call, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending call never resolved")
	}

	// The session is Failed; later calls surface the stored handshake error.
	deadline := time.Now().Add(time.Second)
	for s.State() != StateFailed && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	var herr *HandshakeError
	if _, err := s.Call(context.Background(), "test/after", nil); !errors.As(err, &herr) {
		t.Fatalf("expected HandshakeError after stream loss, got %v", err)
	}
}

func TestNotify(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	s := openSession(t, f)

	if err := s.Notify(context.Background(), "notifications/progress", map[string]any{"progress": 1}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if f.methodCount("notifications/progress") != 1 {
		t.Fatal("notification not received")
	}
}

func TestListToolsAndCache(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != string(mcp.ToolsListMethod) {
			return 0, nil, false
		}
		result := `{"tools":[{"name":"echo","description":"Echo a message","inputSchema":{"type":"object","properties":{"msg":{"type":"string"}}}}]}`
		return http.StatusOK, responseBody(t, env.ID, result), true
	}

	cache, err := memory.New(4, time.Minute)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	s := openSession(t, f, WithToolCache(cache))

	tools, err := s.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("tools = %+v", tools)
	}

	// Second listing is served from the cache without another round trip.
	if _, err := s.ListTools(context.Background()); err != nil {
		t.Fatalf("cached list: %v", err)
	}
	if n := f.methodCount(string(mcp.ToolsListMethod)); n != 1 {
		t.Fatalf("expected 1 tools/list round trip, got %d", n)
	}
}

func TestCallTool(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.respond = func(env *jsonrpc.Envelope) (int, []byte, bool) {
		if env.Method != string(mcp.ToolsCallMethod) {
			return 0, nil, false
		}
		var params mcp.CallToolParams
		if err := json.Unmarshal(env.Params, &params); err != nil {
			t.Errorf("unmarshal params: %v", err)
		}
		if params.Name == "broken" {
			return http.StatusOK, responseBody(t, env.ID, `{"content":[{"type":"text","text":"boom"}],"isError":true}`), true
		}
		f.pushResponse(env.ID, `{"content":[{"type":"text","text":"hi there"}]}`)
		return http.StatusAccepted, nil, true
	}
	s := openSession(t, f)

	result, err := s.CallTool(context.Background(), "echo", map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if got := mcp.ExtractText(result.Content); got != "hi there" {
		t.Fatalf("content = %q", got)
	}

	res, err := s.CallTool(context.Background(), "broken", nil)
	if err == nil {
		t.Fatal("expected error for isError result")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error should carry tool text: %v", err)
	}
	if res == nil || !res.IsError {
		t.Fatalf("result should still be returned: %+v", res)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	s := openSession(t, f)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "not-a-url"); err == nil {
		t.Fatal("expected error for relative url")
	}
}
