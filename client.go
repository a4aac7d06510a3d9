package mcpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rohithtp/my-mcp-module/internal/correlator"
	"github.com/rohithtp/my-mcp-module/internal/eventstream"
	"github.com/rohithtp/my-mcp-module/internal/httpkit"
	"github.com/rohithtp/my-mcp-module/internal/jsonrpc"
	"github.com/rohithtp/my-mcp-module/internal/logctx"
	"github.com/rohithtp/my-mcp-module/mcp"
	"github.com/rohithtp/my-mcp-module/toolcache"
)

// sessionIDHeader carries the session identity on submission requests.
// Until the server supplies the authoritative identity via the endpoint
// event, a locally generated provisional id is sent instead.
const sessionIDHeader = "X-MCP-Session-ID"

// Session is a live client session against one tool server. It owns one
// event stream listener goroutine and one request correlator, and is safe
// for concurrent use once Open returns.
type Session struct {
	log          *slog.Logger
	baseURL      *url.URL
	submitClient *http.Client
	streamClient *http.Client
	headers      map[string]string
	clientInfo   mcp.ImplementationInfo
	capabilities mcp.ClientCapabilities
	callTimeout  time.Duration
	cache        toolcache.Cache

	corr          *correlator.Correlator
	listener      *eventstream.Listener
	provisionalID string
	nextID        atomic.Uint64

	mu         sync.Mutex
	state      State
	sessionID  string
	submitURL  string
	serverInfo mcp.ImplementationInfo
	serverCaps mcp.ServerCapabilities
	failure    error

	identityCh   chan struct{}
	cancelListen context.CancelFunc
	listenerDone chan struct{}
	listening    bool
	closeOnce    sync.Once
}

// Open establishes a session: it connects the event stream, waits for the
// server-issued session identity, performs the initialize negotiation, and
// returns a Ready session. On any failure the listener and all resources
// are released before the error is returned; there is no half-open state
// to clean up.
func Open(ctx context.Context, serverURL string, opts ...Option) (*Session, error) {
	cfg := sessionConfig{
		handshakeTimeout: DefaultHandshakeTimeout,
		callTimeout:      DefaultCallTimeout,
		eventsPath:       DefaultEventsPath,
		clientInfo:       mcp.ImplementationInfo{Name: "my-mcp-module", Version: "1.0.0"},
	}
	for _, o := range opts {
		o(&cfg)
	}

	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", serverURL)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = slog.New(logctx.Handler{Handler: logger.Handler()})

	submitClient := cfg.submitClient
	if submitClient == nil {
		submitClient = httpkit.NewRequestClient(cfg.callTimeout, userAgent(cfg.clientInfo))
	}
	streamClient := cfg.streamClient
	if streamClient == nil {
		streamClient = httpkit.NewStreamClient(userAgent(cfg.clientInfo))
	}

	s := &Session{
		log:           logger,
		baseURL:       base,
		submitClient:  submitClient,
		streamClient:  streamClient,
		headers:       cfg.headers,
		clientInfo:    cfg.clientInfo,
		capabilities:  cfg.capabilities,
		callTimeout:   cfg.callTimeout,
		cache:         cfg.cache,
		corr:          correlator.New(logger),
		provisionalID: uuid.NewString(),
		state:         StateDisconnected,
		identityCh:    make(chan struct{}),
		listenerDone:  make(chan struct{}),
	}

	eventsURL := base.JoinPath(cfg.eventsPath).String()
	s.listener = eventstream.New(eventsURL, streamClient, s.streamHeaders(), s, logger)

	listenCtx, cancel := context.WithCancel(context.Background())
	s.cancelListen = cancel

	// Connect the push channel. The listener context, not the open context,
	// backs the request: the stream must outlive Open.
	s.setState(StateConnectingStream)
	stream, err := s.listener.Connect(listenCtx)
	if err != nil {
		return nil, s.abortOpen(StateConnectingStream, err)
	}

	s.setState(StateAwaitingIdentity)
	s.listening = true
	go func() {
		defer close(s.listenerDone)
		s.listener.Run(listenCtx, stream)
	}()

	identityTimer := time.NewTimer(cfg.handshakeTimeout)
	defer identityTimer.Stop()
	select {
	case <-s.identityCh:
	case <-identityTimer.C:
		return nil, s.abortOpen(StateAwaitingIdentity, fmt.Errorf("no endpoint event within %s", cfg.handshakeTimeout))
	case <-ctx.Done():
		return nil, s.abortOpen(StateAwaitingIdentity, ctx.Err())
	case <-s.listenerDone:
		return nil, s.abortOpen(StateAwaitingIdentity, fmt.Errorf("event stream ended before identity"))
	}

	s.setState(StateNegotiating)
	if err := s.negotiate(ctx, cfg.handshakeTimeout); err != nil {
		return nil, s.abortOpen(StateNegotiating, err)
	}

	s.setState(StateReady)
	s.log.InfoContext(s.logContext(ctx), "session ready",
		"server_name", s.serverInfo.Name,
		"server_version", s.serverInfo.Version,
	)
	return s, nil
}

// negotiate runs the initialize request/response and the initialized
// notification through the regular correlation path.
func (s *Session) negotiate(ctx context.Context, timeout time.Duration) error {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env, err := s.roundTrip(hctx, string(mcp.InitializeMethod), mcp.InitializeRequest{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    s.capabilities,
		ClientInfo:      s.clientInfo,
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if env.Kind == jsonrpc.KindError {
		return fmt.Errorf("initialize: %w", protocolError(env.Err))
	}

	var result mcp.InitializeResult
	if err := unmarshalResult(env, &result); err != nil {
		return fmt.Errorf("initialize result: %w", err)
	}

	s.mu.Lock()
	s.serverInfo = result.ServerInfo
	s.serverCaps = result.Capabilities
	s.mu.Unlock()

	if err := s.notifyRaw(hctx, string(mcp.InitializedNotificationMethod), mcp.InitializedNotification{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// abortOpen tears the half-built session down and shapes the returned
// HandshakeError. Every early exit from Open funnels through here so the
// listener goroutine is never leaked.
func (s *Session) abortOpen(st State, cause error) error {
	herr := &HandshakeError{State: st, Err: cause}

	s.mu.Lock()
	if !s.state.terminal() {
		s.state = StateFailed
		s.failure = herr
	}
	s.mu.Unlock()

	s.cancelListen()
	if s.listening {
		<-s.listenerDone
	}
	s.corr.CancelAll(herr)
	s.log.Warn("session handshake failed", "state", string(st), "error", cause)
	return herr
}

// Close shuts the session down: a best-effort shutdown notification, then
// a deterministic stop of the listener, then cancellation of every pending
// call. It is idempotent; closing a Closed or Failed session is a no-op.
// Listener resources are released even when the shutdown notification
// fails.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		st := s.state
		s.mu.Unlock()
		if st.terminal() {
			return
		}

		if st == StateReady {
			nctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.notifyRaw(nctx, string(mcp.ShutdownNotificationMethod), nil); err != nil {
				s.log.Debug("shutdown notification failed", "error", err)
			}
			cancel()
		}

		s.cancelListen()
		if s.listening {
			<-s.listenerDone
		}
		s.corr.CancelAll(&CancelledError{Reason: "session closed"})

		s.mu.Lock()
		if !s.state.terminal() {
			s.state = StateClosed
		}
		s.mu.Unlock()
		s.log.Info("session closed", "session_id", s.sessionID)
	})
	return nil
}

// Identity returns the server-issued session identity, or "" before the
// endpoint event has been observed.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// ServerInfo returns the implementation info the server reported during
// negotiation.
func (s *Session) ServerInfo() mcp.ImplementationInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// ServerCapabilities returns the capability set negotiated at handshake.
func (s *Session) ServerCapabilities() mcp.ServerCapabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverCaps
}

// --- eventstream.Handler ---

// HandleIdentity records the authoritative session identity exactly once
// and resolves the submission URL from the endpoint payload.
func (s *Session) HandleIdentity(endpoint, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" {
		s.log.Warn("ignoring duplicate endpoint event", "session_id", sessionID)
		return
	}
	u, err := s.baseURL.Parse(endpoint)
	if err != nil {
		s.log.Warn("endpoint event with unparsable payload", "payload", endpoint, "error", err)
		return
	}
	s.sessionID = sessionID
	s.submitURL = u.String()
	close(s.identityCh)
	s.log.Debug("session identity acquired", "session_id", sessionID, "submit_url", s.submitURL)
}

// HandleEnvelope routes decoded stream envelopes. Responses and errors go
// to the correlator; server-initiated requests are outside this client's
// scope and are dropped with a log line.
func (s *Session) HandleEnvelope(env *jsonrpc.Envelope) {
	switch env.Kind {
	case jsonrpc.KindResponse, jsonrpc.KindError:
		s.corr.Deliver(env)
	default:
		s.log.Debug("ignoring server-initiated message", "method", env.Method, "kind", env.Kind.String())
	}
}

// HandleDisconnect reacts to the stream ending. A nil error means the stop
// was deliberate (Close or a failed Open is already cleaning up); anything
// else fails the session and cancels every outstanding call.
func (s *Session) HandleDisconnect(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	st := s.state
	if !st.terminal() {
		s.state = StateFailed
		s.failure = &HandshakeError{State: st, Err: err}
	}
	s.mu.Unlock()
	if st.terminal() {
		return
	}

	s.log.Warn("event stream lost", "state", string(st), "error", err)
	if st == StateReady {
		s.corr.CancelAll(&CancelledError{Reason: "stream closed"})
	} else {
		s.corr.CancelAll(&HandshakeError{State: st, Err: err})
	}
}

// --- helpers ---

// ready gates public operations on the lifecycle state.
func (s *Session) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
		return nil
	case StateFailed:
		return s.failure
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrNotReady
	}
}

// identityHeader returns the value for the session id header: the
// authoritative identity once known, the provisional one before that.
func (s *Session) identityHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" {
		return s.sessionID
	}
	return s.provisionalID
}

func (s *Session) currentSubmitURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitURL
}

func (s *Session) streamHeaders() map[string]string {
	h := make(map[string]string, len(s.headers)+1)
	for k, v := range s.headers {
		h[k] = v
	}
	h[sessionIDHeader] = s.provisionalID
	return h
}

func (s *Session) logContext(ctx context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: s.sessionID,
		ServerURL: s.baseURL.String(),
		State:     string(s.state),
	})
}

func userAgent(info mcp.ImplementationInfo) string {
	return fmt.Sprintf("%s/%s", info.Name, info.Version)
}
