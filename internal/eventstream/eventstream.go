// Package eventstream consumes the long-lived server-to-client push channel
// (text/event-stream framing) and classifies its events. It runs on its own
// goroutine for the life of the session and is the only writer into the
// correlator's delivery path.
package eventstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"

	"github.com/rohithtp/my-mcp-module/internal/httpkit"
	"github.com/rohithtp/my-mcp-module/internal/jsonrpc"
)

// Event names recognized on the stream. Anything else is ignored without
// being fatal.
const (
	EventEndpoint = "endpoint"
	EventMessage  = "message"
	EventResponse = "response"
)

// sessionIDMarker precedes the session identity inside the endpoint event's
// URL-like payload.
const sessionIDMarker = "sessionId="

var eventStreamMediaType = contenttype.NewMediaType("text/event-stream")

// Handler receives classified stream traffic. Callbacks run on the
// listener goroutine; implementations must not block indefinitely.
type Handler interface {
	// HandleIdentity is invoked when the endpoint event arrives. endpoint is
	// the raw payload (the submission path), sessionID the extracted
	// identity.
	HandleIdentity(endpoint, sessionID string)
	// HandleEnvelope is invoked with each decoded message/response envelope.
	HandleEnvelope(env *jsonrpc.Envelope)
	// HandleDisconnect is invoked exactly once when the stream ends, with
	// nil on a context-driven stop and the cause otherwise.
	HandleDisconnect(err error)
}

// Listener owns the push-channel connection.
type Listener struct {
	url        string
	httpClient *http.Client
	headers    map[string]string
	handler    Handler
	log        *slog.Logger
}

// New constructs a Listener that will connect to url and report to handler.
func New(url string, httpClient *http.Client, headers map[string]string, handler Handler, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Listener{url: url, httpClient: httpClient, headers: headers, handler: handler, log: log}
}

// Connect opens the persistent GET connection and validates that the server
// is actually speaking an event stream. It returns once headers are in, so
// the caller knows the connection phase succeeded before any event arrives.
func (l *Listener) Connect(ctx context.Context) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", eventStreamMediaType.String())
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range l.headers {
		req.Header.Set(k, v)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 2048)
		return nil, fmt.Errorf("event stream returned status %d: %s", resp.StatusCode, body)
	}
	ct := contenttype.NewMediaType(resp.Header.Get("Content-Type"))
	if ct.Type != eventStreamMediaType.Type || ct.Subtype != eventStreamMediaType.Subtype {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream has content type %q, want %q", ct.String(), eventStreamMediaType.String())
	}
	return newStream(resp), nil
}

// Run consumes s until the stream ends or ctx is canceled, classifying each
// event. It always invokes HandleDisconnect exactly once before returning.
func (l *Listener) Run(ctx context.Context, s *Stream) {
	defer s.Close()

	for {
		ev, err := s.Next()
		if err != nil {
			if ctx.Err() != nil {
				l.handler.HandleDisconnect(nil)
			} else {
				l.handler.HandleDisconnect(err)
			}
			return
		}

		switch ev.Name {
		case EventEndpoint:
			id := ExtractSessionID(ev.Data)
			if id == "" {
				l.log.Warn("endpoint event without session id", "payload", ev.Data)
				continue
			}
			l.handler.HandleIdentity(strings.TrimSpace(ev.Data), id)

		case EventMessage, EventResponse:
			env, err := jsonrpc.Decode([]byte(ev.Data))
			if err != nil {
				// A single malformed event is dropped, not fatal.
				l.log.Warn("skipping malformed stream payload", "error", err)
				continue
			}
			l.handler.HandleEnvelope(env)

		default:
			l.log.Debug("ignoring unrecognized stream event", "event", ev.Name)
		}
	}
}

// ExtractSessionID pulls the session identity out of an endpoint payload
// such as "/message?sessionId=abc123". Returns "" when the marker is absent.
func ExtractSessionID(payload string) string {
	_, rest, ok := strings.Cut(payload, sessionIDMarker)
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "&#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

// Event is one named event read off the push channel.
type Event struct {
	Name string
	Data string
}

// Stream wraps the open response body and parses event framing: "event:"
// and "data:" lines accumulate until a blank line dispatches the event.
type Stream struct {
	resp    *http.Response
	scanner *bufio.Scanner
}

func newStream(resp *http.Response) *Stream {
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{resp: resp, scanner: sc}
}

// Next blocks until a complete event is available. It returns the
// underlying read error (io.EOF included) once the connection ends.
func (s *Stream) Next() (Event, error) {
	var (
		name      string
		dataLines []string
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if name == "" && len(dataLines) == 0 {
				continue // stray separator
			}
			if name == "" {
				name = EventMessage // SSE default event name
			}
			return Event{Name: name, Data: strings.Join(dataLines, "\n")}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keep-alive
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			dataLines = append(dataLines, value)
		default:
			// id:, retry:, and unknown fields are irrelevant here.
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, fmt.Errorf("event stream closed")
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	return s.resp.Body.Close()
}
