package mcpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rohithtp/my-mcp-module/mcp"
	"github.com/rohithtp/my-mcp-module/toolcache"
)

const (
	// DefaultHandshakeTimeout bounds the wait for the endpoint event and
	// the negotiation exchange.
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultCallTimeout applies to calls whose context carries no
	// deadline of its own. Calls never wait indefinitely.
	DefaultCallTimeout = 30 * time.Second

	// DefaultEventsPath is appended to the server URL for the stream GET.
	DefaultEventsPath = "/sse"
)

// Option configures a Session at Open time.
type Option func(*sessionConfig)

type sessionConfig struct {
	logger           *slog.Logger
	submitClient     *http.Client
	streamClient     *http.Client
	handshakeTimeout time.Duration
	callTimeout      time.Duration
	eventsPath       string
	headers          map[string]string
	clientInfo       mcp.ImplementationInfo
	capabilities     mcp.ClientCapabilities
	cache            toolcache.Cache
}

// WithLogger sets the slog logger used by the session and its listener.
// If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *sessionConfig) { c.logger = l }
}

// WithHTTPClient overrides the client used for submission POSTs.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *sessionConfig) { c.submitClient = hc }
}

// WithStreamHTTPClient overrides the client used for the event stream GET.
// It must not carry an overall timeout.
func WithStreamHTTPClient(hc *http.Client) Option {
	return func(c *sessionConfig) { c.streamClient = hc }
}

// WithHandshakeTimeout bounds identity acquisition and negotiation.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *sessionConfig) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithCallTimeout sets the default deadline for calls whose context has
// none.
func WithCallTimeout(d time.Duration) Option {
	return func(c *sessionConfig) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithEventsPath overrides the path of the event stream endpoint.
func WithEventsPath(p string) Option {
	return func(c *sessionConfig) {
		if p != "" {
			c.eventsPath = p
		}
	}
}

// WithHeader adds an HTTP header (e.g. Authorization) to every request the
// session makes, on both channels.
func WithHeader(key, value string) Option {
	return func(c *sessionConfig) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// WithClientInfo sets the implementation info advertised during the
// handshake.
func WithClientInfo(info mcp.ImplementationInfo) Option {
	return func(c *sessionConfig) { c.clientInfo = info }
}

// WithCapabilities sets the capability set advertised during the handshake.
func WithCapabilities(caps mcp.ClientCapabilities) Option {
	return func(c *sessionConfig) { c.capabilities = caps }
}

// WithToolCache makes ListTools consult (and populate) the given catalog
// cache. The session does not close the cache.
func WithToolCache(tc toolcache.Cache) Option {
	return func(c *sessionConfig) { c.cache = tc }
}
