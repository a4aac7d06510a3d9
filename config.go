package mcpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config carries the environment-driven session settings. Defaults can be
// loaded via envdecode.
type Config struct {
	// ServerURL is the base URL of the tool server. ENV: MCP_SERVER_URL
	ServerURL string `env:"MCP_SERVER_URL,default=http://localhost:3000"`
	// EventsPath is the event stream endpoint path. ENV: MCP_EVENTS_PATH
	EventsPath string `env:"MCP_EVENTS_PATH,default=/sse"`
	// HandshakeTimeout bounds session establishment. ENV: MCP_HANDSHAKE_TIMEOUT
	HandshakeTimeout time.Duration `env:"MCP_HANDSHAKE_TIMEOUT,default=5s"`
	// CallTimeout is the default per-call deadline. ENV: MCP_CALL_TIMEOUT
	CallTimeout time.Duration `env:"MCP_CALL_TIMEOUT,default=30s"`
}

// ConfigFromEnv populates a Config using envdecode; struct-tag defaults
// apply for unset variables.
func ConfigFromEnv() Config {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return cfg
}

// OpenFromEnv opens a session against the environment-configured server.
// Options are applied after the config-derived ones and may override them.
func OpenFromEnv(ctx context.Context, opts ...Option) (*Session, error) {
	cfg := ConfigFromEnv()
	base := []Option{
		WithEventsPath(cfg.EventsPath),
		WithHandshakeTimeout(cfg.HandshakeTimeout),
		WithCallTimeout(cfg.CallTimeout),
	}
	s, err := Open(ctx, cfg.ServerURL, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("open session to %s: %w", cfg.ServerURL, err)
	}
	return s, nil
}
