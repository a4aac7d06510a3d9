// Package logctx decorates slog records with session and RPC attributes
// carried in the context, so every log line emitted under a session or an
// in-flight call is attributable without threading fields by hand.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends contextual groups.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("server_url", sd.ServerURL),
			slog.String("state", sd.State),
		))
	}

	if rd, ok := ctx.Value(rpcDataKey{}).(*RPCData); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", rd.Method),
			slog.String("id", rd.ID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type sessionDataKey struct{}

// SessionData identifies the session a log record belongs to.
type SessionData struct {
	SessionID string
	ServerURL string
	State     string
}

// WithSessionData attaches session attributes to ctx.
func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type rpcDataKey struct{}

// RPCData identifies the in-flight call a log record belongs to.
type RPCData struct {
	Method string
	ID     string
}

// WithRPCData attaches call attributes to ctx.
func WithRPCData(ctx context.Context, data *RPCData) context.Context {
	return context.WithValue(ctx, rpcDataKey{}, data)
}
