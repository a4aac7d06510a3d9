// Package httpkit builds the HTTP clients used by the session layer. Two
// profiles exist: a bounded request client for submissions, and a streaming
// client with no overall timeout for the long-lived event stream (a total
// timeout would sever the push channel mid-session).
package httpkit

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Timeouts and pool limits shared by both client profiles.
const (
	DefaultDialTimeout         = 10 * time.Second
	DefaultKeepAlive           = 30 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultResponseHeader      = 15 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConnsPerHost = 4
)

// NewTransport creates an http.Transport with explicit connection-phase
// timeouts. ResponseHeaderTimeout covers time-to-first-byte only; body
// reads are bounded by the http.Client timeout or the request context.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeader,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}
}

// NewRequestClient builds the client for submission POSTs. timeout bounds
// the entire request including body read; zero falls back to 30s.
func NewRequestClient(timeout time.Duration, userAgent string) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: NewTransport(), ua: userAgent},
	}
}

// NewStreamClient builds the client for the persistent event stream
// connection. It carries no overall timeout; lifecycle is governed by the
// request context.
func NewStreamClient(userAgent string) *http.Client {
	t := NewTransport()
	// The stream stays silent between events; a header timeout is still
	// fine (it only covers time-to-first-byte) but the client timeout must
	// be absent.
	return &http.Client{
		Transport: &userAgentTransport{base: t, ua: userAgent},
	}
}

// userAgentTransport injects the User-Agent header on every request unless
// one is already set.
type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ua != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.base.RoundTrip(req)
}

// DrainAndClose reads up to limit bytes from rc and closes it, returning
// the connection to the pool.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, limit))
	rc.Close()
}

// ReadErrorBody reads up to limit bytes from rc for inclusion in an error
// message, then drains and closes the remainder.
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	DrainAndClose(rc, 1024)
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}
