// Package correlator matches asynchronously delivered response envelopes to
// the in-flight request that owns their id. It is the single piece of shared
// mutable state between the caller goroutines and the event stream listener.
package correlator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rohithtp/my-mcp-module/internal/jsonrpc"
)

var (
	// ErrDuplicateID indicates a Register for an id that is already pending.
	ErrDuplicateID = errors.New("request id already pending")
	// ErrTimeout indicates no response arrived within the waiter's deadline.
	ErrTimeout = errors.New("timed out waiting for response")
	// ErrClosed indicates the correlator was shut down before the call
	// could be registered.
	ErrClosed = errors.New("correlator closed")
)

// Waiter is the single-use delivery slot for one pending request. It is
// fulfilled at most once, by a matching Deliver, by CancelAll, or by the
// waiter's own deadline expiring.
type Waiter struct {
	id    string
	start time.Time
	ch    chan *jsonrpc.Envelope
	errCh chan error
}

// ID returns the correlation key the waiter is registered under.
func (w *Waiter) ID() string { return w.id }

// Correlator tracks in-flight requests by id. All table mutation happens
// under one mutex; fulfillment sends go to buffered channels so Deliver
// never blocks on a slow caller.
type Correlator struct {
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*Waiter
	closed  bool
}

// New constructs an empty Correlator.
func New(log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Correlator{log: log, pending: make(map[string]*Waiter)}
}

// Register creates a waiter for id. It fails with ErrDuplicateID while
// another request with the same id is outstanding, and with ErrClosed after
// CancelAll.
func (c *Correlator) Register(id *jsonrpc.RequestID) (*Waiter, error) {
	key := id.String()
	if key == "" {
		return nil, errors.New("empty request id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.pending[key]; ok {
		return nil, ErrDuplicateID
	}
	w := &Waiter{
		id:    key,
		start: time.Now(),
		ch:    make(chan *jsonrpc.Envelope, 1),
		errCh: make(chan error, 1),
	}
	c.pending[key] = w
	return w, nil
}

// Remove drops the waiter for id without fulfilling it. Used when the
// submission itself fails and nothing will ever be delivered.
func (c *Correlator) Remove(id *jsonrpc.RequestID) {
	c.mu.Lock()
	delete(c.pending, id.String())
	c.mu.Unlock()
}

// Deliver hands a decoded response or error envelope to the waiter that
// owns its id. It reports whether a waiter was found; unmatched envelopes
// (late, duplicate, or never ours) are logged and dropped, never an error.
func (c *Correlator) Deliver(env *jsonrpc.Envelope) bool {
	if env == nil || env.ID.IsNil() {
		return false
	}
	key := env.ID.String()

	c.mu.Lock()
	w, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug("dropping unmatched response", "rpc_id", key, "kind", env.Kind.String())
		return false
	}
	w.ch <- env
	return true
}

// Await blocks until the waiter is fulfilled or ctx expires. On expiry the
// table entry is removed and ErrTimeout (deadline) or ctx.Err()
// (cancellation) is returned; no residual state remains either way.
func (c *Correlator) Await(ctx context.Context, w *Waiter) (*jsonrpc.Envelope, error) {
	select {
	case env := <-w.ch:
		return env, nil
	case err := <-w.errCh:
		return nil, err
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, w.id)
		c.mu.Unlock()
		// A delivery may have raced the deadline; prefer it.
		select {
		case env := <-w.ch:
			return env, nil
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Len reports the number of outstanding waiters.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// CancelAll fulfills every outstanding waiter with err and rejects future
// registrations. Invoked on session close and on stream failure. Calling it
// again is a no-op.
func (c *Correlator) CancelAll(err error) {
	if err == nil {
		err = ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for key, w := range c.pending {
		delete(c.pending, key)
		w.errCh <- err
	}
}
