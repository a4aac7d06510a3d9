// Package toolcache defines a cache for tool catalogs keyed by server URL.
// Listing tools is typically the first call every consumer makes against a
// session; caching the catalog lets short-lived sessions skip the round
// trip. The session layer consults a Cache only when one is configured and
// treats every cache failure as a miss.
package toolcache

import (
	"context"
	"time"

	"github.com/rohithtp/my-mcp-module/mcp"
)

// DefaultTTL bounds catalog staleness when a backend is constructed without
// an explicit TTL.
const DefaultTTL = 5 * time.Minute

// Cache stores tool catalogs per server URL.
type Cache interface {
	// Get returns the cached catalog for serverURL, or (nil, nil) on a
	// miss. An expired entry is a miss.
	Get(ctx context.Context, serverURL string) ([]mcp.Tool, error)

	// Set stores the catalog for serverURL, replacing any prior entry.
	Set(ctx context.Context, serverURL string, tools []mcp.Tool) error

	// Invalidate drops the entry for serverURL, if any.
	Invalidate(ctx context.Context, serverURL string) error

	// Close releases backend resources.
	Close() error
}
