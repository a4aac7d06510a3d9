// Package memory provides an in-process implementation of toolcache.Cache
// backed by an LRU with per-entry TTL.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rohithtp/my-mcp-module/mcp"
	"github.com/rohithtp/my-mcp-module/toolcache"
)

type entry struct {
	tools     []mcp.Tool
	expiresAt time.Time
}

// Cache implements toolcache.Cache in memory.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, entry]
	ttl   time.Duration
	clock func() time.Time
}

// New creates a memory cache holding at most maxServers catalogs. A
// non-positive ttl falls back to toolcache.DefaultTTL.
func New(maxServers int, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = toolcache.DefaultTTL
	}
	l, err := lru.New[string, entry](maxServers)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{lru: l, ttl: ttl, clock: time.Now}, nil
}

func (c *Cache) Get(ctx context.Context, serverURL string) ([]mcp.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(serverURL)
	if !ok {
		return nil, nil
	}
	if c.clock().After(e.expiresAt) {
		c.lru.Remove(serverURL)
		return nil, nil
	}
	// Copied so a caller mutating the catalog cannot corrupt later hits.
	return slices.Clone(e.tools), nil
}

func (c *Cache) Set(ctx context.Context, serverURL string, tools []mcp.Tool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(serverURL, entry{tools: slices.Clone(tools), expiresAt: c.clock().Add(c.ttl)})
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, serverURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(serverURL)
	return nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}

var _ toolcache.Cache = (*Cache)(nil)
