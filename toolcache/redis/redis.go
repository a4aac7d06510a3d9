// Package redis provides a Redis-backed implementation of toolcache.Cache,
// letting multiple processes that talk to the same tool servers share one
// catalog cache. Entries expire via Redis TTL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/rohithtp/my-mcp-module/mcp"
	"github.com/rohithtp/my-mcp-module/toolcache"
)

// Config for the Redis-backed cache. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: MCP_TOOLCACHE_REDIS_ADDR
	RedisAddr string `env:"MCP_TOOLCACHE_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: MCP_TOOLCACHE_KEY_PREFIX
	KeyPrefix string `env:"MCP_TOOLCACHE_KEY_PREFIX,default=mcp:tools:"`
	// TTL for cached catalogs. ENV: MCP_TOOLCACHE_TTL
	TTL time.Duration `env:"MCP_TOOLCACHE_TTL,default=5m"`
}

// Cache implements toolcache.Cache on Redis.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New constructs a Cache and verifies connectivity with a ping.
func New(cfg Config) (*Cache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:tools:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = toolcache.DefaultTTL
	}
	return &Cache{client: cl, keyPrefix: prefix, ttl: ttl}, nil
}

// NewFromEnv builds a Cache using envdecode to populate Config.
func NewFromEnv() (*Cache, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

func (c *Cache) key(serverURL string) string { return c.keyPrefix + serverURL }

func (c *Cache) Get(ctx context.Context, serverURL string) ([]mcp.Tool, error) {
	data, err := c.client.Get(ctx, c.key(serverURL)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var tools []mcp.Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		// A corrupt entry is useless; drop it and report a miss.
		_ = c.client.Del(ctx, c.key(serverURL)).Err()
		return nil, nil
	}
	return tools, nil
}

func (c *Cache) Set(ctx context.Context, serverURL string, tools []mcp.Tool) error {
	data, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	return c.client.Set(ctx, c.key(serverURL), data, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, serverURL string) error {
	return c.client.Del(ctx, c.key(serverURL)).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error { return c.client.Close() }

var _ toolcache.Cache = (*Cache)(nil)
