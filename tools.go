package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rohithtp/my-mcp-module/mcp"
)

// ListTools returns the server's tool catalog via tools/list. When a tool
// cache is configured, a fresh cached catalog short-circuits the round
// trip; cache failures are treated as misses, never as call failures.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	cacheKey := s.baseURL.String()
	if s.cache != nil {
		tools, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			s.log.Debug("tool cache get failed", "error", err)
		} else if tools != nil {
			return tools, nil
		}
	}

	raw, err := s.Call(ctx, string(mcp.ToolsListMethod), struct{}{})
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var result mcp.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result.Tools); err != nil {
			s.log.Debug("tool cache set failed", "error", err)
		}
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name via tools/call and returns its result.
// The result's IsError flag is surfaced as a Go error carrying the
// extracted text.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	raw, err := s.Call(ctx, string(mcp.ToolsCallMethod), mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/call result: %w", err)
	}
	if result.IsError {
		return &result, fmt.Errorf("tool %s returned error: %s", name, mcp.ExtractText(result.Content))
	}
	return &result, nil
}

// Ping checks that the server is responsive over the correlated path.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.Call(ctx, string(mcp.PingMethod), nil)
	return err
}
