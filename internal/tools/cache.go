package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/memo/internal/cache"
)

// CacheListHandler returns the handler for "cache-list". It prints one JSON
// entry per line, optionally restricted to a namespace ("-" selects entries
// without one), in store order.
func CacheListHandler(c *cache.Cache) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ns := req.GetString("namespace", "")
		limit := req.GetInt("limit", 50)

		entries, err := c.ListJSON()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var sb strings.Builder
		shown := 0
		for _, e := range entries {
			if ns != "" && !InNamespace(e, ns) {
				continue
			}
			if limit > 0 && shown >= limit {
				break
			}
			b, err := json.Marshal(e)
			if err != nil {
				continue
			}
			sb.Write(b)
			sb.WriteByte('\n')
			shown++
		}
		if shown == 0 {
			return mcp.NewToolResultText("No entries."), nil
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// InNamespace reports whether a listed entry belongs to namespace ns; "-"
// matches entries stored without a namespace.
func InNamespace(e cache.JSONEntry, ns string) bool {
	var slots []json.RawMessage
	if err := json.Unmarshal(e.Key, &slots); err != nil || len(slots) != 2 {
		return false
	}
	var got *string
	if err := json.Unmarshal(slots[0], &got); err != nil {
		return false
	}
	if ns == "-" {
		return got == nil
	}
	return got != nil && *got == ns
}

// CacheCleanupHandler returns the handler for "cache-cleanup".
func CacheCleanupHandler(c *cache.Cache) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := c.Cleanup()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("scanned %d entries, removed %d expired and %d corrupt",
			stats.Scanned, stats.Expired, stats.Corrupt)), nil
	}
}
