package mcp

import (
	"encoding/json"
	"time"

	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

// envelope is the common shape every tool handler returns, marshalled as
// the single text content block the protocol expects.
type envelope map[string]interface{}

func jsonResult(e envelope) *mcp.CallToolResult {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(data)}},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "Error: " + message}},
		IsError: true,
	}
}

// requiresReindexEnvelope builds the §4.5 requires_reindex shape.
func requiresReindexEnvelope(path string, info models.CodebaseInfo, runtime models.IndexFingerprint, reason models.ReindexReason) envelope {
	return envelope{
		"status": "requires_reindex",
		"reason": "requires_reindex",
		"compatibility": envelope{
			"runtimeFingerprint": runtime,
			"indexedFingerprint": info.IndexFingerprint,
			"reindexReason":      reason,
		},
		"hints": envelope{
			"reindex": envelope{"tool": "manage_index", "args": envelope{"action": "create", "path": path, "force": true}},
		},
	}
}

// notIndexedEnvelope builds the §4.5 not_indexed shape, optionally noting a
// stale-local detection reason.
func notIndexedEnvelope(path string, staleProof string) envelope {
	hints := envelope{
		"create": envelope{"tool": "manage_index", "args": envelope{"action": "create", "path": path}},
	}
	if staleProof != "" {
		hints["staleLocal"] = envelope{"completionProof": staleProof}
	}
	return envelope{
		"status": "not_indexed",
		"reason": "not_indexed",
		"hints":  hints,
	}
}

// notReadyEnvelope builds the §4.5 not_ready shape for a codebase that is
// actively indexing.
func notReadyEnvelope(path string, percentage int) envelope {
	return envelope{
		"status":             "not_ready",
		"reason":             "indexing",
		"indexingPercentage": percentage,
		"hints": envelope{
			"status":       envelope{"tool": "get_indexing_status", "args": envelope{"path": path}},
			"retryAfterMs": 2000,
		},
	}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
