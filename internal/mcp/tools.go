package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jamaly87/codebase-semantic-search/internal/callgraph"
	"github.com/jamaly87/codebase-semantic-search/internal/indexer"
	"github.com/jamaly87/codebase-semantic-search/internal/models"
	"github.com/jamaly87/codebase-semantic-search/internal/outline"
	"github.com/jamaly87/codebase-semantic-search/internal/search"
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) getTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "manage_index",
			Description: "Create, sync, inspect, or clear the semantic index for a codebase. Use action=create the first time you touch a repository, action=sync to pick up recent edits before relying on search results, action=status to check indexing progress, and action=clear to discard an index and start over.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"action": map[string]interface{}{
						"type": "string",
						"enum": []string{"create", "sync", "status", "clear"},
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the repository",
					},
					"force": map[string]interface{}{
						"type":        "boolean",
						"description": "Force a full reindex even if the repository is already indexed",
						"default":     false,
					},
					"splitter": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"ast", "langchain"},
						"description": "Chunking strategy: tree-sitter AST boundaries, or a token-aware line splitter",
						"default":     "ast",
					},
					"customExtensions": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Additional file extensions to index beyond the configured defaults",
					},
					"ignorePatterns": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Additional gitignore-style patterns to exclude from indexing",
					},
				},
				Required: []string{"action", "path"},
			},
		},
		{
			Name:        "search_codebase",
			Description: "Search an indexed codebase with a natural-language query. Supports lang:/path:/must:/exclude: operators, scope filtering (runtime/docs/mixed), and grouped-by-symbol results.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path":            map[string]interface{}{"type": "string", "description": "Absolute path to the repository"},
					"query":           map[string]interface{}{"type": "string", "description": "Natural language search query, optionally prefixed with an operator line"},
					"limit":           map[string]interface{}{"type": "number", "default": 5},
					"scope":           map[string]interface{}{"type": "string", "enum": []string{"runtime", "docs", "mixed"}, "default": "mixed"},
					"resultMode":      map[string]interface{}{"type": "string", "enum": []string{"raw", "grouped"}, "default": "raw"},
					"groupBy":         map[string]interface{}{"type": "string", "enum": []string{"symbol"}},
					"extensionFilter": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"excludePatterns": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"useIgnoreFiles":  map[string]interface{}{"type": "boolean", "default": true},
					"returnRaw":       map[string]interface{}{"type": "boolean", "default": false},
					"showScores":      map[string]interface{}{"type": "boolean", "default": false},
					"useReranker":     map[string]interface{}{"type": "boolean"},
					"rankingMode":     map[string]interface{}{"type": "string", "enum": []string{"default", "auto_changed_first"}, "default": "default"},
					"debug":           map[string]interface{}{"type": "boolean", "default": false},
				},
				Required: []string{"path", "query"},
			},
		},
		{
			Name:        "file_outline",
			Description: "List the top-level symbols (functions, methods, types) declared in one file of an indexed codebase, with line ranges and stable symbol ids for use with call_graph.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path":             map[string]interface{}{"type": "string", "description": "Absolute path to the repository"},
					"file":             map[string]interface{}{"type": "string", "description": "Path to the file, relative to the repository root"},
					"limitSymbols":     map[string]interface{}{"type": "number"},
					"resolveMode":      map[string]interface{}{"type": "string", "enum": []string{"outline", "exact"}, "default": "outline"},
					"symbolLabelExact": map[string]interface{}{"type": "string"},
					"start_line":       map[string]interface{}{"type": "number"},
					"end_line":         map[string]interface{}{"type": "number"},
				},
				Required: []string{"path", "file"},
			},
		},
		{
			Name:        "call_graph",
			Description: "Walk the static call graph outward from a symbol, in the callers direction, the callees direction, or both, up to a bounded depth.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"path": map[string]interface{}{"type": "string", "description": "Absolute path to the repository"},
					"symbolRef": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"file":        map[string]interface{}{"type": "string"},
							"symbolId":    map[string]interface{}{"type": "string"},
							"symbolLabel": map[string]interface{}{"type": "string"},
							"span": map[string]interface{}{
								"type":        "object",
								"description": "Disambiguates symbolLabel when it matches more than one declaration in file",
								"properties": map[string]interface{}{
									"startLine": map[string]interface{}{"type": "number"},
									"endLine":   map[string]interface{}{"type": "number"},
								},
							},
						},
					},
					"direction": map[string]interface{}{"type": "string", "enum": []string{"callers", "callees", "both"}, "default": "both"},
					"depth":     map[string]interface{}{"type": "number", "default": 1},
					"limit":     map[string]interface{}{"type": "number", "default": 50},
				},
				Required: []string{"path", "symbolRef"},
			},
		},
		{
			Name:        "get_indexing_status",
			Description: "Report indexing progress and diagnostics for a single codebase.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
				Required:   []string{"path"},
			},
		},
		{
			Name:        "list_codebases",
			Description: "List every codebase this server has tracked, grouped by status.",
			InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
		},
		{
			Name:        "read_file",
			Description: "Read the full contents of a file by absolute path, for following up on a search or outline result.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
				Required:   []string{"path"},
			},
		},
	}
}

// --- manage_index ---

func (s *Server) handleManageIndex(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	action, _ := args["action"].(string)
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string"), nil
	}

	switch action {
	case "create":
		opts := indexer.IndexOptions{
			Splitter:         argString(args, "splitter", "ast"),
			CustomExtensions: argStringSlice(args, "customExtensions"),
			IgnorePatterns:   argStringSlice(args, "ignorePatterns"),
		}
		return s.manageIndexCreate(ctx, path, argBool(args, "force", false), opts)
	case "sync":
		return s.manageIndexSync(ctx, path)
	case "status":
		return s.manageIndexStatus(ctx, path)
	case "clear":
		return s.manageIndexClear(ctx, path)
	default:
		return errorResult(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

func (s *Server) manageIndexCreate(ctx context.Context, path string, force bool, opts indexer.IndexOptions) (*mcp.CallToolResult, error) {
	if _, ok := s.snapshot.GetInfo(path); ok && !force {
		if info, _ := s.snapshot.GetInfo(path); info.Status == models.StatusIndexing {
			return jsonResult(envelope{
				"action": "create", "path": path, "status": string(info.Status),
				"humanText": "This codebase is already being indexed.",
			}), nil
		}
	}

	if err := s.snapshot.SetIndexing(path, 0); err != nil {
		return errorResult(fmt.Sprintf("failed to mark indexing: %v", err)), nil
	}

	job, err := s.indexer.IndexWithOptions(path, force, opts)
	if err != nil {
		_ = s.snapshot.SetIndexFailed(path, err.Error(), nil)
		return errorResult(fmt.Sprintf("failed to start indexing: %v", err)), nil
	}

	go s.finalizeIndexJob(path, job.ID)

	return jsonResult(envelope{
		"action":    "create",
		"path":      path,
		"status":    "indexing",
		"humanText": fmt.Sprintf("Indexing started for %s (job %s).", path, job.ID),
		"hints": envelope{
			"status": envelope{"tool": "get_indexing_status", "args": envelope{"path": path}},
		},
	}), nil
}

// finalizeIndexJob polls a background index job to completion and folds the
// result into the snapshot store, the way the old synchronous handler used
// to but without blocking the calling tool invocation.
func (s *Server) finalizeIndexJob(path, jobID string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		job, err := s.indexer.GetJob(jobID)
		if err != nil {
			return
		}
		switch job.Status {
		case models.IndexStatusCompleted:
			stats := models.SyncCounters{Added: job.FilesIndexed}
			_ = s.snapshot.SetIndexed(path, stats, s.indexer.Fingerprint(), models.FingerprintVerified)
			if s.config.Watcher.Enabled {
				if err := s.watcher.RegisterCodebaseWatcher(context.Background(), path); err != nil {
					log.Printf("Warning: failed to register watcher for %s: %v", path, err)
				}
			}
			return
		case models.IndexStatusFailed:
			_ = s.snapshot.SetIndexFailed(path, job.Error, nil)
			return
		}
	}
}

func (s *Server) manageIndexSync(ctx context.Context, path string) (*mcp.CallToolResult, error) {
	decision, err := s.freshness.EnsureFreshness(ctx, path, models.EnsureFreshnessOptions{Reason: "manual"})
	if err != nil {
		return errorResult(fmt.Sprintf("sync failed: %v", err)), nil
	}
	return jsonResult(envelope{
		"action":            "sync",
		"path":              path,
		"status":            string(decision.Mode),
		"freshnessDecision": decision,
		"humanText":         fmt.Sprintf("Sync finished with mode %s.", decision.Mode),
	}), nil
}

func (s *Server) manageIndexStatus(ctx context.Context, path string) (*mcp.CallToolResult, error) {
	info, ok := s.snapshot.GetInfo(path)
	if !ok {
		return jsonResult(envelope{"action": "status", "path": path, "status": "not_indexed", "humanText": "This codebase has not been indexed yet."}), nil
	}
	return jsonResult(envelope{
		"action":    "status",
		"path":      path,
		"status":    string(info.Status),
		"humanText": fmt.Sprintf("Codebase %s is %s.", path, info.Status),
		"info":      info,
	}), nil
}

func (s *Server) manageIndexClear(ctx context.Context, path string) (*mcp.CallToolResult, error) {
	if err := s.indexer.ClearCache(path); err != nil {
		return errorResult(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}
	if err := s.snapshot.RemoveCompletely(path); err != nil {
		return errorResult(fmt.Sprintf("failed to clear snapshot entry: %v", err)), nil
	}
	s.changed.Invalidate(path)
	s.watcher.UnregisterCodebaseWatcher(path)

	return jsonResult(envelope{
		"action":    "clear",
		"path":      path,
		"status":    "not_indexed",
		"humanText": fmt.Sprintf("Cleared the index for %s.", path),
	}), nil
}

// --- search_codebase ---

func (s *Server) handleSearchCodebase(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string"), nil
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query is required and must be a string"), nil
	}

	ready := s.checkReadiness(ctx, path)
	if !ready.Ready {
		return jsonResult(ready.Envelope), nil
	}

	opts := search.Options{
		Path:            path,
		Query:           query,
		Limit:           argInt(args, "limit", s.config.Search.MaxResults),
		Scope:           search.Scope(argString(args, "scope", string(search.ScopeMixed))),
		ResultMode:      search.ResultMode(argString(args, "resultMode", string(search.ResultModeRaw))),
		GroupBy:         argString(args, "groupBy", ""),
		ExtensionFilter: argStringSlice(args, "extensionFilter"),
		ExcludePatterns: argStringSlice(args, "excludePatterns"),
		ReturnRaw:       argBool(args, "returnRaw", false),
		ShowScores:      argBool(args, "showScores", false),
		RankingMode:     search.RankingMode(argString(args, "rankingMode", string(search.RankingDefault))),
		Debug:           argBool(args, "debug", false),
	}
	if v, ok := args["useReranker"].(bool); ok {
		opts.UseReranker = &v
	}

	resp, err := s.pipeline.Run(ctx, opts)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	return jsonResult(envelope{
		"status":     "ok",
		"resultMode": resp.ResultMode,
		"results":    resp.Results,
		"warnings":   resp.Warnings,
		"hints":      resp.Hints,
		"rerank":     resp.Rerank,
		"clamp":      resp.Clamp,
	}), nil
}

// --- file_outline ---

func (s *Server) handleFileOutline(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string"), nil
	}
	file, ok := args["file"].(string)
	if !ok || file == "" {
		return errorResult("file is required and must be a string"), nil
	}

	ready := s.checkReadiness(ctx, path)
	if !ready.Ready {
		return jsonResult(ready.Envelope), nil
	}

	limit := argInt(args, "limitSymbols", 0)
	res, err := outline.BuildOutline(path, file, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to build outline: %v", err)), nil
	}

	if res.Status != outline.StatusOK {
		return jsonResult(envelope{"status": res.Status, "hasMore": false}), nil
	}

	if startLine, endLine, ok := fileOutlineRange(args); ok {
		res.Outline = outline.FilterByRange(res.Outline, startLine, endLine)
	}

	if argString(args, "resolveMode", "outline") == "exact" {
		label := argString(args, "symbolLabelExact", "")
		sym, found, ambiguous := outline.ResolveExact(res.Outline, label)
		switch {
		case ambiguous:
			return jsonResult(envelope{"status": outline.StatusAmbiguous, "outline": res.Outline, "hasMore": res.HasMore}), nil
		case !found:
			return jsonResult(envelope{"status": outline.StatusNotFound, "hasMore": false}), nil
		default:
			return jsonResult(envelope{"status": outline.StatusOK, "outline": outline.Outline{Symbols: []outline.Symbol{sym}}, "hasMore": false}), nil
		}
	}

	return jsonResult(envelope{"status": outline.StatusOK, "outline": res.Outline, "hasMore": res.HasMore}), nil
}

// --- call_graph ---

func (s *Server) handleCallGraph(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string"), nil
	}

	ready := s.checkReadiness(ctx, path)
	if !ready.Ready {
		return jsonResult(ready.Envelope), nil
	}

	refArg, _ := args["symbolRef"].(map[string]interface{})
	span, _ := refArg["span"].(map[string]interface{})
	ref := callgraph.SymbolRef{
		File:        argString(refArg, "file", ""),
		SymbolID:    argString(refArg, "symbolId", ""),
		SymbolLabel: argString(refArg, "symbolLabel", ""),
		StartLine:   argInt(span, "startLine", 0),
		EndLine:     argInt(span, "endLine", 0),
	}
	if ref.File == "" {
		return errorResult("symbolRef.file is required"), nil
	}

	direction := argString(args, "direction", callgraph.DirectionBoth)
	depth := clamp(argInt(args, "depth", 1), 1, 3)
	limit := argInt(args, "limit", 50)
	if limit <= 0 {
		limit = 50
	}

	result, err := callgraph.BuildGraph(path, ref, direction, depth, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to build call graph: %v", err)), nil
	}

	return jsonResult(envelope{"status": result.Status, "nodes": result.Nodes, "edges": result.Edges}), nil
}

// --- get_indexing_status ---

func (s *Server) handleGetIndexingStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string"), nil
	}

	info, ok := s.snapshot.GetInfo(path)
	if !ok {
		return jsonResult(envelope{"status": "not_indexed", "humanText": fmt.Sprintf("%s has not been indexed.", path)}), nil
	}

	var humanText string
	switch info.Status {
	case models.StatusIndexing:
		humanText = fmt.Sprintf("Indexing %s: %d%% complete.", path, info.IndexingPercentage)
	case models.StatusIndexed:
		humanText = fmt.Sprintf("%s is indexed: %d files, %d chunks.", path, info.IndexedFiles, info.TotalChunks)
	case models.StatusSyncCompleted:
		humanText = fmt.Sprintf("%s is up to date (last sync +%d/-%d/~%d).", path, info.LastDelta.Added, info.LastDelta.Removed, info.LastDelta.Modified)
	case models.StatusRequiresReindex:
		humanText = fmt.Sprintf("%s requires a reindex: %s.", path, info.ReindexReason)
	case models.StatusIndexFailed:
		humanText = fmt.Sprintf("%s failed to index: %s.", path, info.ErrorMessage)
	default:
		humanText = fmt.Sprintf("%s status: %s.", path, info.Status)
	}

	return jsonResult(envelope{"status": string(info.Status), "humanText": humanText, "info": info}), nil
}

// --- list_codebases ---

func (s *Server) handleListCodebases(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	all := s.snapshot.GetAll()
	grouped := map[string][]models.CodebaseInfo{}
	for _, info := range all {
		grouped[string(info.Status)] = append(grouped[string(info.Status)], info)
	}
	return jsonResult(envelope{"status": "ok", "codebases": grouped}), nil
}

// --- read_file ---

func (s *Server) handleReadFile(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return errorResult("path is required and must be a string"), nil
	}
	if !filepath.IsAbs(path) {
		return errorResult("path must be absolute"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return jsonResult(envelope{"status": "not_found", "path": path}), nil
		}
		return errorResult(fmt.Sprintf("failed to read file: %v", err)), nil
	}

	return jsonResult(envelope{"status": "ok", "path": path, "content": string(data)}), nil
}

// --- argument helpers ---

func argString(args map[string]interface{}, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// fileOutlineRange reports the start_line/end_line narrowing args for
// file_outline, if either was supplied.
func fileOutlineRange(args map[string]interface{}) (startLine, endLine int, ok bool) {
	_, hasStart := args["start_line"]
	_, hasEnd := args["end_line"]
	if !hasStart && !hasEnd {
		return 0, 0, false
	}
	startLine = argInt(args, "start_line", 1)
	endLine = argInt(args, "end_line", 1<<31-1)
	return startLine, endLine, true
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
