package mcp

import (
	"context"
	"fmt"
	"log"

	"github.com/jamaly87/codebase-semantic-search/internal/capability"
	"github.com/jamaly87/codebase-semantic-search/internal/changedfiles"
	"github.com/jamaly87/codebase-semantic-search/internal/embeddings"
	"github.com/jamaly87/codebase-semantic-search/internal/freshness"
	"github.com/jamaly87/codebase-semantic-search/internal/indexer"
	"github.com/jamaly87/codebase-semantic-search/internal/search"
	"github.com/jamaly87/codebase-semantic-search/internal/snapshot"
	"github.com/jamaly87/codebase-semantic-search/internal/vectordb"
	"github.com/jamaly87/codebase-semantic-search/internal/watcher"
	"github.com/jamaly87/codebase-semantic-search/pkg/config"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server represents the MCP server coordinating the indexer, the freshness
// and watcher subsystems, and the search pipeline behind the seven tools.
type Server struct {
	config *config.Config

	mcpServer *server.MCPServer

	embeddingsClient *embeddings.Client
	vectorDB         *vectordb.Client
	indexer          *indexer.Indexer

	snapshot    *snapshot.Store
	freshness   *freshness.Coordinator
	watcher     *watcher.Subsystem
	changed     *changedfiles.Cache
	capability  *capability.Resolver
	pipeline    *search.Pipeline
}

// NewServer creates a new MCP server instance, wiring every collaborator
// described by the coordination layer before any tool is registered.
func NewServer(cfg *config.Config) (*Server, error) {
	embeddingsClient := embeddings.NewClient(&cfg.Embeddings)

	vectorDB, err := vectordb.NewClient(&cfg.VectorDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector DB client: %w", err)
	}

	ctx := context.Background()
	if err := vectorDB.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize vector DB: %w", err)
	}

	idx, err := indexer.NewIndexer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	fingerprint := idx.Fingerprint()

	snapStore, err := snapshot.New(&cfg.Snapshot, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	changedCache := changedfiles.New()

	freshnessCoord := freshness.New(cfg.Freshness, snapStore, idx, changedCache, fingerprint)

	watcherSubsystem := watcher.New(cfg.Watcher, freshnessCoord, freshnessCoord, snapStore)
	freshnessCoord.SetWatcher(watcherSubsystem)

	capResolver := capability.New(cfg.Capabilities, nil)

	pipeline := search.NewPipeline(&cfg.Search, embeddingsClient, vectorDB, changedCache, capResolver, nil)

	s := &Server{
		config:           cfg,
		embeddingsClient: embeddingsClient,
		vectorDB:         vectorDB,
		indexer:          idx,
		snapshot:         snapStore,
		freshness:        freshnessCoord,
		watcher:          watcherSubsystem,
		changed:          changedCache,
		capability:       capResolver,
		pipeline:         pipeline,
	}

	mcpServer := server.NewMCPServer(cfg.Server.Name, cfg.Server.Version)

	tools := s.getTools()
	for _, tool := range tools {
		mcpServer.AddTool(tool, s.createToolHandler(tool.Name))
	}
	s.mcpServer = mcpServer

	log.Printf("MCP server initialized: %s v%s", cfg.Server.Name, cfg.Server.Version)
	log.Printf("Registered %d tools", len(tools))

	return s, nil
}

// createToolHandler creates a handler function for a given tool name
func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Printf("Handling tool call: %s", toolName)

		var args map[string]interface{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]interface{})
			if !ok {
				return errorResult("invalid arguments format"), nil
			}
		} else {
			args = make(map[string]interface{})
		}

		switch toolName {
		case "manage_index":
			return s.handleManageIndex(ctx, args)
		case "search_codebase":
			return s.handleSearchCodebase(ctx, args)
		case "file_outline":
			return s.handleFileOutline(ctx, args)
		case "call_graph":
			return s.handleCallGraph(ctx, args)
		case "get_indexing_status":
			return s.handleGetIndexingStatus(ctx, args)
		case "list_codebases":
			return s.handleListCodebases(ctx, args)
		case "read_file":
			return s.handleReadFile(ctx, args)
		default:
			return errorResult(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}
	}
}

// Start begins background freshness/watcher loops, then starts the MCP
// server with stdio transport. It blocks until the server exits.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Watcher.Enabled {
		if err := s.watcher.Start(ctx, s.snapshot.GetIndexed()); err != nil {
			log.Printf("Warning: failed to start watcher subsystem: %v", err)
		}
	}

	go s.freshness.RunPeriodicSync(ctx)

	log.Printf("Starting MCP server on stdio transport...")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Close shuts the watcher down and releases collaborator resources.
func (s *Server) Close() error {
	log.Printf("Shutting down MCP server...")
	s.watcher.Stop()
	s.indexer.Close()
	return nil
}
