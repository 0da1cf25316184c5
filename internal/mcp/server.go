package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"tabfold-mcp-server/internal/browser"
	"tabfold-mcp-server/internal/bookmarks"
	"tabfold-mcp-server/internal/config"
	"tabfold-mcp-server/internal/dupes"
	"tabfold-mcp-server/internal/mangle"
	"tabfold-mcp-server/internal/reconcile"
	"tabfold-mcp-server/internal/recorder"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Deps are the runtime pieces the server drives. Engine, State and Journal
// are optional.
type Deps struct {
	Tabs    browser.Backend
	Engine  *mangle.Engine
	State   reconcile.StateStore
	Journal *recorder.Recorder
}

// Server wires the MCP runtime, the tab backend, and the reconciliation engine.
type Server struct {
	cfg        config.Config
	tabs       browser.Backend
	engine     *mangle.Engine
	state      reconcile.StateStore
	journal    *recorder.Recorder
	reconciler *reconcile.Engine
	detector   dupes.Detector
	tools      map[string]Tool
	mcpServer  *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the TabFold MCP server and registers all tools.
func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Tabs == nil {
		return nil, fmt.Errorf("tab backend is required")
	}

	opts := reconcile.Options{
		Provider:     deps.Tabs,
		Store:        deps.State,
		Refresher:    deps.Tabs,
		Palette:      cfg.Reconcile.Palette,
		RefreshDelay: cfg.Reconcile.GetRefreshDelay(),
	}
	if deps.Journal != nil {
		opts.Journal = deps.Journal
	}
	reconciler, err := reconcile.NewEngine(opts)
	if err != nil {
		return nil, err
	}

	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:        cfg,
		tabs:       deps.Tabs,
		engine:     deps.Engine,
		state:      deps.State,
		journal:    deps.Journal,
		reconciler: reconciler,
		detector:   dupes.JaccardDetector{MinTokens: cfg.Duplicates.MinTokens},
		tools:      make(map[string]Tool),
		mcpServer:  mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start launches the stdio server.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by the CLI and tests).
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return tool.Execute(ctx, args)
}

func (s *Server) registerAllTools() {
	// Browser lifecycle
	s.registerTool(&LaunchBrowserTool{tabs: s.tabs})
	s.registerTool(&ShutdownBrowserTool{tabs: s.tabs})

	// Live tab state
	s.registerTool(&ListTabsTool{tabs: s.tabs})
	s.registerTool(&RefreshTabsTool{tabs: s.tabs})

	// Folder reconciliation
	s.registerTool(&ListFoldersTool{server: s})
	s.registerTool(&ReconcileFoldersTool{server: s})

	// Duplicates
	s.registerTool(&FindDuplicatesTool{tabs: s.tabs, detector: s.detector, threshold: s.cfg.Duplicates.Threshold})
	s.registerTool(&CloseDuplicatesTool{tabs: s.tabs})

	// Fact operations
	s.registerTool(&QueryFactsTool{engine: s.engine})
	s.registerTool(&ReadFactsTool{engine: s.engine})
	s.registerTool(&EvaluateRuleTool{engine: s.engine})
	s.registerTool(&SubmitRuleTool{engine: s.engine})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}

// loadFolders reads the folder source given by path, or the configured one,
// and publishes its targets to the fact engine.
func (s *Server) loadFolders(ctx context.Context, path string) ([]reconcile.TargetSet, string, error) {
	if path == "" {
		path = s.cfg.Reconcile.Source
	}
	if path == "" {
		return nil, "", fmt.Errorf("no folder source: pass source or set reconcile.source")
	}

	sets, err := bookmarks.Load(path)
	if err != nil {
		return nil, path, err
	}

	if s.engine != nil {
		if err := s.engine.ReplacePredicates(ctx, mangle.FolderPredicates, mangle.FolderFacts(sets)); err != nil {
			log.Printf("warning: failed to publish folder facts: %v", err)
		}
	}
	return sets, path, nil
}
