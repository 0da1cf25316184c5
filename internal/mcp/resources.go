package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tabfold-mcp-server/internal/reconcile"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"tabfold://about",
			"TabFold About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, browser connection, and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"tabfold://allocator",
			"Color Allocator",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Persisted palette index and the color the next new group gets."),
		),
		s.handleAllocatorResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"tabfold://runs/latest",
			"Latest Run",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Journal events of the most recent reconcile run."),
		),
		s.handleLatestRunResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"tabfold://facts/{predicate}{?limit}",
			"Facts",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Newest base facts of one predicate (tab, tab_url, tab_group, folder_target)."),
		),
		s.handleFactsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":      s.cfg.Server.Name,
		"version":   s.cfg.Server.Version,
		"provider":  s.cfg.Browser.Provider,
		"connected": s.tabs.IsConnected(),
		"notes": []string{
			"Resources are read-only; use tools for actions.",
			"reconcile-folders and close-duplicates only act when called with confirm=true.",
			"Call list-folders first so folder facts are loaded for query-facts.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleAllocatorResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	alloc, err := reconcile.LoadAllocator(ctx, s.state, s.cfg.Reconcile.Palette)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"index":      alloc.Index,
		"next_color": alloc.Color(),
		"palette":    alloc.Palette,
		"persisted":  s.state != nil,
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleLatestRunResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("run journal disabled")
	}
	events, err := s.journal.Latest()
	if err != nil {
		return nil, err
	}
	runID := ""
	if len(events) > 0 {
		runID = events[0].RunID
	}
	payload := map[string]interface{}{
		"run_id": runID,
		"count":  len(events),
		"events": events,
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleFactsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.engine == nil {
		return nil, errNoEngine
	}

	predicate := argString(request.Params.Arguments["predicate"])
	if predicate == "" {
		return nil, fmt.Errorf("missing predicate")
	}
	limit := clampLimit(asInt(request.Params.Arguments["limit"]), 25, 500)

	facts := recentFacts(s.engine, predicate, limit)
	payload := map[string]interface{}{
		"predicate": predicate,
		"limit":     limit,
		"count":     len(facts),
		"facts":     facts,
	}
	return jsonContents(request.Params.URI, payload)
}

func jsonContents(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func asInt(v any) int {
	switch value := v.(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		n, _ := strconv.Atoi(value)
		return n
	case []string:
		if len(value) == 0 {
			return 0
		}
		n, _ := strconv.Atoi(value[0])
		return n
	default:
		return 0
	}
}
