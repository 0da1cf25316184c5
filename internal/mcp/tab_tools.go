package mcp

import (
	"context"

	"tabfold-mcp-server/internal/browser"
)

// LaunchBrowserTool connects to (or starts) Chrome using the configured endpoint.
type LaunchBrowserTool struct {
	tabs browser.Backend
}

func (t *LaunchBrowserTool) Name() string { return "launch-browser" }
func (t *LaunchBrowserTool) Description() string {
	return `Connect to Chrome over DevTools, launching it when no debugger_url is configured.

CALL THIS FIRST before listing or grouping tabs.

WHEN TO USE:
- Before list-tabs, reconcile-folders or find-duplicates
- After shutdown-browser to reconnect
- Idempotent: safe to call if already connected

Returns: {status: "started"|"already_connected", control_url}`
}
func (t *LaunchBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *LaunchBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if t.tabs.IsConnected() {
		return map[string]interface{}{
			"status":      "already_connected",
			"control_url": t.tabs.ControlURL(),
		}, nil
	}

	if err := t.tabs.Start(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "started",
		"control_url": t.tabs.ControlURL(),
	}, nil
}

// ShutdownBrowserTool disconnects from Chrome.
type ShutdownBrowserTool struct {
	tabs browser.Backend
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown-browser" }
func (t *ShutdownBrowserTool) Description() string {
	return `Disconnect from Chrome.

A Chrome started by launch-browser is closed. An attached Chrome keeps
running with all its tabs. Tab groups and facts are kept.`
}
func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ShutdownBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := t.tabs.Shutdown(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status": "stopped",
	}, nil
}

// ListTabsTool returns the live tabs with their groups.
type ListTabsTool struct {
	tabs browser.Backend
}

func (t *ListTabsTool) Name() string { return "list-tabs" }
func (t *ListTabsTool) Description() string {
	return `List open tabs with window and group membership.

Returns: {tabs: [{id, url, title, window_id, group_id}], groups: [{id, label, color, collapsed}]}`
}
func (t *ListTabsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"window_id": map[string]interface{}{
				"type":        "string",
				"description": "Only list tabs of this window",
			},
		},
	}
}
func (t *ListTabsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	tabs, err := t.tabs.ListTabs(ctx)
	if err != nil {
		return nil, err
	}

	if window := getStringArg(args, "window_id"); window != "" {
		filtered := tabs[:0]
		for _, tab := range tabs {
			if tab.WindowID == window {
				filtered = append(filtered, tab)
			}
		}
		tabs = filtered
	}

	return map[string]interface{}{
		"count":  len(tabs),
		"tabs":   tabs,
		"groups": t.tabs.Groups(),
	}, nil
}

// RefreshTabsTool re-snapshots tabs into the fact engine.
type RefreshTabsTool struct {
	tabs browser.Backend
}

func (t *RefreshTabsTool) Name() string { return "refresh-tabs" }
func (t *RefreshTabsTool) Description() string {
	return `Re-read open tabs and replace the tab facts (tab, tab_url, tab_group).

Use before query-facts when tabs changed outside a reconcile run.`
}
func (t *RefreshTabsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *RefreshTabsTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := t.tabs.Refresh(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status": "refreshed",
		"groups": len(t.tabs.Groups()),
	}, nil
}
