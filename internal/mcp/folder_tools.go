package mcp

import (
	"context"
	"fmt"

	"tabfold-mcp-server/internal/reconcile"
)

type folderSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Links   int    `json:"links"`
	Targets int    `json:"targets"`
}

func summarizeFolders(sets []reconcile.TargetSet) []folderSummary {
	out := make([]folderSummary, 0, len(sets))
	for _, set := range sets {
		out = append(out, folderSummary{
			ID:      set.ID,
			Title:   set.Label(),
			Links:   len(set.Links),
			Targets: len(reconcile.Compile(set)),
		})
	}
	return out
}

// ListFoldersTool shows the bookmark folders that can become tab groups.
type ListFoldersTool struct {
	server *Server
}

func (t *ListFoldersTool) Name() string { return "list-folders" }
func (t *ListFoldersTool) Description() string {
	return `List bookmark folders that contain links.

SOURCE: a Chrome profile "Bookmarks" file or a YAML folder list. Defaults to
reconcile.source from the config.

Also loads folder_target facts so folder_missing / misgrouped_tab can be queried.

Returns: {source, folders: [{id, title, links, targets}]}`
}
func (t *ListFoldersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"source": map[string]interface{}{
				"type":        "string",
				"description": "Path to a Bookmarks JSON or folders YAML file (optional)",
			},
		},
	}
}
func (t *ListFoldersTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sets, source, err := t.server.loadFolders(ctx, getStringArg(args, "source"))
	if err != nil {
		return nil, err
	}
	qualifying := reconcile.Qualifying(sets)
	return map[string]interface{}{
		"source":  source,
		"count":   len(qualifying),
		"folders": summarizeFolders(qualifying),
	}, nil
}

// ReconcileFoldersTool opens missing bookmarks and groups tabs per folder.
type ReconcileFoldersTool struct {
	server *Server
}

func (t *ReconcileFoldersTool) Name() string { return "reconcile-folders" }
func (t *ReconcileFoldersTool) Description() string {
	return `Make tab groups match bookmark folders: open missing links, then group each
folder's tabs per window under the folder title with the next palette color.

TWO-STEP FLOW:
1. Call without confirm -> returns status "needs_approval" with a preview,
   or "up_to_date" when nothing would change.
2. Show the preview to the user; call again with confirm=true to apply.

With several folders and no folder_ids, returns "selection_needed" with candidates.

Returns: {status, message, preview, plans, result}`
}
func (t *ReconcileFoldersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"folder_ids": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Folders to reconcile (from list-folders)",
			},
			"confirm": map[string]interface{}{
				"type":        "boolean",
				"description": "Apply the changes. Without it only a preview is returned.",
			},
			"source": map[string]interface{}{
				"type":        "string",
				"description": "Bookmarks file overriding reconcile.source",
			},
		},
	}
}
func (t *ReconcileFoldersTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sets, _, err := t.server.loadFolders(ctx, getStringArg(args, "source"))
	if err != nil {
		return nil, err
	}
	selected := getStringSliceArg(args, "folder_ids")

	var summary reconcile.Summary
	if getBoolArg(args, "confirm", false) {
		summary, err = t.server.reconciler.Reconcile(ctx, sets, selected, reconcile.AutoApprove)
	} else {
		summary, err = t.server.reconciler.Preview(ctx, sets, selected)
	}
	if err != nil {
		return nil, err
	}
	return summaryPayload(summary), nil
}

func summaryPayload(summary reconcile.Summary) map[string]interface{} {
	payload := map[string]interface{}{
		"run_id": summary.RunID,
		"status": summary.Status,
	}

	switch summary.Status {
	case reconcile.StatusSelectionNeeded:
		payload["message"] = fmt.Sprintf("%d folders have links; pass folder_ids to choose.", len(summary.Candidates))
		payload["candidates"] = summarizeFolders(summary.Candidates)
	case reconcile.StatusNeedsApproval:
		payload["message"] = summary.Decision.Preview
		payload["preview"] = summary.Decision.Preview
		payload["total_to_open"] = summary.Decision.TotalToOpen
		payload["plans"] = summary.Plans
	case reconcile.StatusUpToDate:
		payload["message"] = "Tabs already match the bookmark folders."
		payload["plans"] = summary.Plans
	case reconcile.StatusApplied:
		payload["message"] = summary.Notice
		payload["result"] = summary.Result
		payload["plans"] = summary.Plans
	default:
		payload["message"] = summary.Notice
	}
	return payload
}
