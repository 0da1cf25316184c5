package mcp

import (
	"context"
	"fmt"

	"tabfold-mcp-server/internal/browser"
	"tabfold-mcp-server/internal/dupes"
)

type duplicateTab struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type duplicateCluster struct {
	Keep     string         `json:"keep"`
	Close    []string       `json:"close"`
	AvgScore float64        `json:"avg_score"`
	Tabs     []duplicateTab `json:"tabs"`
	Preview  string         `json:"preview"`
}

// FindDuplicatesTool clusters tabs with near-identical content.
type FindDuplicatesTool struct {
	tabs      browser.Backend
	detector  dupes.Detector
	threshold float64
}

func (t *FindDuplicatesTool) Name() string { return "find-duplicates" }
func (t *FindDuplicatesTool) Description() string {
	return `Find open tabs that show the same page or near-identical content.

Tabs with the same normalized URL always match. Otherwise page text and titles
are compared by word overlap against threshold (default from config, 0.82).

Returns: {clusters: [{keep, close, avg_score, tabs, preview}]}.
Pass keep and close to close-duplicates after the user agrees to the preview.`
}
func (t *FindDuplicatesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"threshold": map[string]interface{}{
				"type":        "number",
				"description": "Similarity in (0, 1] at which tabs count as duplicates",
			},
		},
	}
}
func (t *FindDuplicatesTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	threshold := getFloatArg(args, "threshold", t.threshold)
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1], got %v", threshold)
	}

	items, err := dupes.Collect(ctx, t.tabs, t.tabs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]dupes.Item, len(items))
	for _, it := range items {
		byID[it.TabID] = it
	}

	clusters := t.detector.Detect(items, threshold)
	out := make([]duplicateCluster, 0, len(clusters))
	for _, c := range clusters {
		dc := duplicateCluster{
			Keep:     c.Keep,
			Close:    c.Closing(),
			AvgScore: c.AvgScore,
		}
		for _, id := range c.IDs {
			it := byID[id]
			dc.Tabs = append(dc.Tabs, duplicateTab{ID: id, Title: it.Title, URL: it.URL})
		}
		dc.Preview = dupes.ClosePreview(len(dc.Close), byID[c.Keep])
		out = append(out, dc)
	}

	return map[string]interface{}{
		"threshold": threshold,
		"scanned":   len(items),
		"count":     len(out),
		"clusters":  out,
	}, nil
}

// CloseDuplicatesTool closes the extra tabs of one duplicate cluster.
type CloseDuplicatesTool struct {
	tabs browser.Backend
}

func (t *CloseDuplicatesTool) Name() string { return "close-duplicates" }
func (t *CloseDuplicatesTool) Description() string {
	return `Close duplicate tabs while keeping one.

Without confirm=true this only returns the preview ("Close N tabs and keep tab X?").

Returns: {status: "needs_approval"|"closed", closed, kept}`
}
func (t *CloseDuplicatesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"keep_id": map[string]interface{}{
				"type":        "string",
				"description": "Tab to keep open",
			},
			"close_ids": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Tabs to close; keep_id is ignored if listed",
			},
			"confirm": map[string]interface{}{
				"type":        "boolean",
				"description": "Actually close the tabs",
			},
		},
		"required": []string{"keep_id", "close_ids"},
	}
}
func (t *CloseDuplicatesTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	keep := getStringArg(args, "keep_id")
	if keep == "" {
		return nil, fmt.Errorf("keep_id is required")
	}
	ids := getStringSliceArg(args, "close_ids")

	if !getBoolArg(args, "confirm", false) {
		count := 0
		seen := map[string]bool{}
		for _, id := range ids {
			if id != "" && id != keep && !seen[id] {
				seen[id] = true
				count++
			}
		}
		if count == 0 {
			return nil, dupes.ErrNothingToClose
		}
		return map[string]interface{}{
			"status":  "needs_approval",
			"preview": dupes.ClosePreview(count, t.keepItem(ctx, keep)),
		}, nil
	}

	closed, err := dupes.CloseDuplicates(ctx, t.tabs, keep, ids)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status": "closed",
		"closed": closed,
		"kept":   keep,
	}, nil
}

func (t *CloseDuplicatesTool) keepItem(ctx context.Context, keep string) dupes.Item {
	tabs, err := t.tabs.ListTabs(ctx)
	if err != nil {
		return dupes.Item{TabID: keep}
	}
	for _, tab := range tabs {
		if tab.ID == keep {
			return dupes.Item{TabID: tab.ID, Title: tab.Title, URL: tab.URL}
		}
	}
	return dupes.Item{TabID: keep}
}
