package mangle

import (
	"time"

	"tabfold-mcp-server/internal/reconcile"
)

// Base predicates published by the tab observer and the folder loader.
const (
	PredTab          = "tab"
	PredTabURL       = "tab_url"
	PredTabGroup     = "tab_group"
	PredFolderTarget = "folder_target"
)

// NoGroup stands in for an empty group id so rules can match ungrouped tabs.
const NoGroup = "none"

// SnapshotPredicates are replaced wholesale on each tab refresh.
var SnapshotPredicates = []string{PredTab, PredTabURL, PredTabGroup}

// FolderPredicates are replaced whenever the folder source is reloaded.
var FolderPredicates = []string{PredFolderTarget}

// TabFacts converts a tab snapshot into base facts. Tabs are keyed by the
// same normalized URL the reconciler uses.
func TabFacts(tabs []reconcile.LiveTab, groups []reconcile.Group) []Fact {
	now := time.Now()
	facts := make([]Fact, 0, 2*len(tabs)+len(groups))
	for _, t := range tabs {
		groupID := t.GroupID
		if groupID == "" {
			groupID = NoGroup
		}
		facts = append(facts,
			Fact{Predicate: PredTab, Args: []interface{}{t.ID, reconcile.Normalize(t.URL), t.WindowID, groupID}, Timestamp: now},
			Fact{Predicate: PredTabURL, Args: []interface{}{t.ID, t.URL}, Timestamp: now},
		)
	}
	for _, g := range groups {
		facts = append(facts, Fact{Predicate: PredTabGroup, Args: []interface{}{g.ID, g.Label, g.Color}, Timestamp: now})
	}
	return facts
}

// FolderFacts emits one folder_target per unique destination of each folder.
func FolderFacts(sets []reconcile.TargetSet) []Fact {
	now := time.Now()
	var facts []Fact
	for _, set := range sets {
		for _, target := range reconcile.Compile(set) {
			facts = append(facts, Fact{
				Predicate: PredFolderTarget,
				Args:      []interface{}{set.ID, set.Label(), target.Key},
				Timestamp: now,
			})
		}
	}
	return facts
}
