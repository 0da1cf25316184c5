package mangle

import (
	"context"
	"sort"
	"testing"

	"tabfold-mcp-server/internal/reconcile"
)

func TestTabRules(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	sets := []reconcile.TargetSet{{
		ID:    "f1",
		Title: "Reading",
		Links: []reconcile.Link{
			{URL: "https://a.test/"},
			{URL: "https://b.test/"},
			{URL: "https://c.test/"},
		},
	}}
	tabs := []reconcile.LiveTab{
		{ID: "t1", URL: "https://a.test/", WindowID: "w1", GroupID: "g1"},
		{ID: "t2", URL: "https://b.test/", WindowID: "w1"},
		{ID: "t3", URL: "https://b.test/#top", WindowID: "w2"},
		{ID: "t4", URL: "https://other.test/", WindowID: "w1"},
	}
	groups := []reconcile.Group{{ID: "g1", Label: "News", Color: "grey"}}

	if err := engine.ReplacePredicates(ctx, FolderPredicates, FolderFacts(sets)); err != nil {
		t.Fatalf("load folders: %v", err)
	}
	if err := engine.ReplacePredicates(ctx, SnapshotPredicates, TabFacts(tabs, groups)); err != nil {
		t.Fatalf("load tabs: %v", err)
	}

	evaluate := func(t *testing.T, predicate string) []Fact {
		t.Helper()
		facts, err := engine.Evaluate(ctx, predicate)
		if err != nil {
			t.Fatalf("Evaluate(%s) failed: %v", predicate, err)
		}
		return facts
	}

	t.Run("grouped_tab", func(t *testing.T) {
		facts := evaluate(t, "grouped_tab")
		if len(facts) != 1 || facts[0].Args[0] != "t1" || facts[0].Args[2] != "News" {
			t.Fatalf("unexpected grouped_tab %+v", facts)
		}
	})

	t.Run("open_key", func(t *testing.T) {
		if got := len(evaluate(t, "open_key")); got != 3 {
			t.Fatalf("expected 3 distinct open keys, got %d", got)
		}
	})

	t.Run("duplicate_key", func(t *testing.T) {
		facts := evaluate(t, "duplicate_key")
		if len(facts) != 2 {
			t.Fatalf("expected t2/t3 in both directions, got %+v", facts)
		}
	})

	t.Run("folder_open", func(t *testing.T) {
		facts := evaluate(t, "folder_open")
		ids := make([]string, 0, len(facts))
		for _, f := range facts {
			ids = append(ids, f.Args[1].(string))
		}
		sort.Strings(ids)
		if len(ids) != 3 || ids[0] != "t1" || ids[2] != "t3" {
			t.Fatalf("unexpected folder_open tabs %v", ids)
		}
	})

	t.Run("folder_missing", func(t *testing.T) {
		facts := evaluate(t, "folder_missing")
		if len(facts) != 1 || facts[0].Args[1] != reconcile.Normalize("https://c.test/") {
			t.Fatalf("expected c.test missing, got %+v", facts)
		}
	})

	t.Run("misgrouped_tab", func(t *testing.T) {
		facts := evaluate(t, "misgrouped_tab")
		if len(facts) != 1 {
			t.Fatalf("expected one misgrouped tab, got %+v", facts)
		}
		if facts[0].Args[0] != "t1" || facts[0].Args[1] != "Reading" || facts[0].Args[2] != "News" {
			t.Fatalf("unexpected misgrouped_tab %+v", facts[0])
		}
	})

	t.Run("ungrouped_target", func(t *testing.T) {
		facts := evaluate(t, "ungrouped_target")
		if len(facts) != 2 {
			t.Fatalf("expected t2 and t3 ungrouped, got %+v", facts)
		}
	})

	t.Run("query by folder", func(t *testing.T) {
		results, err := engine.Query(ctx, `folder_open("f1", TabID).`)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 open tabs for f1, got %+v", results)
		}
	})
}

func TestTabRulesAfterGrouping(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	sets := []reconcile.TargetSet{{ID: "f1", Title: "Docs", Links: []reconcile.Link{{URL: "https://docs.test/"}}}}
	if err := engine.ReplacePredicates(ctx, FolderPredicates, FolderFacts(sets)); err != nil {
		t.Fatalf("load folders: %v", err)
	}

	tabs := []reconcile.LiveTab{{ID: "t1", URL: "https://docs.test/", WindowID: "w1", GroupID: "g9"}}
	groups := []reconcile.Group{{ID: "g9", Label: "Docs", Color: "blue"}}
	if err := engine.ReplacePredicates(ctx, SnapshotPredicates, TabFacts(tabs, groups)); err != nil {
		t.Fatalf("load tabs: %v", err)
	}

	for _, predicate := range []string{"folder_missing", "misgrouped_tab", "ungrouped_target"} {
		facts, err := engine.Evaluate(ctx, predicate)
		if err != nil {
			t.Fatalf("Evaluate(%s) failed: %v", predicate, err)
		}
		if len(facts) != 0 {
			t.Errorf("%s should be empty once the folder is grouped, got %+v", predicate, facts)
		}
	}
}
