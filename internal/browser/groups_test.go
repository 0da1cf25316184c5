package browser

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"tabfold-mcp-server/internal/reconcile"
)

func TestGroupRegistryCreateAndUpdate(t *testing.T) {
	r := NewGroupRegistry("")

	id, err := r.Create([]string{"1", "2", "2"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected group id")
	}
	if got := r.Members(id); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("expected deduplicated members, got %v", got)
	}
	if r.GroupOf("1") != id {
		t.Errorf("tab 1 should belong to %s", id)
	}

	if err := r.Update(id, reconcile.GroupUpdate{Label: "Reading", Color: "blue"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := r.Update(id, reconcile.GroupUpdate{Label: "Reading", Collapsed: true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	g, ok := r.Get(id)
	if !ok {
		t.Fatal("expected group")
	}
	if g.Label != "Reading" || g.Color != "blue" || !g.Collapsed {
		t.Errorf("empty color should keep blue, got %+v", g)
	}

	if err := r.Update("missing", reconcile.GroupUpdate{}); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("expected ErrUnknownGroup, got %v", err)
	}
	if _, err := r.Create(nil); err == nil {
		t.Error("expected error creating an empty group")
	}
}

func TestGroupRegistryMovesTabs(t *testing.T) {
	r := NewGroupRegistry("")

	first, _ := r.Create([]string{"1", "2"})
	second, _ := r.Create([]string{"2", "3"})

	if r.GroupOf("2") != second {
		t.Errorf("tab 2 should move to the new group")
	}
	if got := r.Members(first); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("first group should keep tab 1 only, got %v", got)
	}

	// Moving the last tab away drops the group.
	if _, err := r.Create([]string{"1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok := r.Get(first); ok {
		t.Error("empty group should be dropped")
	}
	if len(r.Groups()) != 2 {
		t.Errorf("expected 2 groups, got %+v", r.Groups())
	}
}

func TestGroupRegistryPruneAndForget(t *testing.T) {
	r := NewGroupRegistry("")
	a, _ := r.Create([]string{"1", "2"})
	b, _ := r.Create([]string{"3"})

	n, err := r.Prune(map[string]bool{"1": true})
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 tabs pruned, got %d", n)
	}
	if _, ok := r.Get(b); ok {
		t.Error("group of closed tabs should be dropped")
	}
	if got := r.Members(a); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("unexpected members %v", got)
	}

	if err := r.Forget([]string{"1"}); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if len(r.Groups()) != 0 {
		t.Errorf("expected no groups, got %+v", r.Groups())
	}
}

func TestGroupRegistryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "groups.json")

	r := NewGroupRegistry(path)
	id, err := r.Create([]string{"1", "2"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Update(id, reconcile.GroupUpdate{Label: "Docs", Color: "green"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reloaded := NewGroupRegistry(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	g, ok := reloaded.Get(id)
	if !ok || g.Label != "Docs" || g.Color != "green" {
		t.Fatalf("unexpected reloaded group %+v", g)
	}
	if reloaded.GroupOf("2") != id {
		t.Error("membership should survive reload")
	}

	if err := NewGroupRegistry(filepath.Join(t.TempDir(), "absent.json")).Load(); err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewGroupRegistry(bad).Load(); err == nil {
		t.Error("expected parse error")
	}
}
