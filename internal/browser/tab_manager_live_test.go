package browser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tabfold-mcp-server/internal/config"
	"tabfold-mcp-server/internal/reconcile"
)

// TestLiveTabManager drives a real Chrome. Set TABFOLD_LIVE_TESTS=1 to run it.
func TestLiveTabManager(t *testing.T) {
	if os.Getenv("TABFOLD_LIVE_TESTS") == "" {
		t.Skip("Skipping live browser tests (TABFOLD_LIVE_TESTS not set)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	headless := true
	cfg := config.BrowserConfig{
		Headless:   &headless,
		GroupStore: filepath.Join(t.TempDir(), "groups.json"),
		OpenRate:   10,
		OpenBurst:  5,
		TextLimit:  200,
	}
	sink := &recordingSink{}
	manager := NewTabManager(cfg, sink)

	if err := manager.Start(ctx); err != nil {
		t.Skipf("Browser start failed (Chrome not available): %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = manager.Shutdown(shutdownCtx)
	}()

	if !manager.IsConnected() || manager.ControlURL() == "" {
		t.Fatal("expected connected manager with control URL")
	}

	page := "data:text/html,<html><head><meta name=description content='tab folding'></head><body><p>grouped pages</p></body></html>"
	ref, err := manager.OpenTab(ctx, page)
	if err != nil {
		t.Fatalf("OpenTab failed: %v", err)
	}
	if ref.ID == "" || ref.WindowID == "" {
		t.Fatalf("unexpected ref %+v", ref)
	}

	var found bool
	tabs, err := manager.ListTabs(ctx)
	if err != nil {
		t.Fatalf("ListTabs failed: %v", err)
	}
	for _, tab := range tabs {
		if tab.ID == ref.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("opened tab %s not listed in %+v", ref.ID, tabs)
	}

	groupID, err := manager.CreateGroup(ctx, []string{ref.ID})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if err := manager.UpdateGroup(ctx, groupID, reconcile.GroupUpdate{Label: "Live", Color: "cyan"}); err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}

	// Give the data URL a moment to render before reading text.
	time.Sleep(300 * time.Millisecond)
	text, err := manager.TabText(ctx, ref.ID)
	if err != nil {
		t.Fatalf("TabText failed: %v", err)
	}
	if !strings.Contains(text, "tab folding") || !strings.Contains(text, "grouped pages") {
		t.Errorf("unexpected page text %q", text)
	}

	if err := manager.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if sink.calls == 0 || len(sink.facts) == 0 {
		t.Error("expected refresh to publish facts")
	}

	if err := manager.CloseTabs(ctx, []string{ref.ID}); err != nil {
		t.Fatalf("CloseTabs failed: %v", err)
	}
	if g, _ := manager.GetGroup(ctx, groupID); g != nil {
		t.Error("group should be dropped with its last tab")
	}
}
