package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tabfold-mcp-server/internal/config"
	"tabfold-mcp-server/internal/reconcile"
)

func TestTabManagerNotConnected(t *testing.T) {
	m := NewTabManager(config.DefaultConfig().Browser, nil)
	ctx := context.Background()

	if m.IsConnected() {
		t.Fatal("expected disconnected manager")
	}
	if m.ControlURL() != "" {
		t.Errorf("expected empty control URL, got %q", m.ControlURL())
	}

	if _, err := m.ListTabs(ctx); !errors.Is(err, ErrBrowserNotConnected) {
		t.Errorf("ListTabs: expected ErrBrowserNotConnected, got %v", err)
	}
	if _, err := m.OpenTab(ctx, "https://a.test/"); !errors.Is(err, ErrBrowserNotConnected) {
		t.Errorf("OpenTab: expected ErrBrowserNotConnected, got %v", err)
	}
	if err := m.CloseTabs(ctx, []string{"1"}); !errors.Is(err, ErrBrowserNotConnected) {
		t.Errorf("CloseTabs: expected ErrBrowserNotConnected, got %v", err)
	}
	if _, err := m.CreateGroup(ctx, []string{"1"}); !errors.Is(err, ErrBrowserNotConnected) {
		t.Errorf("CreateGroup: expected ErrBrowserNotConnected, got %v", err)
	}
	if _, err := m.TabText(ctx, "1"); !errors.Is(err, ErrBrowserNotConnected) {
		t.Errorf("TabText: expected ErrBrowserNotConnected, got %v", err)
	}
	if err := m.Refresh(ctx); !errors.Is(err, ErrBrowserNotConnected) {
		t.Errorf("Refresh: expected ErrBrowserNotConnected, got %v", err)
	}
	if err := m.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown of idle manager should succeed, got %v", err)
	}
}

func TestTabManagerGroupLookupWithoutBrowser(t *testing.T) {
	m := NewTabManager(config.BrowserConfig{}, nil)
	g, err := m.GetGroup(context.Background(), "missing")
	if err != nil || g != nil {
		t.Fatalf("missing group should be nil, nil; got %+v / %v", g, err)
	}
	if err := m.UpdateGroup(context.Background(), "missing", reconcile.GroupUpdate{Label: "x"}); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("expected ErrUnknownGroup, got %v", err)
	}
	if len(m.Groups()) != 0 {
		t.Errorf("expected no groups")
	}
}

func TestTabManagerOpenThrottle(t *testing.T) {
	m := NewTabManager(config.BrowserConfig{OpenRate: 4, OpenBurst: 2}, nil)
	if m.limiter == nil {
		t.Fatal("expected limiter when open_rate is set")
	}
	if m.limiter.Burst() != 2 {
		t.Errorf("expected burst 2, got %d", m.limiter.Burst())
	}

	unthrottled := NewTabManager(config.BrowserConfig{}, nil)
	if unthrottled.limiter != nil {
		t.Error("zero open_rate should disable throttling")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"héllo", 2, "hé"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestIsInternalTarget(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", false},
		{"chrome://newtab/", false},
		{"about:blank", false},
		{"devtools://devtools/bundled/inspector.html", true},
		{"chrome-extension://abc/popup.html", true},
	}
	for _, tt := range tests {
		if got := isInternalTarget(tt.url); got != tt.want {
			t.Errorf("isInternalTarget(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestPageTextScript(t *testing.T) {
	if !strings.Contains(pageText, "innerText") || !strings.Contains(pageText, "description") {
		t.Errorf("page text script should read body text and description: %s", pageText)
	}
}
