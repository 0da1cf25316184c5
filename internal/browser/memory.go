package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tabfold-mcp-server/internal/reconcile"
)

// MemoryTabs is an in-process tab model. It backs the memory provider and
// lets reconciliations run without Chrome.
type MemoryTabs struct {
	engine EngineSink
	groups *GroupRegistry

	mu      sync.RWMutex
	tabs    []reconcile.LiveTab
	text    map[string]string
	window  string
	nextTab int
	started bool
}

func NewMemoryTabs(sink EngineSink) *MemoryTabs {
	return &MemoryTabs{
		engine: sink,
		groups: NewGroupRegistry(""),
		text:   make(map[string]string),
		window: "1",
	}
}

// Seed adds tabs as if they were already open.
func (m *MemoryTabs) Seed(tabs ...reconcile.LiveTab) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tabs {
		if t.WindowID == "" {
			t.WindowID = m.window
		}
		if t.ID == "" {
			m.nextTab++
			t.ID = fmt.Sprintf("tab-%d", m.nextTab)
		}
		t.GroupID = ""
		m.tabs = append(m.tabs, t)
	}
}

// SetText sets the page text TabText returns for a tab.
func (m *MemoryTabs) SetText(tabID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text[tabID] = text
}

func (m *MemoryTabs) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *MemoryTabs) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

func (m *MemoryTabs) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

func (m *MemoryTabs) ControlURL() string {
	return "memory://"
}

func (m *MemoryTabs) ListTabs(context.Context) ([]reconcile.LiveTab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]reconcile.LiveTab, len(m.tabs))
	for i, t := range m.tabs {
		t.GroupID = m.groups.GroupOf(t.ID)
		out[i] = t
	}
	return out, nil
}

func (m *MemoryTabs) OpenTab(_ context.Context, url string) (reconcile.TabRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTab++
	tab := reconcile.LiveTab{ID: fmt.Sprintf("tab-%d", m.nextTab), URL: url, WindowID: m.window}
	m.tabs = append(m.tabs, tab)
	return tab.Ref(), nil
}

func (m *MemoryTabs) CloseTabs(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.tabs[:0]
	for _, t := range m.tabs {
		if drop[t.ID] {
			delete(drop, t.ID)
			delete(m.text, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	m.tabs = kept
	if err := m.groups.Forget(ids); err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		if drop[id] {
			errs = append(errs, fmt.Errorf("close %s: %w", id, ErrUnknownTab))
		}
	}
	return errors.Join(errs...)
}

func (m *MemoryTabs) CreateGroup(_ context.Context, ids []string) (string, error) {
	m.mu.RLock()
	for _, id := range ids {
		if !m.hasLocked(id) {
			m.mu.RUnlock()
			return "", fmt.Errorf("group %s: %w", id, ErrUnknownTab)
		}
	}
	m.mu.RUnlock()
	return m.groups.Create(ids)
}

func (m *MemoryTabs) UpdateGroup(_ context.Context, groupID string, update reconcile.GroupUpdate) error {
	return m.groups.Update(groupID, update)
}

func (m *MemoryTabs) GetGroup(_ context.Context, groupID string) (*reconcile.Group, error) {
	g, ok := m.groups.Get(groupID)
	if !ok {
		return nil, nil
	}
	return g, nil
}

func (m *MemoryTabs) Groups() []reconcile.Group {
	return m.groups.Groups()
}

func (m *MemoryTabs) Refresh(ctx context.Context) error {
	tabs, err := m.ListTabs(ctx)
	if err != nil {
		return err
	}
	return publish(ctx, m.engine, m.groups, tabs)
}

func (m *MemoryTabs) TabText(_ context.Context, tabID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasLocked(tabID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTab, tabID)
	}
	return m.text[tabID], nil
}

func (m *MemoryTabs) hasLocked(id string) bool {
	for _, t := range m.tabs {
		if t.ID == id {
			return true
		}
	}
	return false
}
