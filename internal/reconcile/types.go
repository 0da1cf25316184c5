// Package reconcile groups open browser tabs by bookmark folder.
//
// A run compiles each folder into a list of unique destinations, indexes the
// live tabs by the same identity key, plans what must be opened or regrouped,
// asks for approval once, and then applies the plan folder by folder.
package reconcile

import "context"

// UntitledFolder is the group label used for folders without a title.
const UntitledFolder = "(Untitled Folder)"

// Link is one bookmark inside a folder.
type Link struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// TargetSet is a bookmark folder: the declared intent for one tab group.
type TargetSet struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Links []Link `json:"links" yaml:"links"`
}

// Label returns the group label the folder should end up with.
func (s TargetSet) Label() string {
	if s.Title == "" {
		return UntitledFolder
	}
	return s.Title
}

// LiveTab is an open tab as reported by the provider.
type LiveTab struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	WindowID string `json:"window_id"`
	// GroupID is empty when the tab is not in a group.
	GroupID string `json:"group_id,omitempty"`
}

// TabRef is the part of a tab the planner and applier work with.
type TabRef struct {
	ID       string `json:"id"`
	WindowID string `json:"window_id"`
	GroupID  string `json:"group_id,omitempty"`
}

// Ref projects a live tab onto a reference.
func (t LiveTab) Ref() TabRef {
	return TabRef{ID: t.ID, WindowID: t.WindowID, GroupID: t.GroupID}
}

// Group is a labelled tab group.
type Group struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Color     string `json:"color,omitempty"`
	Collapsed bool   `json:"collapsed"`
}

// GroupUpdate changes a group's presentation. An empty Color leaves the
// current color untouched.
type GroupUpdate struct {
	Label     string
	Color     string
	Collapsed bool
}

// Provider is the narrow set of tab and group operations the engine needs.
type Provider interface {
	ListTabs(ctx context.Context) ([]LiveTab, error)
	OpenTab(ctx context.Context, url string) (TabRef, error)
	CloseTabs(ctx context.Context, ids []string) error
	CreateGroup(ctx context.Context, ids []string) (string, error)
	UpdateGroup(ctx context.Context, groupID string, update GroupUpdate) error
	// GetGroup returns nil without error when the group no longer exists.
	GetGroup(ctx context.Context, groupID string) (*Group, error)
}

// StateStore persists small values across runs.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Refresher re-snapshots live state after a run so observers see fresh tabs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// IDSet tracks tab or group ids already committed during one run.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts ids into the set.
func (s IDSet) Add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}
