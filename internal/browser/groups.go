package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tabfold-mcp-server/internal/reconcile"

	"github.com/google/uuid"
)

type groupRecord struct {
	Group     reconcile.Group `json:"group"`
	TabIDs    []string        `json:"tab_ids"`
	CreatedAt time.Time       `json:"created_at"`
}

// GroupRegistry tracks tab groups by id. DevTools has no tab group API, so
// membership lives here and is optionally persisted as JSON between runs.
type GroupRegistry struct {
	path   string
	mu     sync.RWMutex
	groups map[string]*groupRecord
	member map[string]string // tab id -> group id
}

// NewGroupRegistry returns an empty registry persisted at path. An empty path
// keeps the registry in memory only.
func NewGroupRegistry(path string) *GroupRegistry {
	return &GroupRegistry{
		path:   path,
		groups: make(map[string]*groupRecord),
		member: make(map[string]string),
	}
}

// Create puts tabIDs into a new, unlabeled group. Tabs leave any group they
// were in, and groups left empty are dropped.
func (r *GroupRegistry) Create(tabIDs []string) (string, error) {
	if len(tabIDs) == 0 {
		return "", fmt.Errorf("create group: no tabs")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	rec := &groupRecord{
		Group:     reconcile.Group{ID: id},
		CreatedAt: time.Now(),
	}
	seen := make(map[string]bool, len(tabIDs))
	for _, tabID := range tabIDs {
		if seen[tabID] {
			continue
		}
		seen[tabID] = true
		r.detachLocked(tabID)
		r.member[tabID] = id
		rec.TabIDs = append(rec.TabIDs, tabID)
	}
	r.groups[id] = rec
	return id, r.persistLocked()
}

// Update applies a label, color and collapsed state to a group. An empty
// color leaves the current one.
func (r *GroupRegistry) Update(groupID string, update reconcile.GroupUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}
	rec.Group.Label = update.Label
	if update.Color != "" {
		rec.Group.Color = update.Color
	}
	rec.Group.Collapsed = update.Collapsed
	return r.persistLocked()
}

// Get returns a copy of the group, or false when it no longer exists.
func (r *GroupRegistry) Get(groupID string) (*reconcile.Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.groups[groupID]
	if !ok {
		return nil, false
	}
	g := rec.Group
	return &g, true
}

// GroupOf returns the group holding tabID, or "".
func (r *GroupRegistry) GroupOf(tabID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.member[tabID]
}

// Members returns the tabs of a group in insertion order.
func (r *GroupRegistry) Members(groupID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.groups[groupID]
	if !ok {
		return nil
	}
	return append([]string(nil), rec.TabIDs...)
}

// Groups lists every group, oldest first.
func (r *GroupRegistry) Groups() []reconcile.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]*groupRecord, 0, len(r.groups))
	for _, rec := range r.groups {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].Group.ID < recs[j].Group.ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})

	out := make([]reconcile.Group, len(recs))
	for i, rec := range recs {
		out[i] = rec.Group
	}
	return out
}

// Forget removes closed tabs from their groups.
func (r *GroupRegistry) Forget(tabIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range tabIDs {
		r.detachLocked(id)
	}
	return r.persistLocked()
}

// Prune drops every tab not in live and any group left empty. It returns the
// number of tabs removed.
func (r *GroupRegistry) Prune(live map[string]bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for tabID := range r.member {
		if !live[tabID] {
			r.detachLocked(tabID)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, r.persistLocked()
}

func (r *GroupRegistry) detachLocked(tabID string) {
	groupID, ok := r.member[tabID]
	if !ok {
		return
	}
	delete(r.member, tabID)
	rec := r.groups[groupID]
	if rec == nil {
		return
	}
	kept := rec.TabIDs[:0]
	for _, id := range rec.TabIDs {
		if id != tabID {
			kept = append(kept, id)
		}
	}
	rec.TabIDs = kept
	if len(rec.TabIDs) == 0 {
		delete(r.groups, groupID)
	}
}

// persistLocked writes the registry to disk for continuity across restarts.
func (r *GroupRegistry) persistLocked() error {
	if r.path == "" {
		return nil
	}

	recs := make([]*groupRecord, 0, len(r.groups))
	for _, rec := range r.groups {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Group.ID < recs[j].Group.ID })

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}

// Load reads a persisted registry. A missing file is not an error.
func (r *GroupRegistry) Load() error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var recs []*groupRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("parse group store %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[string]*groupRecord, len(recs))
	r.member = make(map[string]string)
	for _, rec := range recs {
		if rec == nil || rec.Group.ID == "" || len(rec.TabIDs) == 0 {
			continue
		}
		r.groups[rec.Group.ID] = rec
		for _, tabID := range rec.TabIDs {
			r.member[tabID] = rec.Group.ID
		}
	}
	return nil
}
