package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeProvider is an in-memory tab model that counts every mutation.
type fakeProvider struct {
	mu     sync.Mutex
	tabs   []LiveTab
	groups map[string]*Group

	nextTab   int
	nextGroup int
	newWindow string

	failOpen   map[string]bool
	failCreate bool
	failList   bool

	opens   int
	creates int
	updates int
	closes  int
	lists   int
}

func newFakeProvider(tabs ...LiveTab) *fakeProvider {
	return &fakeProvider{
		tabs:      tabs,
		groups:    make(map[string]*Group),
		newWindow: "w1",
		failOpen:  make(map[string]bool),
	}
}

func (f *fakeProvider) addGroup(id, label string) {
	f.groups[id] = &Group{ID: id, Label: label}
}

func (f *fakeProvider) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens + f.creates + f.updates + f.closes
}

func (f *fakeProvider) ListTabs(context.Context) ([]LiveTab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.failList {
		return nil, errors.New("devtools unavailable")
	}
	out := make([]LiveTab, len(f.tabs))
	copy(out, f.tabs)
	return out, nil
}

func (f *fakeProvider) OpenTab(_ context.Context, url string) (TabRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen[url] {
		return TabRef{}, fmt.Errorf("open %s: target crashed", url)
	}
	f.opens++
	f.nextTab++
	tab := LiveTab{ID: fmt.Sprintf("new%d", f.nextTab), URL: url, WindowID: f.newWindow}
	f.tabs = append(f.tabs, tab)
	return tab.Ref(), nil
}

func (f *fakeProvider) CloseTabs(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.tabs[:0]
	for _, t := range f.tabs {
		if !drop[t.ID] {
			kept = append(kept, t)
		}
	}
	f.tabs = kept
	return nil
}

func (f *fakeProvider) CreateGroup(_ context.Context, ids []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return "", errors.New("group quota exceeded")
	}
	f.creates++
	f.nextGroup++
	id := fmt.Sprintf("g%d", f.nextGroup)
	f.groups[id] = &Group{ID: id}
	member := make(map[string]bool, len(ids))
	for _, tid := range ids {
		member[tid] = true
	}
	for i := range f.tabs {
		if member[f.tabs[i].ID] {
			f.tabs[i].GroupID = id
		}
	}
	return id, nil
}

func (f *fakeProvider) UpdateGroup(_ context.Context, groupID string, u GroupUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return fmt.Errorf("no group %s", groupID)
	}
	f.updates++
	g.Label = u.Label
	if u.Color != "" {
		g.Color = u.Color
	}
	g.Collapsed = u.Collapsed
	return nil
}

func (f *fakeProvider) GetGroup(_ context.Context, groupID string) (*Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (f *fakeProvider) groupOf(tabID string) *Group {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tabs {
		if t.ID == tabID && t.GroupID != "" {
			if g, ok := f.groups[t.GroupID]; ok {
				cp := *g
				return &cp
			}
		}
	}
	return nil
}

type fakeStore struct {
	values  map[string]string
	failSet bool
	failGet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errors.New("store offline")
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key, value string) error {
	if s.failSet {
		return errors.New("disk full")
	}
	s.values[key] = value
	return nil
}

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls++
	return r.err
}

type memJournal struct {
	events []string
}

func (j *memJournal) Log(eventType, _ string, _ interface{}) {
	j.events = append(j.events, eventType)
}

// recordingApprover remembers the preview it was shown.
type recordingApprover struct {
	answer   bool
	calls    int
	previews []string
}

func (a *recordingApprover) Approve(_ context.Context, preview string) (bool, error) {
	a.calls++
	a.previews = append(a.previews, preview)
	return a.answer, nil
}

func folder(id, title string, urls ...string) TargetSet {
	set := TargetSet{ID: id, Title: title}
	for i, u := range urls {
		set.Links = append(set.Links, Link{ID: fmt.Sprintf("%s-%d", id, i), Title: u, URL: u})
	}
	return set
}
