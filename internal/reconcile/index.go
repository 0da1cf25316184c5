package reconcile

// Index maps identity keys to the open tabs sharing them. It is built from a
// single ListTabs snapshot and never cached across runs.
type Index struct {
	byKey map[string][]TabRef
	byID  map[string]LiveTab
}

// BuildIndex scans the live tabs once. Buckets keep discovery order, which
// decides the canonical tab when several share a key.
func BuildIndex(tabs []LiveTab) *Index {
	idx := &Index{
		byKey: make(map[string][]TabRef, len(tabs)),
		byID:  make(map[string]LiveTab, len(tabs)),
	}
	for _, t := range tabs {
		if t.ID == "" {
			continue
		}
		idx.byID[t.ID] = t
		key := Normalize(t.URL)
		if key == "" {
			continue
		}
		idx.byKey[key] = append(idx.byKey[key], t.Ref())
	}
	return idx
}

// Lookup returns the bucket for key.
func (i *Index) Lookup(key string) []TabRef {
	return i.byKey[key]
}

// Tab returns the live tab with the given id.
func (i *Index) Tab(id string) (LiveTab, bool) {
	t, ok := i.byID[id]
	return t, ok
}

// GroupOf returns the group the tab belonged to when the snapshot was taken.
func (i *Index) GroupOf(id string) string {
	return i.byID[id].GroupID
}

// Add records a tab opened during the run so later folders can reuse it.
func (i *Index) Add(key, url string, ref TabRef) {
	i.byID[ref.ID] = LiveTab{ID: ref.ID, URL: url, WindowID: ref.WindowID, GroupID: ref.GroupID}
	if key == "" {
		return
	}
	i.byKey[key] = append(i.byKey[key], ref)
}

// Len returns the number of indexed tabs.
func (i *Index) Len() int {
	return len(i.byID)
}
