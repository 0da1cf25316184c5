package reconcile

import (
	"context"
	"log"
	"time"
)

// Journal receives one event per mutation. recorder.Recorder satisfies it.
type Journal interface {
	Log(eventType, runID string, data interface{})
}

// ApplyResult summarizes what a run changed.
type ApplyResult struct {
	Opened      int       `json:"opened"`
	GroupedSets int       `json:"grouped_sets"`
	Created     int       `json:"created"`
	Renamed     int       `json:"renamed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Allocator   Allocator `json:"allocator"`
}

// Applier executes plans against the provider.
type Applier struct {
	provider     Provider
	store        StateStore
	refresher    Refresher
	refreshDelay time.Duration
	journal      Journal
	runID        string
}

// Apply reconciles folders in caller order. Individual provider failures are
// logged and skip their unit of work; the run always finishes. used collects
// every tab id committed to a group and must start empty for a new run.
func (a *Applier) Apply(ctx context.Context, sets []TargetSet, idx *Index, alloc Allocator, used IDSet) ApplyResult {
	res := ApplyResult{}
	owned := make(IDSet)

	for _, set := range sets {
		label := set.Label()
		refs := a.gather(ctx, set, idx, used, &res)
		parts := partitionByWindow(refs)
		if len(parts) == 0 {
			continue
		}

		changed := false
		for _, part := range parts {
			switch a.applyPartition(ctx, idx, part, label, alloc.Color(), owned, &res) {
			case actionCreate, actionRename:
				changed = true
				used.Add(part.IDs...)
			case actionSkip:
				used.Add(part.IDs...)
			}
		}

		if changed {
			alloc = alloc.Next()
			res.GroupedSets++
		}
	}

	res.Allocator = alloc
	if err := SaveAllocator(ctx, a.store, alloc); err != nil {
		log.Printf("warning: failed to persist color index: %v", err)
	}
	a.refresh(ctx)
	return res
}

// gather collects the folder's tabs, opening whatever is missing.
func (a *Applier) gather(ctx context.Context, set TargetSet, idx *Index, used IDSet, res *ApplyResult) []TabRef {
	var refs []TabRef
	for _, t := range Compile(set) {
		bucket := idx.Lookup(t.Key)
		if len(bucket) > 0 {
			for _, ref := range bucket {
				if !used.Has(ref.ID) {
					refs = append(refs, ref)
				}
			}
			continue
		}

		ref, err := a.provider.OpenTab(ctx, t.URL)
		if err != nil {
			log.Printf("Failed to open bookmark tab %s: %v", t.URL, err)
			res.Failed++
			continue
		}
		res.Opened++
		idx.Add(t.Key, t.URL, ref)
		refs = append(refs, ref)
		a.record("tab_opened", map[string]interface{}{"folder": set.Label(), "url": t.URL, "tab_id": ref.ID})
	}
	return refs
}

// applyPartition brings one window's tabs under a single group with label.
// It returns actionFailed when a provider call fails. Every group it keeps,
// renames or creates joins owned.
func (a *Applier) applyPartition(ctx context.Context, idx *Index, part partition, label, color string, owned IDSet, res *ApplyResult) groupAction {
	action, groupID, err := classify(ctx, a.provider, idx, part, label, owned)
	if err != nil {
		// Lookup failures fall back to a fresh group.
		log.Printf("warning: %v; creating a new group for %q", err, label)
		action = actionCreate
	}

	switch action {
	case actionSkip:
		log.Printf("Skipping grouping for %q in window %s (already grouped).", label, part.WindowID)
		res.Skipped++
		owned.Add(groupID)
		return actionSkip

	case actionRename:
		if err := a.provider.UpdateGroup(ctx, groupID, GroupUpdate{Label: label}); err != nil {
			log.Printf("Failed to rename group %s to %q in window %s: %v", groupID, label, part.WindowID, err)
			res.Failed++
			return actionFailed
		}
		log.Printf("Updated existing group %s to %q in window %s.", groupID, label, part.WindowID)
		res.Renamed++
		owned.Add(groupID)
		a.record("group_renamed", map[string]interface{}{"group_id": groupID, "label": label, "window_id": part.WindowID})
		return actionRename
	}

	newID, err := a.provider.CreateGroup(ctx, part.IDs)
	if err != nil {
		log.Printf("Failed to group folder %q in window %s: %v", label, part.WindowID, err)
		res.Failed++
		return actionFailed
	}
	if err := a.provider.UpdateGroup(ctx, newID, GroupUpdate{Label: label, Color: color}); err != nil {
		log.Printf("Failed to label group %s for folder %q in window %s: %v", newID, label, part.WindowID, err)
		res.Failed++
		return actionFailed
	}
	owned.Add(newID)
	log.Printf("Grouped %d tab(s) under folder %q in window %s (group %s)", len(part.IDs), label, part.WindowID, newID)
	res.Created++
	a.record("group_created", map[string]interface{}{
		"group_id":  newID,
		"label":     label,
		"color":     color,
		"window_id": part.WindowID,
		"tab_ids":   part.IDs,
	})
	return actionCreate
}

// refresh waits for mutations to settle, then asks for a new snapshot.
func (a *Applier) refresh(ctx context.Context) {
	if a.refresher == nil {
		return
	}
	if a.refreshDelay > 0 {
		timer := time.NewTimer(a.refreshDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if err := a.refresher.Refresh(ctx); err != nil {
		log.Printf("warning: refresh after reconcile failed: %v", err)
	}
}

func (a *Applier) record(eventType string, data interface{}) {
	if a.journal == nil {
		return
	}
	a.journal.Log(eventType, a.runID, data)
}
