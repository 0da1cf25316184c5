package reconcile

import (
	"context"
	"fmt"
)

// Plan is the dry-run outcome for one folder.
type Plan struct {
	SetID    string   `json:"set_id"`
	Title    string   `json:"title"`
	Targets  int      `json:"targets"`
	ToOpen   int      `json:"to_open"`
	OpenKeys []string `json:"open_keys,omitempty"`
	Reusable []TabRef `json:"reusable,omitempty"`
	// GroupingSatisfied is only true when nothing must be opened and every
	// window's reusable tabs already sit in one group carrying the folder title.
	GroupingSatisfied bool `json:"grouping_satisfied"`
}

// GroupLookup resolves a group id to its current label.
type GroupLookup interface {
	GetGroup(ctx context.Context, groupID string) (*Group, error)
}

type groupAction int

const (
	actionCreate groupAction = iota
	actionRename
	actionSkip
	actionFailed
)

func (a groupAction) String() string {
	switch a {
	case actionRename:
		return "rename"
	case actionSkip:
		return "skip"
	case actionFailed:
		return "failed"
	default:
		return "create"
	}
}

// partition is the set of a folder's tabs living in one window.
type partition struct {
	WindowID string
	IDs      []string
}

// partitionByWindow deduplicates ids and splits them per window in first-seen
// order. Tabs without a window cannot be grouped and are dropped.
func partitionByWindow(refs []TabRef) []partition {
	var out []partition
	pos := make(map[string]int)
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if r.ID == "" || r.WindowID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		i, ok := pos[r.WindowID]
		if !ok {
			i = len(out)
			pos[r.WindowID] = i
			out = append(out, partition{WindowID: r.WindowID})
		}
		out[i].IDs = append(out[i].IDs, r.ID)
	}
	return out
}

// classify decides what a window partition needs. It returns the existing
// group id for skip and rename. Groups in owned were already labelled for
// another folder during this run and are never taken over.
func classify(ctx context.Context, groups GroupLookup, idx *Index, p partition, label string, owned IDSet) (groupAction, string, error) {
	groupID := ""
	for _, id := range p.IDs {
		gid := idx.GroupOf(id)
		if gid == "" {
			return actionCreate, "", nil
		}
		if groupID == "" {
			groupID = gid
		} else if gid != groupID {
			// Mixed membership is ambiguous; a fresh group supersedes it.
			return actionCreate, "", nil
		}
	}
	if groupID == "" || owned.Has(groupID) {
		return actionCreate, "", nil
	}

	grp, err := groups.GetGroup(ctx, groupID)
	if err != nil {
		return actionCreate, "", fmt.Errorf("get group %s: %w", groupID, err)
	}
	if grp == nil {
		return actionCreate, "", nil
	}
	if grp.Label == label {
		return actionSkip, groupID, nil
	}
	return actionRename, groupID, nil
}

// Planner computes plans against a fixed snapshot.
type Planner struct {
	groups GroupLookup
}

// NewPlanner creates a planner that resolves group labels through groups.
func NewPlanner(groups GroupLookup) *Planner {
	return &Planner{groups: groups}
}

// Plan compares one folder's unique targets with the index. Refs already in
// used are not reusable but still count as open. Keys in pending are opened
// by an earlier folder of the same run and are neither opened nor reused.
// Groups the folder would keep or rename are added to owned when it is
// non-nil.
func (p *Planner) Plan(ctx context.Context, set TargetSet, targets []UniqueTarget, idx *Index, used, owned IDSet, pending map[string]struct{}) (Plan, error) {
	plan := Plan{SetID: set.ID, Title: set.Label(), Targets: len(targets)}

	for _, t := range targets {
		bucket := idx.Lookup(t.Key)
		if len(bucket) == 0 {
			if _, ok := pending[t.Key]; ok {
				continue
			}
			plan.ToOpen++
			plan.OpenKeys = append(plan.OpenKeys, t.Key)
			continue
		}
		for _, ref := range bucket {
			if used.Has(ref.ID) {
				continue
			}
			plan.Reusable = append(plan.Reusable, ref)
		}
	}

	if plan.ToOpen > 0 {
		return plan, nil
	}

	plan.GroupingSatisfied = true
	var kept []string
	for _, part := range partitionByWindow(plan.Reusable) {
		action, groupID, err := classify(ctx, p.groups, idx, part, plan.Title, owned)
		if err != nil {
			return plan, err
		}
		if action != actionSkip {
			plan.GroupingSatisfied = false
		}
		if groupID != "" {
			kept = append(kept, groupID)
		}
	}
	if owned != nil {
		owned.Add(kept...)
	}
	return plan, nil
}

// PlanAll is the dry pass over every folder in order. It simulates the
// claims the applier will make so later folders see the same exclusivity.
func (p *Planner) PlanAll(ctx context.Context, sets []TargetSet, idx *Index) ([]Plan, error) {
	used := make(IDSet)
	owned := make(IDSet)
	pending := make(map[string]struct{})
	plans := make([]Plan, 0, len(sets))

	for _, set := range sets {
		plan, err := p.Plan(ctx, set, Compile(set), idx, used, owned, pending)
		if err != nil {
			return nil, fmt.Errorf("plan folder %q: %w", set.Label(), err)
		}
		for _, ref := range plan.Reusable {
			used.Add(ref.ID)
		}
		for _, key := range plan.OpenKeys {
			pending[key] = struct{}{}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
