package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Status tells the caller how a Reconcile call ended.
type Status string

const (
	StatusNoTargets       Status = "no_targets"
	StatusSelectionNeeded Status = "selection_needed"
	StatusEmptySelection  Status = "empty_selection"
	StatusUpToDate        Status = "up_to_date"
	StatusNeedsApproval   Status = "needs_approval"
	StatusDeclined        Status = "declined"
	StatusApplied         Status = "applied"
)

// Summary is the result of one Reconcile call.
type Summary struct {
	RunID      string      `json:"run_id,omitempty"`
	Status     Status      `json:"status"`
	Notice     string      `json:"notice,omitempty"`
	Candidates []TargetSet `json:"candidates,omitempty"`
	Plans      []Plan      `json:"plans,omitempty"`
	Decision   Decision    `json:"decision"`
	Result     ApplyResult `json:"result"`
}

// Options configures an Engine.
type Options struct {
	Provider     Provider
	Store        StateStore
	Refresher    Refresher
	Journal      Journal
	Palette      []string
	RefreshDelay time.Duration
}

// Engine runs folder-to-group reconciliations. It keeps no state between
// runs apart from what it persists through the store.
type Engine struct {
	opts Options
}

// NewEngine validates opts and returns an engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("tab provider is required")
	}
	if len(opts.Palette) == 0 {
		opts.Palette = DefaultPalette
	}
	return &Engine{opts: opts}, nil
}

// Qualifying keeps the folders that name at least one link.
func Qualifying(sets []TargetSet) []TargetSet {
	out := make([]TargetSet, 0, len(sets))
	for _, s := range sets {
		if HasLinks(s) {
			out = append(out, s)
		}
	}
	return out
}

// Select filters sets to the given ids, keeping the caller's folder order.
func Select(sets []TargetSet, ids []string) []TargetSet {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]TargetSet, 0, len(ids))
	for _, s := range sets {
		if _, ok := want[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Preview runs everything up to the confirmation gate without mutating.
// selected follows the same rules as in Reconcile.
func (e *Engine) Preview(ctx context.Context, sets []TargetSet, selected []string) (Summary, error) {
	sum, chosen, done := e.choose(sets, selected)
	if done {
		return sum, nil
	}
	_, plans, decision, err := e.dryRun(ctx, chosen)
	if err != nil {
		return sum, fmt.Errorf("group tabs by bookmark folders: %w", err)
	}
	sum.Plans = plans
	sum.Decision = decision
	sum.Status = StatusNeedsApproval
	if !decision.Mutate {
		sum.Status = StatusUpToDate
	}
	return sum, nil
}

// Reconcile makes tab groups match the selected folders. When selected is
// empty and more than one folder qualifies, it returns StatusSelectionNeeded
// with the candidates so the caller can ask the user and call again.
func (e *Engine) Reconcile(ctx context.Context, sets []TargetSet, selected []string, approver Approver) (Summary, error) {
	sum, chosen, done := e.choose(sets, selected)
	if done {
		return sum, nil
	}

	idx, plans, decision, err := e.dryRun(ctx, chosen)
	if err != nil {
		return sum, fmt.Errorf("group tabs by bookmark folders: %w", err)
	}
	sum.Plans = plans
	sum.Decision = decision

	if !decision.Mutate {
		sum.Status = StatusUpToDate
		log.Printf("[%s] tabs already grouped by folder; nothing to do", sum.RunID)
		return sum, nil
	}

	if approver == nil {
		approver = AutoApprove
	}
	ok, err := approver.Approve(ctx, decision.Preview)
	if err != nil {
		return sum, fmt.Errorf("group tabs by bookmark folders: confirmation: %w", err)
	}
	if !ok {
		sum.Status = StatusDeclined
		return sum, nil
	}

	alloc, err := LoadAllocator(ctx, e.opts.Store, e.opts.Palette)
	if err != nil {
		log.Printf("warning: failed to read color index, starting at 0: %v", err)
	}

	applier := &Applier{
		provider:     e.opts.Provider,
		store:        e.opts.Store,
		refresher:    e.opts.Refresher,
		refreshDelay: e.opts.RefreshDelay,
		journal:      e.opts.Journal,
		runID:        sum.RunID,
	}
	sum.Result = applier.Apply(ctx, chosen, idx, alloc, make(IDSet))
	sum.Status = StatusApplied
	sum.Notice = describe(sum.Result)
	log.Printf("[%s] %s", sum.RunID, sum.Notice)
	return sum, nil
}

// choose applies the qualification and selection rules. done is true when
// the summary is final.
func (e *Engine) choose(sets []TargetSet, selected []string) (Summary, []TargetSet, bool) {
	sum := Summary{RunID: uuid.NewString()}

	candidates := Qualifying(sets)
	if len(candidates) == 0 {
		sum.Status = StatusNoTargets
		sum.Notice = "No bookmark folders with links found."
		return sum, nil, true
	}

	if len(selected) == 0 {
		if len(candidates) > 1 {
			sum.Status = StatusSelectionNeeded
			sum.Candidates = candidates
			return sum, nil, true
		}
		return sum, candidates, false
	}

	chosen := Select(candidates, selected)
	if len(chosen) == 0 {
		sum.Status = StatusEmptySelection
		sum.Notice = "None of the selected folders contain links."
		return sum, nil, true
	}
	return sum, chosen, false
}

// dryRun takes the one snapshot used by both the preview and the apply pass.
func (e *Engine) dryRun(ctx context.Context, sets []TargetSet) (*Index, []Plan, Decision, error) {
	tabs, err := e.opts.Provider.ListTabs(ctx)
	if err != nil {
		return nil, nil, Decision{}, fmt.Errorf("list tabs: %w", err)
	}
	idx := BuildIndex(tabs)
	plans, err := NewPlanner(e.opts.Provider).PlanAll(ctx, sets, idx)
	if err != nil {
		return nil, nil, Decision{}, err
	}
	return idx, plans, Decide(plans), nil
}

func describe(res ApplyResult) string {
	if res.GroupedSets == 0 {
		return "No bookmark folders were grouped."
	}
	return fmt.Sprintf("Opened %d new tab%s and grouped %d folder%s.",
		res.Opened, plural(res.Opened), res.GroupedSets, plural(res.GroupedSets))
}
