package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tabfold-mcp-server/internal/mangle"
)

var errNoEngine = errors.New("mangle engine unavailable")

// QueryFactsTool runs a single-atom Mangle query.
type QueryFactsTool struct {
	engine *mangle.Engine
}

func (t *QueryFactsTool) Name() string { return "query-facts" }
func (t *QueryFactsTool) Description() string {
	return `Run a Mangle query over tab and folder facts.

BASE: tab(TabID, Key, WindowID, GroupID), tab_url(TabID, URL),
tab_group(GroupID, Label, Color), folder_target(FolderID, Label, Key)

DERIVED: grouped_tab, open_key, duplicate_key, folder_open, folder_missing,
misgrouped_tab, ungrouped_target

EXAMPLES:
- folder_missing(F, Key).
- misgrouped_tab(T, "Reading", G).

Returns: {results: [{Var: value}]}`
}
func (t *QueryFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Query atom, e.g. folder_missing(F, K).",
			},
		},
		"required": []string{"query"},
	}
}
func (t *QueryFactsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.engine == nil {
		return nil, errNoEngine
	}
	query := strings.TrimSpace(getStringArg(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if !strings.HasSuffix(query, ".") {
		query += "."
	}

	results, err := t.engine.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"count":   len(results),
		"results": results,
	}, nil
}

// ReadFactsTool returns buffered base facts.
type ReadFactsTool struct {
	engine *mangle.Engine
}

func (t *ReadFactsTool) Name() string { return "read-facts" }
func (t *ReadFactsTool) Description() string {
	return `Read the newest base facts, optionally for one predicate.

Returns: {facts: [{predicate, args, timestamp}]} oldest first.`
}
func (t *ReadFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Only facts of this predicate (e.g. tab, folder_target)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum facts to return (default 50, max 500)",
			},
		},
	}
}
func (t *ReadFactsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if t.engine == nil {
		return nil, errNoEngine
	}
	predicate := getStringArg(args, "predicate")
	limit := clampLimit(getIntArg(args, "limit", 50), 50, 500)

	facts := recentFacts(t.engine, predicate, limit)
	return map[string]interface{}{
		"predicate": predicate,
		"count":     len(facts),
		"facts":     facts,
	}, nil
}

// EvaluateRuleTool re-runs the program and returns one predicate's facts,
// derived ones included.
type EvaluateRuleTool struct {
	engine *mangle.Engine
}

func (t *EvaluateRuleTool) Name() string { return "evaluate-rule" }
func (t *EvaluateRuleTool) Description() string {
	return `Evaluate the rules and return every fact of a derived predicate.

Returns: {predicate, facts}`
}
func (t *EvaluateRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate name, e.g. misgrouped_tab",
			},
		},
		"required": []string{"predicate"},
	}
}
func (t *EvaluateRuleTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.engine == nil {
		return nil, errNoEngine
	}
	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("predicate is required")
	}
	facts, err := t.engine.Evaluate(ctx, predicate)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"predicate": predicate,
		"count":     len(facts),
		"facts":     facts,
	}, nil
}

// SubmitRuleTool adds rules to the running program.
type SubmitRuleTool struct {
	engine *mangle.Engine
}

func (t *SubmitRuleTool) Name() string { return "submit-rule" }
func (t *SubmitRuleTool) Description() string {
	return `Add Mangle declarations and rules over the tab facts.

EXAMPLE:
  Decl window_tab(WindowID, TabID).
  window_tab(W, T) :- tab(T, _, W, _).

Rules last until the server restarts.`
}
func (t *SubmitRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule": map[string]interface{}{
				"type":        "string",
				"description": "Mangle source",
			},
		},
		"required": []string{"rule"},
	}
}
func (t *SubmitRuleTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if t.engine == nil {
		return nil, errNoEngine
	}
	rule := getStringArg(args, "rule")
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("rule is required")
	}
	if err := t.engine.AddRule(rule); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "accepted"}, nil
}

// recentFacts returns the newest limit facts in chronological order.
func recentFacts(engine *mangle.Engine, predicate string, limit int) []mangle.Fact {
	var source []mangle.Fact
	if predicate != "" {
		source = engine.FactsByPredicate(predicate)
	} else {
		source = engine.Facts()
	}
	if len(source) > limit {
		source = source[len(source)-limit:]
	}
	return source
}
