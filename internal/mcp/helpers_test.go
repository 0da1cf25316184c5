package mcp

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"tabfold-mcp-server/internal/reconcile"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestGetStringSliceArg(t *testing.T) {
	tests := []struct {
		name string
		val  interface{}
		want []string
	}{
		{"json array", []interface{}{"a", " b ", nil, ""}, []string{"a", "b"}},
		{"string slice", []string{"x", "y"}, []string{"x", "y"}},
		{"comma separated", "a, b,,c", []string{"a", "b", "c"}},
		{"unsupported", 42, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getStringSliceArg(map[string]interface{}{"ids": tt.val}, "ids")
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if got := getStringSliceArg(map[string]interface{}{}, "ids"); got != nil {
		t.Errorf("missing key should give nil, got %v", got)
	}
}

func TestNumericArgs(t *testing.T) {
	args := map[string]interface{}{
		"f":   0.5,
		"i":   3,
		"s":   "0.9",
		"bad": "high",
		"n":   "7",
		"b":   "true",
	}
	if got := getFloatArg(args, "f", 0); got != 0.5 {
		t.Errorf("float: %v", got)
	}
	if got := getFloatArg(args, "i", 0); got != 3 {
		t.Errorf("int as float: %v", got)
	}
	if got := getFloatArg(args, "s", 0); got != 0.9 {
		t.Errorf("string as float: %v", got)
	}
	if got := getFloatArg(args, "bad", 0.82); got != 0.82 {
		t.Errorf("bad float should fall back: %v", got)
	}
	if got := getIntArg(args, "n", 0); got != 7 {
		t.Errorf("string as int: %v", got)
	}
	if !getBoolArg(args, "b", false) {
		t.Error("string as bool")
	}
	if got := clampLimit(0, 50, 500); got != 50 {
		t.Errorf("clamp zero: %d", got)
	}
	if got := clampLimit(900, 50, 500); got != 500 {
		t.Errorf("clamp max: %d", got)
	}
}

func readResource(t *testing.T, handler func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error), uri string, args map[string]any) map[string]interface{} {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	req.Params.Arguments = args

	contents, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("unexpected contents %T", contents[0])
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("decode %s: %v", uri, err)
	}
	return payload
}

func TestResources(t *testing.T) {
	env := newTestEnv(t)
	env.tabs.Seed(reconcile.LiveTab{ID: "a", URL: "https://a.test/"})

	about := readResource(t, env.server.handleAboutResource, "tabfold://about", nil)
	if about["name"] != "test-server" || about["connected"] != false {
		t.Errorf("unexpected about %v", about)
	}

	alloc := readResource(t, env.server.handleAllocatorResource, "tabfold://allocator", nil)
	if alloc["next_color"] != reconcile.DefaultPalette[0] {
		t.Errorf("unexpected allocator %v", alloc)
	}

	empty := readResource(t, env.server.handleLatestRunResource, "tabfold://runs/latest", nil)
	if empty["count"].(float64) != 0 {
		t.Errorf("expected no events before any run, got %v", empty)
	}

	runTool(t, env.server, "reconcile-folders", map[string]interface{}{"confirm": true})

	alloc = readResource(t, env.server.handleAllocatorResource, "tabfold://allocator", nil)
	if alloc["next_color"] != reconcile.DefaultPalette[1] {
		t.Errorf("allocator should advance after a run, got %v", alloc)
	}

	run := readResource(t, env.server.handleLatestRunResource, "tabfold://runs/latest", nil)
	if run["run_id"] == "" || run["count"].(float64) == 0 {
		t.Errorf("unexpected latest run %v", run)
	}

	facts := readResource(t, env.server.handleFactsResource, "tabfold://facts/tab", map[string]any{
		"predicate": []string{"tab"},
		"limit":     []string{"1"},
	})
	if facts["count"].(float64) != 1 || facts["limit"].(float64) != 1 {
		t.Errorf("unexpected facts %v", facts)
	}
}
