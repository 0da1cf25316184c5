package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

const storeWorkspace = `
store:
  driver: sqlite
  path: data/state.sqlite3
reconcile:
  source: folders.yaml
`

func writeWorkspace(t *testing.T, root, content string) {
	t.Helper()
	wsDir := filepath.Join(root, WorkspaceDirName)
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		t.Fatalf("failed to create workspace dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, WorkspaceConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write workspace config: %v", err)
	}
}

func TestDiscoverWorkspace(t *testing.T) {
	deep := make([]string, MaxSearchDepth+1)
	for i := range deep {
		deep[i] = "d"
	}

	tests := []struct {
		name      string
		workspace bool
		start     string
		found     bool
	}{
		{name: "at root", workspace: true, start: "", found: true},
		{name: "from a project subdirectory", workspace: true, start: filepath.Join("bookmarks", "exports"), found: true},
		{name: "beyond search depth", workspace: true, start: filepath.Join(deep...), found: false},
		{name: "no workspace", workspace: false, start: "notes", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if tt.workspace {
				writeWorkspace(t, root, storeWorkspace)
			}
			start := filepath.Join(root, tt.start)
			if err := os.MkdirAll(start, 0755); err != nil {
				t.Fatalf("failed to create start dir: %v", err)
			}

			got, err := DiscoverWorkspace(start)
			if err != nil {
				t.Fatalf("DiscoverWorkspace: %v", err)
			}
			want := ""
			if tt.found {
				want = root
			}
			if got != want {
				t.Errorf("DiscoverWorkspace(%q) = %q, want %q", tt.start, got, want)
			}
		})
	}
}

func TestLoadWithWorkspace_DefaultsOnly(t *testing.T) {
	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{Disable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != "" {
		t.Errorf("expected empty workspace dir, got %q", wsDir)
	}
	if cfg.Server.Name != "tabfold-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
	if cfg.Store.Driver != DriverFile {
		t.Errorf("expected default store driver, got %q", cfg.Store.Driver)
	}
}

func TestLoadWithWorkspace_WorkspaceOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, `
store:
  driver: sqlite
  path: data/state.sqlite3

reconcile:
  source: folders.yaml
  palette: [green, pink]
`)

	cfg, resultDir, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resultDir != tmpDir {
		t.Errorf("expected workspace dir %q, got %q", tmpDir, resultDir)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver from workspace config, got %q", cfg.Store.Driver)
	}
	if want := filepath.Join(tmpDir, "data", "state.sqlite3"); cfg.Store.Path != want {
		t.Errorf("expected store path %q, got %q", want, cfg.Store.Path)
	}
	if want := filepath.Join(tmpDir, "folders.yaml"); cfg.Reconcile.Source != want {
		t.Errorf("expected source %q, got %q", want, cfg.Reconcile.Source)
	}
	if len(cfg.Reconcile.Palette) != 2 || cfg.Reconcile.Palette[0] != "green" {
		t.Errorf("expected palette [green pink], got %v", cfg.Reconcile.Palette)
	}
	if cfg.Server.Name != "tabfold-mcp" {
		t.Errorf("expected default server name, got %q", cfg.Server.Name)
	}
}

func TestLoadWithWorkspace_ExplicitOverridesWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, `
duplicates:
  threshold: 0.7
reconcile:
  palette: [green]
`)

	explicitPath := filepath.Join(tmpDir, "explicit.yaml")
	explicitConfig := `
reconcile:
  palette: [red, blue]
`
	if err := os.WriteFile(explicitPath, []byte(explicitConfig), 0644); err != nil {
		t.Fatalf("failed to write explicit config: %v", err)
	}

	cfg, _, err := LoadWithWorkspace(explicitPath, WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Reconcile.Palette) != 2 || cfg.Reconcile.Palette[0] != "red" {
		t.Errorf("expected explicit palette to override workspace, got %v", cfg.Reconcile.Palette)
	}
	if cfg.Duplicates.Threshold != 0.7 {
		t.Errorf("expected workspace threshold to survive, got %v", cfg.Duplicates.Threshold)
	}
}

func TestLoadWithWorkspace_InvalidResult(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, `
store:
  driver: redis
`)

	if _, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir}); err == nil {
		t.Fatal("expected validation error for redis without an address")
	}
}

func TestLoadWithWorkspace_Disabled(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, `
store:
  driver: memory
`)

	cfg, resultDir, err := LoadWithWorkspace("", WorkspaceOptions{Disable: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resultDir != "" {
		t.Errorf("expected empty workspace dir with Disable, got %q", resultDir)
	}
	if cfg.Store.Driver != DriverFile {
		t.Errorf("expected default driver when workspace disabled, got %q", cfg.Store.Driver)
	}
}

func TestResolveWorkspacePaths_Relative(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Config{
		Server:    ServerConfig{LogFile: "tabfold-mcp.log"},
		Browser:   BrowserConfig{GroupStore: "tab_groups.json"},
		Mangle:    MangleConfig{SchemaPath: filepath.Join("schemas", "tabs.mg")},
		Store:     StoreConfig{Driver: DriverFile, Path: "state.json"},
		Reconcile: ReconcileConfig{Source: "Bookmarks", JournalDir: "data/runs"},
	}

	resolved := resolveWorkspacePaths(cfg, tmpDir)

	checks := map[string][2]string{
		"log file":    {resolved.Server.LogFile, filepath.Join(tmpDir, "tabfold-mcp.log")},
		"group store": {resolved.Browser.GroupStore, filepath.Join(tmpDir, "tab_groups.json")},
		"schema":      {resolved.Mangle.SchemaPath, filepath.Join(tmpDir, "schemas", "tabs.mg")},
		"state":       {resolved.Store.Path, filepath.Join(tmpDir, "state.json")},
		"source":      {resolved.Reconcile.Source, filepath.Join(tmpDir, "Bookmarks")},
		"journal":     {resolved.Reconcile.JournalDir, filepath.Join(tmpDir, "data", "runs")},
	}
	for name, pair := range checks {
		if pair[0] != pair[1] {
			t.Errorf("%s: expected %q, got %q", name, pair[1], pair[0])
		}
	}
}

func TestResolveWorkspacePaths_AbsoluteUntouched(t *testing.T) {
	wsDir := t.TempDir()

	var absLog, absGroups, absSchema string
	if runtime.GOOS == "windows" {
		absLog = `C:\var\log\tabfold.log`
		absGroups = `C:\tmp\tab_groups.json`
		absSchema = `C:\etc\tabfold\tabs.mg`
	} else {
		absLog = "/var/log/tabfold.log"
		absGroups = "/tmp/tab_groups.json"
		absSchema = "/etc/tabfold/tabs.mg"
	}

	cfg := Config{
		Server:  ServerConfig{LogFile: absLog},
		Browser: BrowserConfig{GroupStore: absGroups},
		Mangle:  MangleConfig{SchemaPath: absSchema},
		Store:   StoreConfig{Driver: DriverSQLite, Path: ":memory:"},
	}

	resolved := resolveWorkspacePaths(cfg, wsDir)

	if resolved.Server.LogFile != absLog {
		t.Errorf("expected absolute log file untouched %q, got %q", absLog, resolved.Server.LogFile)
	}
	if resolved.Browser.GroupStore != absGroups {
		t.Errorf("expected absolute group store untouched %q, got %q", absGroups, resolved.Browser.GroupStore)
	}
	if resolved.Mangle.SchemaPath != absSchema {
		t.Errorf("expected absolute schema path untouched %q, got %q", absSchema, resolved.Mangle.SchemaPath)
	}
	if resolved.Store.Path != ":memory:" {
		t.Errorf("expected in-memory sqlite path untouched, got %q", resolved.Store.Path)
	}
}

func TestInitWorkspace(t *testing.T) {
	root := t.TempDir()
	if err := InitWorkspace(root); err != nil {
		t.Fatalf("InitWorkspace: %v", err)
	}

	wsDir := filepath.Join(root, WorkspaceDirName)
	for _, dir := range []string{"schemas", "data"} {
		if info, err := os.Stat(filepath.Join(wsDir, dir)); err != nil || !info.IsDir() {
			t.Errorf("expected %s directory in workspace: %v", dir, err)
		}
	}
	ignore, err := os.ReadFile(filepath.Join(wsDir, ".gitignore"))
	if err != nil || !strings.Contains(string(ignore), "data/") {
		t.Errorf("expected .gitignore to exclude data/, got %q (%v)", ignore, err)
	}

	// The template is all comments, so loading it must give the defaults.
	cfg, found, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: root})
	if err != nil {
		t.Fatalf("LoadWithWorkspace on fresh template: %v", err)
	}
	if found != root {
		t.Errorf("expected workspace %q, got %q", root, found)
	}
	def := DefaultConfig()
	if cfg.Store.Driver != def.Store.Driver || cfg.Duplicates.Threshold != def.Duplicates.Threshold {
		t.Errorf("template changed defaults: store=%q threshold=%v", cfg.Store.Driver, cfg.Duplicates.Threshold)
	}

	if err := InitWorkspace(root); err == nil {
		t.Error("expected error when workspace already exists")
	}
}

func TestInitWorkspaceThenConfigure(t *testing.T) {
	root := t.TempDir()
	if err := InitWorkspace(root); err != nil {
		t.Fatalf("InitWorkspace: %v", err)
	}
	writeWorkspace(t, root, storeWorkspace+"duplicates:\n  threshold: 0.9\n")

	cfg, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: root})
	if err != nil {
		t.Fatalf("LoadWithWorkspace: %v", err)
	}
	if want := filepath.Join(root, "data", "state.sqlite3"); cfg.Store.Path != want {
		t.Errorf("expected store under the workspace data dir %q, got %q", want, cfg.Store.Path)
	}
	if cfg.Duplicates.Threshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", cfg.Duplicates.Threshold)
	}
}
