package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level TabFold config.
	WorkspaceDirName = ".tabfold"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// Store drivers accepted in store.driver.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Browser providers accepted in browser.provider.
const (
	ProviderChrome = "chrome"
	ProviderMemory = "memory"
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for TabFold.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`
	MCP        MCPConfig        `yaml:"mcp"`
	Mangle     MangleConfig     `yaml:"mangle"`
	Store      StoreConfig      `yaml:"store"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Provider selects the tab backend: chrome (default) or memory.
	Provider string `yaml:"provider"`
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// AutoStart controls whether the MCP server connects to Chrome at startup.
	AutoStart bool `yaml:"auto_start"`
	// Headless controls whether a launched Chrome runs headless (default: false).
	Headless *bool `yaml:"headless"`
	// Timeout when attaching to Chrome (e.g., "10s").
	DefaultAttachTimeout string `yaml:"default_attach_timeout"`
	// Path where the tab group registry is persisted between runs.
	GroupStore string `yaml:"group_store"`
	// OpenRate caps new tabs per second. Zero disables throttling.
	OpenRate float64 `yaml:"open_rate"`
	// OpenBurst is the number of tabs that may open back to back.
	OpenBurst int `yaml:"open_burst"`
	// TextLimit truncates page text read for duplicate detection.
	TextLimit int `yaml:"text_limit"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MangleConfig controls the embedded deductive engine.
type MangleConfig struct {
	Enable bool `yaml:"enable"`
	// SchemaPath adds project rules on top of the built-in tab rules.
	SchemaPath      string `yaml:"schema_path"`
	DisableBuiltin  bool   `yaml:"disable_builtin_rules"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// StoreConfig selects where the color index and other run state live.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the JSON file (file driver) or database file (sqlite driver).
	Path string `yaml:"path"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
	// Table holds key/value rows for the sql drivers.
	Table         string `yaml:"table"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	// KeyPrefix namespaces keys in shared backends.
	KeyPrefix string `yaml:"key_prefix"`
}

// ReconcileConfig tunes folder-to-group runs.
type ReconcileConfig struct {
	// Source is the bookmarks file: a Chrome profile Bookmarks JSON or a YAML folder list.
	Source string `yaml:"source"`
	// Palette overrides the group color rotation.
	Palette []string `yaml:"palette"`
	// RefreshDelay is the pause before re-reading tabs after a run (e.g., "150ms").
	RefreshDelay string `yaml:"refresh_delay"`
	// JournalDir receives one JSONL file per run. Empty disables the journal.
	JournalDir string `yaml:"journal_dir"`
}

// DuplicatesConfig tunes near-duplicate tab detection.
type DuplicatesConfig struct {
	Threshold float64 `yaml:"threshold"`
	// MinTokens skips tabs whose text is too short to compare.
	MinTokens int `yaml:"min_tokens"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "tabfold-mcp",
			Version: "0.1.0",
			LogFile: "tabfold-mcp.log",
		},
		Browser: BrowserConfig{
			Provider:             ProviderChrome,
			DebuggerURL:          "ws://localhost:9222",
			AutoStart:            false,
			DefaultAttachTimeout: "10s",
			GroupStore:           "tab_groups.json",
			OpenRate:             4,
			OpenBurst:            2,
			TextLimit:            4000,
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		Mangle: MangleConfig{
			Enable:          true,
			FactBufferLimit: 4096,
		},
		Store: StoreConfig{
			Driver:    DriverFile,
			Path:      "tabfold-state.json",
			Table:     "tabfold_state",
			KeyPrefix: "tabfold:",
		},
		Reconcile: ReconcileConfig{
			RefreshDelay: "150ms",
			JournalDir:   "data/runs",
		},
		Duplicates: DuplicatesConfig{
			Threshold: 0.82,
			MinTokens: 5,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .tabfold/config.yaml file.
// Returns the workspace root directory (parent of .tabfold/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .tabfold/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	// Layer 1: Workspace config (if not disabled)
	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	// Layer 2: Explicit config file (--config flag)
	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .tabfold/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "schemas"),
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# TabFold project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# reconcile:
#   source: "folders.yaml"
#   refresh_delay: "150ms"
#   palette: [blue, red, yellow, green, pink, purple, cyan, orange]

# store:
#   driver: sqlite
#   path: "data/tabfold.sqlite3"

# mangle:
#   schema_path: ".tabfold/schemas/project.mg"

# browser:
#   debugger_url: "ws://localhost:9222"
#   open_rate: 4

# duplicates:
#   threshold: 0.82
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (state, run journals) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Browser.GroupStore = resolve(cfg.Browser.GroupStore)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	cfg.Reconcile.Source = resolve(cfg.Reconcile.Source)
	cfg.Reconcile.JournalDir = resolve(cfg.Reconcile.JournalDir)
	if cfg.Store.Driver == DriverFile || cfg.Store.Driver == DriverSQLite {
		if cfg.Store.Path != ":memory:" {
			cfg.Store.Path = resolve(cfg.Store.Path)
		}
	}
	return cfg
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}

	switch c.Browser.Provider {
	case "", ProviderChrome:
		if c.Browser.AutoStart && c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
			return errors.New("browser.debugger_url or browser.launch must be provided")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("browser.provider %q is not supported", c.Browser.Provider)
	}
	if c.Browser.OpenRate < 0 {
		return errors.New("browser.open_rate must not be negative")
	}

	switch c.Store.Driver {
	case "", DriverFile, DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}

	if c.Duplicates.Threshold <= 0 || c.Duplicates.Threshold > 1 {
		return fmt.Errorf("duplicates.threshold must be in (0, 1], got %v", c.Duplicates.Threshold)
	}
	return nil
}

// AttachTimeout returns the parsed attach timeout with a sane default.
func (b BrowserConfig) AttachTimeout() time.Duration {
	if b.DefaultAttachTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(b.DefaultAttachTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// IsHeadless returns whether a launched Chrome should run headless (default: false).
// Tab groups are only useful in a visible browser.
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// GetOpenBurst returns the open burst size with a sane default.
func (b BrowserConfig) GetOpenBurst() int {
	if b.OpenBurst <= 0 {
		return 1
	}
	return b.OpenBurst
}

// GetTextLimit returns the page text limit with a sane default.
func (b BrowserConfig) GetTextLimit() int {
	if b.TextLimit <= 0 {
		return 4000
	}
	return b.TextLimit
}

// GetRefreshDelay returns the parsed refresh delay with a sane default.
func (r ReconcileConfig) GetRefreshDelay() time.Duration {
	if r.RefreshDelay == "" {
		return 150 * time.Millisecond
	}
	d, err := time.ParseDuration(r.RefreshDelay)
	if err != nil || d < 0 {
		return 150 * time.Millisecond
	}
	return d
}

// GetTable returns the sql table name with a sane default.
func (s StoreConfig) GetTable() string {
	if s.Table == "" {
		return "tabfold_state"
	}
	return s.Table
}
