package browser

import (
	"context"
	"fmt"

	"tabfold-mcp-server/internal/config"
	"tabfold-mcp-server/internal/reconcile"
)

// Backend is a tab provider with its lifecycle and read-side helpers.
type Backend interface {
	reconcile.Provider
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	IsConnected() bool
	ControlURL() string
	Refresh(ctx context.Context) error
	TabText(ctx context.Context, tabID string) (string, error)
	Groups() []reconcile.Group
}

var (
	_ Backend = (*TabManager)(nil)
	_ Backend = (*MemoryTabs)(nil)
)

// New returns the backend named by browser.provider.
func New(cfg config.BrowserConfig, sink EngineSink) (Backend, error) {
	switch cfg.Provider {
	case "", config.ProviderChrome:
		return NewTabManager(cfg, sink), nil
	case config.ProviderMemory:
		return NewMemoryTabs(sink), nil
	default:
		return nil, fmt.Errorf("unknown browser provider %q", cfg.Provider)
	}
}
