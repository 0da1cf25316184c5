// Package app assembles the runtime shared by the MCP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tabfold-mcp-server/internal/browser"
	"tabfold-mcp-server/internal/config"
	"tabfold-mcp-server/internal/mangle"
	"tabfold-mcp-server/internal/mcp"
	"tabfold-mcp-server/internal/reconcile"
	"tabfold-mcp-server/internal/recorder"
	"tabfold-mcp-server/internal/store"
)

// Runtime holds the long-lived pieces built from a config.
type Runtime struct {
	Config  config.Config
	Engine  *mangle.Engine
	Tabs    browser.Backend
	State   store.Store
	Journal *recorder.Recorder
}

// Open builds the fact engine, tab backend, state store and run journal.
// The browser is not started.
func Open(ctx context.Context, cfg config.Config) (*Runtime, error) {
	engine, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		return nil, fmt.Errorf("initialize mangle engine: %w", err)
	}

	tabs, err := browser.New(cfg.Browser, engine)
	if err != nil {
		return nil, err
	}

	state, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Engine: engine, Tabs: tabs, State: state}
	if cfg.Reconcile.JournalDir != "" {
		journal, err := recorder.NewRecorder(cfg.Reconcile.JournalDir)
		if err != nil {
			_ = state.Close()
			return nil, fmt.Errorf("open run journal: %w", err)
		}
		rt.Journal = journal
	} else {
		log.Printf("run journal disabled (reconcile.journal_dir is empty)")
	}
	return rt, nil
}

// Server wraps the runtime in an MCP server.
func (r *Runtime) Server() (*mcp.Server, error) {
	return mcp.NewServer(r.Config, mcp.Deps{
		Tabs:    r.Tabs,
		Engine:  r.Engine,
		State:   r.State,
		Journal: r.Journal,
	})
}

// Reconciler builds a folder-to-group engine over the runtime's tabs, store
// and journal.
func (r *Runtime) Reconciler() (*reconcile.Engine, error) {
	opts := reconcile.Options{
		Provider:     r.Tabs,
		Store:        r.State,
		Refresher:    r.Tabs,
		Palette:      r.Config.Reconcile.Palette,
		RefreshDelay: r.Config.Reconcile.GetRefreshDelay(),
	}
	if r.Journal != nil {
		opts.Journal = r.Journal
	}
	return reconcile.NewEngine(opts)
}

// Close shuts the browser connection down and releases the store and journal.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Tabs != nil && r.Tabs.IsConnected() {
		if err := r.Tabs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown browser: %w", err))
		}
	}
	if r.Journal != nil {
		if err := r.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if r.State != nil {
		if err := r.State.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
