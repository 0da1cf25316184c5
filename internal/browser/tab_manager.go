package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"tabfold-mcp-server/internal/config"
	"tabfold-mcp-server/internal/mangle"
	"tabfold-mcp-server/internal/reconcile"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/time/rate"
)

var (
	ErrBrowserNotConnected = errors.New("browser not connected")
	ErrUnknownTab          = errors.New("unknown tab")
	ErrUnknownGroup        = errors.New("unknown group")
)

// EngineSink defines the minimal interface we need from the logic layer.
type EngineSink interface {
	ReplacePredicates(ctx context.Context, predicates []string, facts []mangle.Fact) error
}

// pageText reads the description and visible text used for duplicate detection.
const pageText = `() => {
	const meta = document.querySelector('meta[name="description"], meta[property="og:description"]');
	const body = document.body ? document.body.innerText : '';
	return ((meta && meta.content) ? meta.content + '\n' : '') + body;
}`

// TabManager drives the tabs of a detached Chrome over DevTools.
type TabManager struct {
	cfg     config.BrowserConfig
	engine  EngineSink
	groups  *GroupRegistry
	limiter *rate.Limiter

	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
	launched   bool
	cancel     context.CancelFunc
}

func NewTabManager(cfg config.BrowserConfig, sink EngineSink) *TabManager {
	m := &TabManager{
		cfg:    cfg,
		engine: sink,
		groups: NewGroupRegistry(cfg.GroupStore),
	}
	if cfg.OpenRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.OpenRate), cfg.GetOpenBurst())
	}
	return m
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (m *TabManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, reconnecting...")
		m.closeLocked()
	}

	if err := m.groups.Load(); err != nil {
		return fmt.Errorf("load groups: %w", err)
	}

	controlURL, launched, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	// The connection outlives the caller's context; Shutdown cancels it.
	connCtx, cancel := context.WithCancel(context.Background())
	browser := rod.New().ControlURL(controlURL).Context(connCtx).Timeout(m.cfg.AttachTimeout())
	if err := browser.Connect(); err != nil {
		cancel()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser.CancelTimeout()
	m.controlURL = controlURL
	m.launched = launched
	m.cancel = cancel
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

func (m *TabManager) resolveControlURL() (string, bool, error) {
	if m.cfg.DebuggerURL != "" {
		if strings.Contains(m.cfg.DebuggerURL, "/devtools/") {
			return m.cfg.DebuggerURL, false, nil
		}
		// ws://localhost:9222 style endpoints need the browser id looked up.
		resolved, err := launcher.ResolveURL(m.cfg.DebuggerURL)
		if err != nil {
			return "", false, fmt.Errorf("resolve debugger url %s: %w", m.cfg.DebuggerURL, err)
		}
		return resolved, false, nil
	}

	launch := launcher.New().Headless(m.cfg.IsHeadless())
	if len(m.cfg.Launch) > 0 {
		launch = launch.Bin(m.cfg.Launch[0])
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
	}
	url, err := launch.Launch()
	if err != nil {
		if len(m.cfg.Launch) == 0 {
			return "", false, fmt.Errorf("launch chrome: %w", err)
		}
		// Fallback: let Rod pick the port and defaults.
		alt, altErr := launcher.New().Bin(m.cfg.Launch[0]).Headless(m.cfg.IsHeadless()).Launch()
		if altErr != nil {
			return "", false, fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
		}
		url = alt
	}
	return url, true, nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (m *TabManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is currently connected.
func (m *TabManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown disconnects. A Chrome we launched is closed; an attached one keeps
// running with its tabs.
func (m *TabManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.closeLocked()
	log.Printf("Browser shutdown complete")
	return err
}

func (m *TabManager) closeLocked() error {
	var err error
	if m.browser != nil && m.launched {
		err = m.browser.Close()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.browser = nil
	m.controlURL = ""
	m.launched = false
	m.cancel = nil
	return err
}

func (m *TabManager) conn(ctx context.Context) (*rod.Browser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.browser == nil {
		return nil, ErrBrowserNotConnected
	}
	return m.browser.Context(ctx), nil
}

// ListTabs enumerates page targets in DevTools order.
func (m *TabManager) ListTabs(ctx context.Context) ([]reconcile.LiveTab, error) {
	b, err := m.conn(ctx)
	if err != nil {
		return nil, err
	}

	res, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}

	tabs := make([]reconcile.LiveTab, 0, len(res.TargetInfos))
	for _, info := range res.TargetInfos {
		if info.Type != proto.TargetTargetInfoTypePage || isInternalTarget(info.URL) {
			continue
		}
		id := string(info.TargetID)
		tabs = append(tabs, reconcile.LiveTab{
			ID:       id,
			URL:      info.URL,
			Title:    info.Title,
			WindowID: m.windowOf(b, info.TargetID),
			GroupID:  m.groups.GroupOf(id),
		})
	}
	return tabs, nil
}

func (m *TabManager) windowOf(b *rod.Browser, id proto.TargetTargetID) string {
	win, err := proto.BrowserGetWindowForTarget{TargetID: id}.Call(b)
	if err != nil {
		log.Printf("warning: window lookup for %s failed: %v", id, err)
		return ""
	}
	return strconv.Itoa(int(win.WindowID))
}

// OpenTab opens url in a background tab, throttled by browser.open_rate.
func (m *TabManager) OpenTab(ctx context.Context, url string) (reconcile.TabRef, error) {
	b, err := m.conn(ctx)
	if err != nil {
		return reconcile.TabRef{}, err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return reconcile.TabRef{}, fmt.Errorf("open %s: %w", url, err)
		}
	}

	res, err := proto.TargetCreateTarget{URL: url, Background: true}.Call(b)
	if err != nil {
		return reconcile.TabRef{}, fmt.Errorf("open %s: %w", url, err)
	}
	return reconcile.TabRef{
		ID:       string(res.TargetID),
		WindowID: m.windowOf(b, res.TargetID),
	}, nil
}

// CloseTabs closes every id it can and reports the ones that failed.
func (m *TabManager) CloseTabs(ctx context.Context, ids []string) error {
	b, err := m.conn(ctx)
	if err != nil {
		return err
	}

	var errs []error
	closed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := (proto.TargetCloseTarget{TargetID: proto.TargetTargetID(id)}).Call(b); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
			continue
		}
		closed = append(closed, id)
	}
	if err := m.groups.Forget(closed); err != nil {
		log.Printf("warning: failed to persist groups: %v", err)
	}
	return errors.Join(errs...)
}

func (m *TabManager) CreateGroup(ctx context.Context, ids []string) (string, error) {
	if !m.IsConnected() {
		return "", ErrBrowserNotConnected
	}
	return m.groups.Create(ids)
}

func (m *TabManager) UpdateGroup(ctx context.Context, groupID string, update reconcile.GroupUpdate) error {
	return m.groups.Update(groupID, update)
}

func (m *TabManager) GetGroup(ctx context.Context, groupID string) (*reconcile.Group, error) {
	g, ok := m.groups.Get(groupID)
	if !ok {
		return nil, nil
	}
	return g, nil
}

// Groups lists the known tab groups.
func (m *TabManager) Groups() []reconcile.Group {
	return m.groups.Groups()
}

// Refresh re-reads the tabs, drops closed ones from the group registry and
// republishes the snapshot facts.
func (m *TabManager) Refresh(ctx context.Context) error {
	tabs, err := m.ListTabs(ctx)
	if err != nil {
		return err
	}
	return publish(ctx, m.engine, m.groups, tabs)
}

// TabText returns the description and visible text of a tab, truncated to
// browser.text_limit runes.
func (m *TabManager) TabText(ctx context.Context, tabID string) (string, error) {
	b, err := m.conn(ctx)
	if err != nil {
		return "", err
	}

	page, err := b.PageFromTarget(proto.TargetTargetID(tabID))
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrUnknownTab, tabID, err)
	}
	res, err := page.Timeout(m.cfg.AttachTimeout()).Eval(pageText)
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", tabID, err)
	}
	return truncateRunes(res.Value.Str(), m.cfg.GetTextLimit()), nil
}

func publish(ctx context.Context, sink EngineSink, groups *GroupRegistry, tabs []reconcile.LiveTab) error {
	live := make(map[string]bool, len(tabs))
	for _, t := range tabs {
		live[t.ID] = true
	}
	if n, err := groups.Prune(live); err != nil {
		log.Printf("warning: failed to persist groups: %v", err)
	} else if n > 0 {
		log.Printf("Dropped %d closed tab(s) from groups", n)
	}

	if sink == nil {
		return nil
	}
	return sink.ReplacePredicates(ctx, mangle.SnapshotPredicates, mangle.TabFacts(tabs, groups.Groups()))
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// isInternalTarget returns true for DevTools and extension pages, which are
// never bookmark destinations.
func isInternalTarget(url string) bool {
	internalPrefixes := []string{
		"chrome-extension://",
		"devtools://",
		"chrome-untrusted://",
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
