// Package browser owns the shared Chrome process and the per-user
// incognito contexts that portal operations run in. Exactly one browser
// process exists per bot instance; launching one per request is far too
// slow and memory-heavy for an unattended long-running bot.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"webot/internal/engine"
	"webot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Config holds browser configuration.
type Config struct {
	Bin                 string   `yaml:"bin"`
	Headless            bool     `yaml:"headless"`
	NoSandbox           bool     `yaml:"no_sandbox"`
	ExtraFlags          []string `yaml:"extra_flags"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
}

// DefaultConfig returns sensible defaults for an unattended server.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		NoSandbox:           true,
		ViewportWidth:       1280,
		ViewportHeight:      720,
		NavigationTimeoutMs: 90000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 90 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Manager owns the detached Chrome instance and the per-user contexts.
// Get-or-create semantics: Browser re-launches after a crash or disconnect,
// Context caches one incognito context (and its single tab) per user id.
type Manager struct {
	cfg      Config
	mu       sync.Mutex
	browser  *rod.Browser
	contexts map[string]*UserContext
}

// NewManager creates a manager. The browser is launched lazily on first
// use, not here.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		contexts: make(map[string]*UserContext),
	}
}

// Browser returns the shared browser, launching it if needed. A stale
// handle (crashed or disconnected process) is detected via a version probe
// and replaced.
func (m *Manager) Browser(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browserLocked(ctx)
}

func (m *Manager) browserLocked(ctx context.Context) (*rod.Browser, error) {
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return m.browser, nil
		}
		logging.Browser("stale browser connection detected, relaunching")
		_ = m.browser.Close()
		m.browser = nil
		m.dropAllLocked()
	}

	l := launcher.New().Headless(m.cfg.Headless)
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	if m.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	for _, rawFlag := range m.cfg.ExtraFlags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		if isMissingBrowserError(err) {
			return nil, engine.WrapError(engine.KindBrowserNotInstalled, err)
		}
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	// The shared browser must outlive any single request, so it is not
	// bound to the caller's context. Pages get per-operation contexts.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = b
	logging.Browser("browser launched: %s", controlURL)
	return b, nil
}

// isMissingBrowserError matches the launcher's failure modes when the
// Chrome binary is absent and cannot be fetched.
func isMissingBrowserError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "browser binary") ||
		strings.Contains(msg, "can't find the browser")
}

// UserContext is one user's isolated cookie/storage jar plus its single
// open tab. The per-user execution lock guarantees no two operations touch
// it at once.
type UserContext struct {
	incognito *rod.Browser
	page      *rod.Page
}

// Page returns the context's tab.
func (c *UserContext) Page() *rod.Page { return c.page }

// Close closes the tab and the incognito context. Errors are ignored; the
// context may already be half-dead, which is why it is being closed.
func (c *UserContext) Close() {
	if c.page != nil {
		_ = c.page.Close()
	}
}

// Context returns the cached context for a user id, if one is live.
func (m *Manager) Context(userID string) (*UserContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uc, ok := m.contexts[userID]
	return uc, ok
}

// CreateContext replaces any cached context for the user with a fresh
// incognito context holding one blank tab, and caches it.
func (m *Manager) CreateContext(ctx context.Context, userID string) (*UserContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.contexts[userID]; ok {
		old.Close()
		delete(m.contexts, userID)
	}

	uc, err := m.newContextLocked(ctx)
	if err != nil {
		return nil, err
	}
	m.contexts[userID] = uc
	return uc, nil
}

// NewContext opens a throwaway incognito context that is not cached under
// any user id. The login flow uses this: login always starts clean.
func (m *Manager) NewContext(ctx context.Context) (*UserContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newContextLocked(ctx)
}

func (m *Manager) newContextLocked(ctx context.Context) (*UserContext, error) {
	b, err := m.browserLocked(ctx)
	if err != nil {
		return nil, err
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	return &UserContext{incognito: incognito, page: page}, nil
}

// DropContext closes and forgets the cached context for a user id.
func (m *Manager) DropContext(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if uc, ok := m.contexts[userID]; ok {
		uc.Close()
		delete(m.contexts, userID)
	}
}

func (m *Manager) dropAllLocked() {
	for id, uc := range m.contexts {
		uc.Close()
		delete(m.contexts, id)
	}
}

// Shutdown closes all contexts and the browser process.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropAllLocked()
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	logging.Browser("browser shutdown complete")
	return err
}
