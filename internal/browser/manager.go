// Package browser manages the Chrome instance meetings are joined in:
// launch or connect via Rod, keep a persistent profile so the meeting
// account stays signed in, and recycle the process on an interval or when
// its JS heap grows past a limit.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Mode selects how Chrome is displayed.
type Mode int

const (
	ModeHeadless Mode = iota // new headless, stealth tabs
	ModeHeadful              // headful on an Xvfb display
)

func (m Mode) String() string {
	if m == ModeHeadful {
		return "headful"
	}
	return "headless"
}

// ParseMode maps a config string to a Mode. Empty means headless.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "headless":
		return ModeHeadless, nil
	case "headful":
		return ModeHeadful, nil
	default:
		return ModeHeadless, fmt.Errorf("browser: unknown mode %q", s)
	}
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// Bin is the Chrome binary. Empty lets the launcher find or fetch one.
	Bin string

	// UserDataDir is the Chrome profile directory. Meetings usually require
	// a signed-in account, so this should persist between runs.
	UserDataDir string

	// MemoryLimit in bytes of JS heap before recycling. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// CheckInterval is how often the monitor looks at uptime and heap. Default: 30s.
	CheckInterval time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Mode Mode

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RecycleHooks run around a Chrome restart. Sessions stop in Before and
// reopen their tabs in After.
type RecycleHooks struct {
	Before func()
	After  func(b *rod.Browser)
}

// Manager owns one Chrome process.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool
	hooks   RecycleHooks
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// SetRecycleHooks replaces the recycle hooks.
func (m *Manager) SetRecycleHooks(h RecycleHooks) {
	m.mu.Lock()
	m.hooks = h
	m.mu.Unlock()
}

// Start launches Chrome (or connects to a remote one) and starts the
// monitor goroutine, which exits with ctx.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)
	return b, nil
}

// Browser returns the current Rod browser, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Uptime returns how long the current Chrome process has run.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.browser == nil {
		return 0
	}
	return time.Since(m.startAt)
}

// Recycle restarts Chrome, running the hooks around the restart.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	hooks := m.hooks
	m.mu.Unlock()

	// Hooks run unlocked: they call back into Browser().
	if hooks.Before != nil {
		hooks.Before()
	}

	m.mu.Lock()
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt))
	m.cleanup()
	b, err := m.launch()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	m.mu.Unlock()

	if hooks.After != nil {
		hooks.After(b)
	}
	m.cfg.Logger.Info("browser: recycled")
	return nil
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

// newLauncher builds the local Chrome command line.
func newLauncher(cfg Config) *launcher.Launcher {
	l := launcher.New()
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.Mode == ModeHeadful {
		l = l.Headless(false).Env(append(os.Environ(), "DISPLAY="+cfg.XvfbDisplay)...)
	} else {
		l = l.Headless(true)
	}

	l = l.Set("disable-blink-features", "AutomationControlled")
	// Joining a meeting prompts for camera and microphone; answer yes with
	// fake devices so nothing real is captured.
	l = l.Set("use-fake-ui-for-media-stream").
		Set("use-fake-device-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required")
	return l
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Mode == ModeHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := newLauncher(m.cfg)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "mode", m.cfg.Mode, "profile", m.cfg.UserDataDir)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		closed, b, startAt := m.closed, m.browser, m.startAt
		m.mu.RUnlock()
		if closed {
			return
		}
		if b == nil {
			continue
		}

		if reason := m.recycleReason(b, time.Since(startAt)); reason != "" {
			log.Info("browser: recycle triggered", "reason", reason)
			if err := m.Recycle(); err != nil {
				log.Error("browser: recycle failed", "error", err)
			}
		}
	}
}

func (m *Manager) recycleReason(b *rod.Browser, uptime time.Duration) string {
	if uptime > m.cfg.RecycleInterval {
		return "interval"
	}
	used, err := heapUsage(b)
	if err != nil {
		m.cfg.Logger.Debug("browser: heap check failed", "error", err)
		return ""
	}
	if used > m.cfg.MemoryLimit {
		m.cfg.Logger.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
		return "memory"
	}
	return ""
}

// heapUsage sums performance.memory.usedJSHeapSize over open pages.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, errors.New("no pages")
	}
	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			continue
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
