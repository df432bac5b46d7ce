package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MemoryLimit != 1<<30 || c.RecycleInterval != 4*time.Hour ||
		c.CheckInterval != 30*time.Second || c.XvfbDisplay != ":99" || c.Logger == nil {
		t.Errorf("defaults: %+v", c)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeHeadless, "headless": ModeHeadless, "headful": ModeHeadful} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("kiosk"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestBlockSet(t *testing.T) {
	set := blockSet([]string{"Images", " fonts ", "unknown"})
	if !set[proto.NetworkResourceTypeImage] || !set[proto.NetworkResourceTypeFont] {
		t.Errorf("missing types: %v", set)
	}
	if set[proto.NetworkResourceTypeMedia] || len(set) != 2 {
		t.Errorf("unexpected types: %v", set)
	}
}

func TestNewLauncher_Flags(t *testing.T) {
	l := newLauncher(Config{UserDataDir: "/tmp/capwatch-profile", Mode: ModeHeadless})
	if !l.Has("use-fake-ui-for-media-stream") {
		t.Error("media permission flag missing")
	}
	if got := l.Get("user-data-dir"); got != "/tmp/capwatch-profile" {
		t.Errorf("user-data-dir = %q", got)
	}
	if got := l.Get("autoplay-policy"); got != "no-user-gesture-required" {
		t.Errorf("autoplay-policy = %q", got)
	}
	if !l.Has("headless") {
		t.Error("headless flag missing")
	}

	headful := newLauncher(Config{Mode: ModeHeadful, XvfbDisplay: ":42"})
	if headful.Has("headless") {
		t.Error("headful launcher has headless flag")
	}
}

func TestManager_ClosedAndNoBrowser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := NewManager(Config{})
	if m.Browser() != nil || m.Uptime() != 0 {
		t.Error("fresh manager should have no browser")
	}
	if _, err := OpenTab(ctx, m, "https://meet.example/abc", "m1"); err != ErrNoBrowser {
		t.Errorf("OpenTab before Start: %v", err)
	}
	m.Close()
	if _, err := m.Start(ctx); err != ErrClosed {
		t.Errorf("Start after Close: %v", err)
	}
	if err := m.Recycle(); err != ErrClosed {
		t.Errorf("Recycle after Close: %v", err)
	}
}
