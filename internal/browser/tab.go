package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultNavigateTimeout bounds navigation and load.
const DefaultNavigateTimeout = 45 * time.Second

// ErrNoBrowser is returned when OpenTab runs before Start.
var ErrNoBrowser = errors.New("browser: no active browser")

// Tab is one meeting page.
type Tab struct {
	Page      *rod.Page
	URL       string
	MeetingID string

	router *rod.HijackRouter
}

// OpenTab creates a tab, applies stealth in headless mode, installs
// resource blocking and navigates to the meeting URL.
func OpenTab(ctx context.Context, mgr *Manager, meetingURL, meetingID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, ErrNoBrowser
	}
	log := mgr.cfg.Logger

	var page *rod.Page
	var err error
	if mgr.cfg.Mode == ModeHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, URL: meetingURL, MeetingID: meetingID}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		router, err := blockResources(page, mgr.cfg.ResourceBlocking)
		if err != nil {
			log.Warn("browser: resource blocking failed", "meeting", meetingID, "error", err)
		}
		t.router = router
	}

	navCtx, cancel := context.WithTimeout(ctx, DefaultNavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(meetingURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", meetingURL, err)
	}
	// Meeting apps keep long-polling connections open; load may never settle.
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn("browser: wait load", "meeting", meetingID, "error", err)
	}

	log.Info("browser: tab opened", "meeting", meetingID, "url", meetingURL)
	return t, nil
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
