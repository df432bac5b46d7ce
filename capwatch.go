// Package capwatch turns the live captions of a meeting page into discrete
// translated utterances. It drives Chrome as a disposable component, reads
// the caption region, classifies each change as a continuation or a new
// speaker turn, debounces the new words, and dispatches every utterance at
// most once to a translation backend. Results go to sinks (stdout,
// webhook, websocket overlay, audio player, callback).
package capwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/idgen"
	"github.com/hazyhaar/capwatch/internal/browser"
	"github.com/hazyhaar/capwatch/internal/config"
	"github.com/hazyhaar/capwatch/internal/locator"
	"github.com/hazyhaar/capwatch/internal/metrics"
	"github.com/hazyhaar/capwatch/internal/pagedoc"
	"github.com/hazyhaar/capwatch/internal/pipeline"
	"github.com/hazyhaar/capwatch/internal/sink"
	"github.com/hazyhaar/capwatch/internal/translate"
)

// Errors returned to control plane callers.
var (
	ErrUnknownMeeting = errors.New("capwatch: unknown meeting")
	ErrUnknownCommand = errors.New("capwatch: unknown command")
	ErrNoLanguage     = errors.New("capwatch: no target language")
	ErrNotActive      = errors.New("capwatch: meeting not active")
)

// drainTimeout bounds how long Stop waits for in-flight translations.
const drainTimeout = 10 * time.Second

// Service is the top-level orchestrator. It owns the browser, one monitor
// per meeting, the translator and the sinks.
type Service struct {
	cfg        *config.Config
	mgr        *browser.Manager
	translator translate.Translator
	sinkR      *sink.Router
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// open registers a meeting found by SyncMeetings. Defaults to OpenMeeting.
	open func(ctx context.Context, m config.MeetingConfig) error

	mu       sync.Mutex
	baseCtx  context.Context
	monitors map[string]*monitor
}

// monitor binds one meeting to its document and its current session.
type monitor struct {
	meeting config.MeetingConfig
	doc     locator.Document
	tab     *browser.Tab // nil when the document was attached
	loc     *locator.Locator
	session *pipeline.Session // latest session, possibly stopped

	targetLanguage string
	voiceID        string
	resume         bool // restart after browser recycle
	synced         bool // added by SyncMeetings, removable by it
}

// New creates a Service. The browser is not launched until Start.
func New(cfg *Config, tr translate.Translator, logger *slog.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := browser.ParseMode(cfg.Browser.Mode)
	if err != nil {
		logger.Warn("capwatch: falling back to headless", "error", err)
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		UserDataDir:      cfg.Browser.UserDataDir,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Mode:             mode,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})

	s := &Service{
		cfg:        cfg,
		mgr:        mgr,
		translator: tr,
		sinkR:      sink.NewRouter(logger, sinks...),
		metrics:    metrics.Default(),
		logger:     logger,
		baseCtx:    context.Background(),
		monitors:   make(map[string]*monitor),
	}
	s.open = s.OpenMeeting
	return s
}

// Start launches the browser and opens every configured meeting. Meetings
// with auto_start begin monitoring immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if _, err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("capwatch: start browser: %w", err)
	}
	s.mgr.SetRecycleHooks(browser.RecycleHooks{
		Before: s.beforeRecycle,
		After:  func(*rod.Browser) { s.afterRecycle() },
	})

	for _, m := range s.cfg.Meetings {
		if err := s.OpenMeeting(ctx, m); err != nil {
			s.logger.Error("capwatch: failed to open meeting", "meeting", m.ID, "url", m.URL, "error", err)
		}
	}
	return nil
}

// OpenMeeting opens the meeting in a new tab and registers it.
func (s *Service) OpenMeeting(ctx context.Context, m config.MeetingConfig) error {
	tab, err := browser.OpenTab(ctx, s.mgr, m.URL, m.ID)
	if err != nil {
		return fmt.Errorf("capwatch: open tab: %w", err)
	}
	doc := pagedoc.New(tab.Page, s.logger.With("meeting", m.ID))
	if err := s.register(ctx, m, doc, tab); err != nil {
		tab.Close()
		return err
	}
	return nil
}

// Attach registers a meeting backed by an existing document, such as an
// HTML replay. No browser is involved.
func (s *Service) Attach(ctx context.Context, m config.MeetingConfig, doc locator.Document) error {
	return s.register(ctx, m, doc, nil)
}

func (s *Service) register(ctx context.Context, m config.MeetingConfig, doc locator.Document, tab *browser.Tab) error {
	loc, err := s.newLocator(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if old, ok := s.monitors[m.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("capwatch: meeting %q already registered (url %s)", m.ID, old.meeting.URL)
	}
	mon := &monitor{
		meeting:        m,
		doc:            doc,
		tab:            tab,
		loc:            loc,
		targetLanguage: m.TargetLanguage,
		voiceID:        m.VoiceID,
	}
	s.monitors[m.ID] = mon
	s.mu.Unlock()

	s.logger.Info("capwatch: meeting registered", "meeting", m.ID, "url", m.URL, "auto_start", m.AutoStart)
	if m.AutoStart {
		if _, err := s.StartMonitoring(ctx, m.ID, caption.Command{Command: caption.CommandStart}); err != nil {
			s.logger.Error("capwatch: auto start failed", "meeting", m.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) newLocator(m config.MeetingConfig) (*locator.Locator, error) {
	patterns := append(append([]string(nil), locator.DefaultUIPatterns...), s.cfg.Pipeline.UIFilters...)
	filter, err := locator.NewUIChromeFilter(
		locator.BasicPlausibility{MinLength: s.cfg.Pipeline.MinTextLength}, patterns)
	if err != nil {
		return nil, fmt.Errorf("capwatch: meeting %s: %w", m.ID, err)
	}
	opts := []locator.Option{
		locator.WithPlausibility(filter),
		locator.WithLogger(s.logger.With("meeting", m.ID)),
	}
	if len(m.Selectors) > 0 {
		opts = append(opts, locator.WithStrategies(locator.StrategiesFromSelectors(m.Selectors)))
	}
	return locator.New(opts...), nil
}

// Handle applies a control command to one meeting.
func (s *Service) Handle(ctx context.Context, meetingID string, cmd caption.Command) (SessionInfo, error) {
	switch cmd.Command {
	case caption.CommandStart:
		return s.StartMonitoring(ctx, meetingID, cmd)
	case caption.CommandStop:
		return s.StopMonitoring(meetingID)
	default:
		return SessionInfo{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

// StartMonitoring starts a fresh session on a meeting. Language and voice
// in cmd override the meeting's configuration for this and later sessions.
// Starting an active meeting changes nothing.
func (s *Service) StartMonitoring(ctx context.Context, meetingID string, cmd caption.Command) (SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mon, ok := s.monitors[meetingID]
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrUnknownMeeting, meetingID)
	}
	if mon.session != nil && mon.session.State() != pipeline.StateIdle {
		return mon.info(), nil
	}

	if cmd.TargetLanguage != "" {
		mon.targetLanguage = cmd.TargetLanguage
	}
	if cmd.VoiceID != "" {
		mon.voiceID = cmd.VoiceID
	}
	if mon.targetLanguage == "" {
		return SessionInfo{}, fmt.Errorf("%w for meeting %s", ErrNoLanguage, meetingID)
	}

	if err := s.startLocked(mon); err != nil {
		return SessionInfo{}, err
	}
	return mon.info(), nil
}

func (s *Service) startLocked(mon *monitor) error {
	sessionID := idgen.Session()
	p := s.cfg.Pipeline
	sess := pipeline.NewSession(pipeline.Config{
		ID:             sessionID,
		PageID:         mon.meeting.ID,
		Document:       mon.doc,
		Locator:        mon.loc,
		Dispatch:       s.dispatcher(sessionID, mon.meeting.ID, mon.targetLanguage, mon.voiceID),
		PollInterval:   p.PollInterval,
		NotifyDebounce: p.NotifyDebounce,
		BufferDelay:    p.BufferDelay,
		MinInterval:    p.MinInterval,
		Metrics:        s.metrics,
		Logger:         s.logger,
	})
	// The session outlives the request that started it.
	if err := sess.Start(s.baseCtx); err != nil {
		return fmt.Errorf("capwatch: start session: %w", err)
	}
	mon.session = sess
	return nil
}

// StopMonitoring stops the meeting's session. Stopping an idle meeting
// changes nothing.
func (s *Service) StopMonitoring(meetingID string) (SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mon, ok := s.monitors[meetingID]
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrUnknownMeeting, meetingID)
	}
	if mon.session != nil {
		mon.session.Stop()
	}
	return mon.info(), nil
}

// Skip permanently suppresses text in the meeting's active session.
func (s *Service) Skip(meetingID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mon, ok := s.monitors[meetingID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMeeting, meetingID)
	}
	if mon.session == nil || mon.session.State() == pipeline.StateIdle {
		return fmt.Errorf("%w: %s", ErrNotActive, meetingID)
	}
	mon.session.Skip(text)
	return nil
}

// SyncMeetings applies a reloaded meetings table: unknown meetings are
// opened, and meetings previously added this way that are no longer
// listed are stopped and closed. Meetings from the config file are never
// removed.
func (s *Service) SyncMeetings(ctx context.Context, rows []config.MeetingConfig) error {
	listed := make(map[string]bool, len(rows))
	var added []config.MeetingConfig
	s.mu.Lock()
	for _, m := range rows {
		listed[m.ID] = true
		if _, ok := s.monitors[m.ID]; !ok {
			added = append(added, m)
		}
	}
	var removed []*monitor
	for id, mon := range s.monitors {
		if mon.synced && !listed[id] {
			removed = append(removed, mon)
			delete(s.monitors, id)
		}
	}
	s.mu.Unlock()

	for _, mon := range removed {
		if mon.session != nil {
			mon.session.Stop()
		}
		if mon.tab != nil {
			mon.tab.Close()
		}
		s.logger.Info("capwatch: meeting removed", "meeting", mon.meeting.ID)
	}

	var errs []error
	for _, m := range added {
		if m.TargetLanguage == "" {
			m.TargetLanguage = s.cfg.Translate.TargetLanguage
		}
		if err := s.open(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("meeting %s: %w", m.ID, err))
			continue
		}
		s.mu.Lock()
		if mon, ok := s.monitors[m.ID]; ok {
			mon.synced = true
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

// SessionInfo describes one meeting and its latest session.
type SessionInfo struct {
	MeetingID      string          `json:"meeting_id"`
	URL            string          `json:"url"`
	SessionID      string          `json:"session_id,omitempty"`
	TargetLanguage string          `json:"target_language"`
	VoiceID        string          `json:"voice_id,omitempty"`
	Stats          *pipeline.Stats `json:"stats,omitempty"`
}

func (m *monitor) info() SessionInfo {
	si := SessionInfo{
		MeetingID:      m.meeting.ID,
		URL:            m.meeting.URL,
		TargetLanguage: m.targetLanguage,
		VoiceID:        m.voiceID,
	}
	if m.session != nil {
		st := m.session.Stats()
		si.SessionID = m.session.ID()
		si.Stats = &st
	}
	return si
}

// Sessions lists all meetings ordered by ID.
func (s *Service) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SessionInfo, 0, len(s.monitors))
	for _, mon := range s.monitors {
		out = append(out, mon.info())
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		switch {
		case a.MeetingID < b.MeetingID:
			return -1
		case a.MeetingID > b.MeetingID:
			return 1
		}
		return 0
	})
	return out
}

// Stop stops every session, waits briefly for in-flight translations,
// then closes tabs, sinks and the browser.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, mon := range s.monitors {
		if mon.session != nil {
			mon.session.Stop()
		}
		s.logger.Info("capwatch: stopped meeting", "meeting", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for _, mon := range s.monitors {
		if mon.session == nil {
			continue
		}
		if err := mon.session.Wait(ctx); err != nil {
			s.logger.Warn("capwatch: translations still in flight at shutdown", "meeting", mon.meeting.ID)
		}
	}

	for _, mon := range s.monitors {
		if mon.tab != nil {
			mon.tab.Close()
		}
	}
	s.monitors = make(map[string]*monitor)

	s.sinkR.Close()
	s.mgr.Close()
}

// beforeRecycle stops sessions on browser-backed meetings and remembers
// which ones were running.
func (s *Service) beforeRecycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mon := range s.monitors {
		if mon.tab == nil {
			continue
		}
		mon.resume = mon.session != nil && mon.session.State() != pipeline.StateIdle
		if mon.session != nil {
			mon.session.Stop()
		}
		// The old Chrome is about to die with the tab in it.
		mon.tab = nil
		mon.doc = nil
	}
}

// afterRecycle reopens tabs and restarts the sessions stopped before.
func (s *Service) afterRecycle() {
	s.mu.Lock()
	ctx := s.baseCtx
	var reopen []*monitor
	for _, mon := range s.monitors {
		if mon.doc == nil {
			reopen = append(reopen, mon)
		}
	}
	s.mu.Unlock()

	for _, mon := range reopen {
		tab, err := browser.OpenTab(ctx, s.mgr, mon.meeting.URL, mon.meeting.ID)
		if err != nil {
			s.logger.Error("capwatch: reopen after recycle failed", "meeting", mon.meeting.ID, "error", err)
			continue
		}
		s.mu.Lock()
		mon.tab = tab
		mon.doc = pagedoc.New(tab.Page, s.logger.With("meeting", mon.meeting.ID))
		if mon.resume {
			if err := s.startLocked(mon); err != nil {
				s.logger.Error("capwatch: resume after recycle failed", "meeting", mon.meeting.ID, "error", err)
			}
			mon.resume = false
		}
		s.mu.Unlock()
	}
}
