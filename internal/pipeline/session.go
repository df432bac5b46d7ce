package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/internal/locator"
	"github.com/hazyhaar/capwatch/internal/metrics"
)

// Defaults for the observation triggers.
const (
	DefaultPollInterval   = 750 * time.Millisecond
	DefaultNotifyDebounce = 2 * time.Second
)

// ErrNoDocument is returned by Start when the session has nothing to watch.
var ErrNoDocument = errors.New("pipeline: session has no document")

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Dispatcher sends one utterance. It runs on its own goroutine and its
// context is not cancelled when the session stops.
type Dispatcher func(ctx context.Context, text string)

// Config for creating a Session.
type Config struct {
	ID       string
	PageID   string
	Document locator.Document
	Locator  *locator.Locator
	Dispatch Dispatcher

	PollInterval   time.Duration
	NotifyDebounce time.Duration
	BufferDelay    time.Duration
	MinInterval    time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Stats is a point-in-time view of a session.
type Stats struct {
	State      string    `json:"state"`
	Passes     uint64    `json:"passes"`
	Dispatched uint64    `json:"dispatched"`
	Deferred   uint64    `json:"deferred"`
	Dropped    uint64    `json:"dropped"`
	PollOnly   bool      `json:"poll_only"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

// Session is one monitoring session for one page. All classification state
// lives on the loop goroutine; Start and Stop may be called from anywhere.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex // serialises Start/Stop
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	skipCh chan string
	wg     sync.WaitGroup // in-flight dispatches

	// Loop-owned.
	last   *caption.Observation
	flags  Flags
	ledger *Ledger
	buffer *WordBuffer
	guard  *Guard
	inPass bool

	passes     atomic.Uint64
	dispatched atomic.Uint64
	deferred   atomic.Uint64
	dropped    atomic.Uint64
	pollOnly   atomic.Bool
	startedAt  atomic.Int64
}

// NewSession creates an idle session.
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Locator == nil {
		cfg.Locator = locator.New(locator.WithLogger(cfg.Logger))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.NotifyDebounce <= 0 {
		cfg.NotifyDebounce = DefaultNotifyDebounce
	}
	if cfg.BufferDelay <= 0 {
		cfg.BufferDelay = DefaultBufferDelay
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}

	logger := cfg.Logger.With("session", cfg.ID, "page_id", cfg.PageID)
	ledger := NewLedger()
	s := &Session{
		cfg:    cfg,
		logger: logger,
		skipCh: make(chan string, 16),
		ledger: ledger,
		buffer: NewWordBuffer(cfg.BufferDelay),
		guard:  NewGuard(ledger, cfg.MinInterval, logger),
	}
	s.flags.Ledger = ledger
	s.guard.OnOutcome(s.onOutcome)
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.cfg.ID }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Start resets all session state, subscribes to change notifications when
// the document offers them, arms the poll ticker and runs one pass
// immediately. Starting an active session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		select {
		case <-s.done:
			// The loop exited with its parent context.
			s.releaseLocked()
		default:
			return nil
		}
	}
	if s.cfg.Document == nil {
		return ErrNoDocument
	}

	s.state.Store(int32(StateStarting))
	s.resetLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	dispatchCtx := context.WithoutCancel(ctx)

	var changes <-chan struct{}
	unsubscribe := func() {}
	if n, ok := s.cfg.Document.(locator.Notifier); ok {
		ch, unsub, err := n.Subscribe(loopCtx)
		if err != nil {
			s.logger.Warn("pipeline: change notifications unavailable, polling only", "error", err)
			s.pollOnly.Store(true)
		} else {
			changes, unsubscribe = ch, unsub
		}
	} else {
		s.pollOnly.Store(true)
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.startedAt.Store(time.Now().UnixMilli())
	s.cfg.Metrics.ActiveSessions.Add(ctx, 1)

	go s.loop(loopCtx, dispatchCtx, changes, unsubscribe, s.done)

	s.state.CompareAndSwap(int32(StateStarting), int32(StateActive))
	s.logger.Info("pipeline: session started",
		"poll", s.cfg.PollInterval, "poll_only", s.pollOnly.Load())
	return nil
}

// Stop cancels the poll ticker, the change subscription and both timers,
// then clears all state. It returns once the loop has exited. Dispatches
// already sent are not cancelled. Stopping an idle session only clears
// state again.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(StateIdle))
	if s.cancel != nil {
		s.releaseLocked()
		s.logger.Info("pipeline: session stopped",
			"passes", s.passes.Load(), "dispatched", s.dispatched.Load())
	}
	s.resetLocked()
}

// releaseLocked cancels the loop, waits for it to exit and forgets it.
func (s *Session) releaseLocked() {
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
}

// Wait blocks until in-flight dispatches complete or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Skip permanently suppresses text for the rest of the session. Ignored
// while the session is idle.
func (s *Session) Skip(text string) {
	if s.State() == StateIdle || text == "" {
		return
	}
	select {
	case s.skipCh <- text:
	default:
		s.logger.Warn("pipeline: skip queue full, dropping", "chars", len(text))
	}
}

// Stats returns counters and state.
func (s *Session) Stats() Stats {
	st := Stats{
		State:      s.State().String(),
		Passes:     s.passes.Load(),
		Dispatched: s.dispatched.Load(),
		Deferred:   s.deferred.Load(),
		Dropped:    s.dropped.Load(),
		PollOnly:   s.pollOnly.Load(),
	}
	if ms := s.startedAt.Load(); ms > 0 {
		st.StartedAt = time.UnixMilli(ms)
	}
	return st
}

// resetLocked must only run while the loop goroutine is not running.
func (s *Session) resetLocked() {
	s.last = nil
	s.flags.BaselineEstablished = false
	s.ledger.Reset()
	s.buffer.Reset()
	s.guard.Reset()
	s.inPass = false
drain:
	for {
		select {
		case <-s.skipCh:
		default:
			break drain
		}
	}
}

func (s *Session) loop(ctx, dispatchCtx context.Context, changes <-chan struct{}, unsubscribe func(), done chan struct{}) {
	defer close(done)
	defer s.state.Store(int32(StateIdle))
	defer unsubscribe()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var notifyTimer *time.Timer
	var notifyC <-chan time.Time
	defer func() {
		if notifyTimer != nil {
			notifyTimer.Stop()
		}
		s.buffer.Reset()
		s.guard.Reset()
	}()

	dispatch := func(text string) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.cfg.Dispatch(dispatchCtx, text)
		}()
	}

	s.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			s.pass(ctx)

		case _, ok := <-changes:
			if !ok {
				s.logger.Warn("pipeline: change notifications closed, polling only")
				changes = nil
				s.pollOnly.Store(true)
				continue
			}
			if notifyTimer != nil {
				notifyTimer.Stop()
			}
			notifyTimer = time.NewTimer(s.cfg.NotifyDebounce)
			notifyC = notifyTimer.C

		case <-notifyC:
			notifyTimer, notifyC = nil, nil
			s.pass(ctx)

		case <-s.buffer.C():
			if text := s.buffer.Flush(); text != "" && s.cfg.Dispatch != nil {
				s.guard.TryDispatch(text, dispatch)
			}

		case <-s.guard.C():
			s.guard.Release()

		case text := <-s.skipCh:
			s.ledger.Skip(text)
		}
	}
}

// pass runs locate -> classify -> diff -> buffer once.
func (s *Session) pass(ctx context.Context) {
	if s.State() == StateIdle || ctx.Err() != nil || s.inPass {
		return
	}
	s.inPass = true
	defer func() { s.inPass = false }()

	obs := s.cfg.Locator.Locate(ctx, s.cfg.Document)
	if obs == nil {
		return
	}
	s.passes.Add(1)

	prev := s.last
	action := Classify(prev, *obs, &s.flags)
	s.last = obs
	s.cfg.Metrics.RecordPass(ctx, action.String())

	switch action {
	case ActionIgnoreBaseline:
		s.ledger.Skip(obs.Text)
		s.logger.Debug("pipeline: baseline established", "chars", len(obs.Text))
	case ActionIgnoreDuplicate, ActionIgnoreSkipped:
		s.logger.Debug("pipeline: observation ignored", "action", action.String())
	case ActionContinuation:
		frag := Diff(prev.Text, obs.Text)
		if frag == "" {
			s.logger.Debug("pipeline: continuation without extractable content")
			return
		}
		s.buffer.Append(frag)
	case ActionNewTurn:
		s.buffer.Append(obs.Text)
	}
}

func (s *Session) onOutcome(_ string, o Outcome) {
	switch o {
	case OutcomeDispatched:
		s.dispatched.Add(1)
	case OutcomeDeferred:
		s.deferred.Add(1)
	default:
		s.dropped.Add(1)
	}
	s.cfg.Metrics.RecordDispatch(context.Background(), o.String())
}
