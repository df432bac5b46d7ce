package pipeline

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterval is the minimum time between two dispatches.
const DefaultMinInterval = 2 * time.Second

// Outcome reports what TryDispatch did with a text.
type Outcome int

const (
	OutcomeDispatched Outcome = iota
	OutcomeDeferred
	OutcomeDroppedSkipped
	OutcomeDroppedDuplicate
	OutcomeDroppedEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeDroppedSkipped:
		return "dropped-skipped"
	case OutcomeDroppedDuplicate:
		return "dropped-duplicate"
	case OutcomeDroppedEmpty:
		return "dropped-empty"
	default:
		return "unknown"
	}
}

// DispatchFunc sends one utterance. It must not block the caller for long;
// the session runs the actual network call on its own goroutine.
type DispatchFunc func(text string)

type pendingDispatch struct {
	text string
	fn   DispatchFunc
}

// Guard enforces the dispatch rate ceiling and at-most-once delivery.
// Throttled texts are queued in arrival order and released by the owner
// when C fires; they are never dropped for being early. Not safe for
// concurrent use.
type Guard struct {
	ledger       *Ledger
	interval     time.Duration
	limiter      *rate.Limiter
	lastDispatch time.Time
	pending      []pendingDispatch
	retry        *time.Timer
	retryCh      <-chan time.Time
	onOutcome    func(text string, o Outcome)
	logger       *slog.Logger
}

// NewGuard creates a Guard recording into ledger. interval <= 0 uses
// DefaultMinInterval.
func NewGuard(ledger *Ledger, interval time.Duration, logger *slog.Logger) *Guard {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Guard{
		ledger:   ledger,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   logger,
	}
}

// OnOutcome registers a hook called for every decision, including releases
// of queued texts.
func (g *Guard) OnOutcome(fn func(text string, o Outcome)) {
	g.onOutcome = fn
}

// TryDispatch applies, in order: skipped -> drop, already dispatched -> drop,
// too soon -> queue for later, otherwise record then dispatch. The text is
// recorded before fn runs so a slow fn cannot cause a second send.
func (g *Guard) TryDispatch(text string, fn DispatchFunc) Outcome {
	if len(g.pending) > 0 {
		// Older texts are waiting; keep arrival order.
		if o, drop := g.precheck(text); drop {
			return g.report(text, o)
		}
		g.pending = append(g.pending, pendingDispatch{text: text, fn: fn})
		return g.report(text, OutcomeDeferred)
	}
	return g.attempt(pendingDispatch{text: text, fn: fn}, true)
}

// C fires when the head of the queue may be retried. Nil when nothing is
// queued.
func (g *Guard) C() <-chan time.Time {
	return g.retryCh
}

// Release retries queued texts after C fired.
func (g *Guard) Release() {
	g.retry = nil
	g.retryCh = nil
	for len(g.pending) > 0 {
		head := g.pending[0]
		g.pending = g.pending[1:]
		if o := g.attempt(head, false); o == OutcomeDeferred {
			// attempt re-queued it at the front and armed the timer.
			return
		}
	}
}

// Pending returns the number of queued texts.
func (g *Guard) Pending() int {
	return len(g.pending)
}

// LastDispatch returns when the last text was dispatched.
func (g *Guard) LastDispatch() time.Time {
	return g.lastDispatch
}

// Reset drops queued texts, cancels the retry timer and restores the rate
// budget. The ledger is left to its owner.
func (g *Guard) Reset() {
	g.pending = nil
	if g.retry != nil {
		g.retry.Stop()
	}
	g.retry = nil
	g.retryCh = nil
	g.lastDispatch = time.Time{}
	g.limiter = rate.NewLimiter(rate.Every(g.interval), 1)
}

func (g *Guard) precheck(text string) (Outcome, bool) {
	switch {
	case text == "":
		return OutcomeDroppedEmpty, true
	case g.ledger.IsSkipped(text):
		return OutcomeDroppedSkipped, true
	case g.ledger.IsDispatched(text):
		return OutcomeDroppedDuplicate, true
	}
	return 0, false
}

// attempt runs the checks for one text. fresh is false when the text comes
// from the queue, in which case a deferral puts it back at the front.
func (g *Guard) attempt(p pendingDispatch, fresh bool) Outcome {
	if o, drop := g.precheck(p.text); drop {
		return g.report(p.text, o)
	}

	now := time.Now()
	r := g.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		if fresh {
			g.pending = append(g.pending, p)
		} else {
			g.pending = append([]pendingDispatch{p}, g.pending...)
		}
		g.arm(delay)
		if !fresh {
			return OutcomeDeferred
		}
		return g.report(p.text, OutcomeDeferred)
	}

	g.ledger.MarkDispatched(p.text)
	g.lastDispatch = now
	g.report(p.text, OutcomeDispatched)
	if p.fn != nil {
		p.fn(p.text)
	}
	if len(g.pending) > 0 {
		g.arm(g.interval)
	}
	return OutcomeDispatched
}

func (g *Guard) arm(d time.Duration) {
	if g.retry != nil {
		g.retry.Stop()
	}
	g.retry = time.NewTimer(d)
	g.retryCh = g.retry.C
}

func (g *Guard) report(text string, o Outcome) Outcome {
	g.logger.Debug("pipeline: dispatch decision", "outcome", o.String(), "chars", len(text))
	if g.onOutcome != nil {
		g.onOutcome(text, o)
	}
	return o
}
