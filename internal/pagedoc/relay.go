package pagedoc

import (
	"context"
	"log/slog"
	"time"
)

// Re-injection after a document reset. The new document may not have a body
// yet, so a refused injection is retried.
const (
	rearmAttempts = 5
	rearmBackoff  = 300 * time.Millisecond
)

// relay owns the notification channel. Event handlers signal it without
// blocking; only run writes to or closes out.
type relay struct {
	inject func(context.Context) error
	logger *slog.Logger

	attempts int
	backoff  time.Duration

	changes chan struct{}
	resets  chan struct{}
	out     chan struct{}
}

func newRelay(inject func(context.Context) error, logger *slog.Logger) *relay {
	return &relay{
		inject:   inject,
		logger:   logger,
		attempts: rearmAttempts,
		backoff:  rearmBackoff,
		changes:  make(chan struct{}, 1),
		resets:   make(chan struct{}, 1),
		out:      make(chan struct{}, 1),
	}
}

func (r *relay) changed() { signal(r.changes) }

func (r *relay) reset() { signal(r.resets) }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// run forwards change signals until ctx is done. It closes out only when the
// observer could not be re-installed.
func (r *relay) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.changes:
			signal(r.out)
		case <-r.resets:
			if !r.rearm(ctx) {
				if ctx.Err() == nil {
					close(r.out)
				}
				return
			}
			// The page content was replaced; have the caller look again.
			signal(r.out)
		}
	}
}

func (r *relay) rearm(ctx context.Context) bool {
	var err error
	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.backoff):
			}
		}
		if err = r.inject(ctx); err == nil {
			r.logger.Info("pagedoc: observer re-injected after document reset")
			return true
		}
	}
	r.logger.Warn("pagedoc: observer lost after document reset", "error", err)
	return false
}
