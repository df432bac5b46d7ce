package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/capwatch/caption"
)

// Router fans out to all configured sinks. One sink error does not block
// the others: errors are logged and the first encountered is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a sink. Not safe for use once delivery has started.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) SendResult(ctx context.Context, res caption.Result) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendResult(ctx, res); err != nil {
			r.logger.Warn("sink: send result failed", "result_id", res.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendAudio(ctx context.Context, audio caption.Audio) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendAudio(ctx, audio); err != nil {
			r.logger.Warn("sink: send audio failed", "result_id", audio.ResultID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
