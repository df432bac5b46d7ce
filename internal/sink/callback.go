package sink

import (
	"context"

	"github.com/hazyhaar/capwatch/caption"
)

// ResultFunc is called for each result.
type ResultFunc func(ctx context.Context, res caption.Result) error

// AudioFunc is called for each audio payload.
type AudioFunc func(ctx context.Context, audio caption.Audio) error

// Callback delivers results via Go function calls, for embedding capwatch
// in a host process.
type Callback struct {
	onResult ResultFunc
	onAudio  AudioFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onResult ResultFunc, onAudio AudioFunc) *Callback {
	return &Callback{onResult: onResult, onAudio: onAudio}
}

func (c *Callback) SendResult(ctx context.Context, res caption.Result) error {
	if c.onResult != nil {
		return c.onResult(ctx, res)
	}
	return nil
}

func (c *Callback) SendAudio(ctx context.Context, audio caption.Audio) error {
	if c.onAudio != nil {
		return c.onAudio(ctx, audio)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
