// Package sink defines rendering backends for translated captions.
package sink

import (
	"context"

	"github.com/hazyhaar/capwatch/caption"
)

// Sink is the output interface. Implementations render results and play
// or forward audio (stdout, webhook, websocket overlay, audio player,
// in-process callback).
type Sink interface {
	SendResult(ctx context.Context, res caption.Result) error
	SendAudio(ctx context.Context, audio caption.Audio) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	typeResult = "result"
	typeAudio  = "audio"
)
