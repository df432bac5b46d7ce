package capwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/internal/sink"
)

// Sink is the output interface for translated captions.
type Sink = sink.Sink

// Overlay is the websocket hub sink; mount it as an http.Handler.
type Overlay = sink.Overlay

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer, withAudio bool) Sink {
	return sink.NewStdout(w, withAudio)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, withAudio bool, logger *slog.Logger) Sink {
	opts := []sink.WebhookOption{sink.WithWebhookLogger(logger)}
	if withAudio {
		opts = append(opts, sink.WithWebhookAudio())
	}
	return sink.NewWebhook(url, opts...)
}

// NewOverlaySink creates a websocket overlay hub.
func NewOverlaySink(withAudio bool, logger *slog.Logger) *Overlay {
	opts := []sink.OverlayOption{sink.WithOverlayLogger(logger)}
	if withAudio {
		opts = append(opts, sink.WithOverlayAudio())
	}
	return sink.NewOverlay(opts...)
}

// NewPlayerSink creates a sink piping audio to command.
func NewPlayerSink(command string, logger *slog.Logger) (Sink, error) {
	return sink.NewPlayer(command, logger)
}

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(
	onResult func(ctx context.Context, res caption.Result) error,
	onAudio func(ctx context.Context, audio caption.Audio) error,
) Sink {
	return sink.NewCallback(onResult, onAudio)
}

// BuildSinks creates the sinks named in cfg. The overlay hub, if any, is
// returned separately so it can be mounted on the HTTP server.
func BuildSinks(cfg *Config, w io.Writer, logger *slog.Logger) ([]Sink, *Overlay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Sink
	var overlay *Overlay
	for i, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(w, sc.Audio))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, sc.Audio, logger))
		case "overlay":
			if overlay != nil {
				return nil, nil, fmt.Errorf("capwatch: sinks[%d]: only one overlay allowed", i)
			}
			overlay = NewOverlaySink(sc.Audio, logger)
			sinks = append(sinks, overlay)
		case "player":
			p, err := NewPlayerSink(sc.Command, logger)
			if err != nil {
				return nil, nil, fmt.Errorf("capwatch: sinks[%d]: %w", i, err)
			}
			sinks = append(sinks, p)
		default:
			return nil, nil, fmt.Errorf("capwatch: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}
	return sinks, overlay, nil
}
