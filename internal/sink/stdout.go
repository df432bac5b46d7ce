package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/capwatch/caption"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
	// audio is written only when set; raw audio in a terminal is noise.
	audio bool
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer, withAudio bool) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w), audio: withAudio}
}

func (s *Stdout) SendResult(_ context.Context, res caption.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: typeResult, Data: res})
}

func (s *Stdout) SendAudio(_ context.Context, audio caption.Audio) error {
	if !s.audio {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: typeAudio, Data: audio})
}

func (s *Stdout) Close() error { return nil }
