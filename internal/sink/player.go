package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/hazyhaar/capwatch/caption"
)

// Player pipes each audio payload to an external command on stdin (for
// example "ffplay -nodisp -autoexit -"). Playback is serialised so
// utterances never overlap.
type Player struct {
	name   string
	args   []string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewPlayer parses command (whitespace separated, no shell) into a Player.
func NewPlayer(command string, logger *slog.Logger) (*Player, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("player: empty command")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{name: fields[0], args: fields[1:], logger: logger}, nil
}

// SendResult is a no-op; the player only handles audio.
func (p *Player) SendResult(context.Context, caption.Result) error { return nil }

func (p *Player) SendAudio(ctx context.Context, audio caption.Audio) error {
	if len(audio.Data) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.CommandContext(ctx, p.name, p.args...)
	cmd.Stdin = bytes.NewReader(audio.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("player: %s: %w (%s)", p.name, err, msg)
	}
	p.logger.Debug("player: played", "result_id", audio.ResultID, "bytes", len(audio.Data))
	return nil
}

func (p *Player) Close() error { return nil }
