package pipeline

import (
	"strings"
	"time"
)

// DefaultBufferDelay is the word buffer debounce window.
const DefaultBufferDelay = 2 * time.Second

// WordBuffer accumulates caption fragments and coalesces bursts: every
// Append restarts the delay, and the owner flushes once C fires. It is not
// safe for concurrent use; the session goroutine owns it.
type WordBuffer struct {
	delay     time.Duration
	fragments []string
	timer     *time.Timer
	timerCh   <-chan time.Time
}

// NewWordBuffer creates an empty buffer. delay <= 0 uses DefaultBufferDelay.
func NewWordBuffer(delay time.Duration) *WordBuffer {
	if delay <= 0 {
		delay = DefaultBufferDelay
	}
	return &WordBuffer{delay: delay}
}

// Append adds a fragment and (re)starts the debounce timer. Blank fragments
// are ignored and do not touch the timer.
func (b *WordBuffer) Append(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	b.fragments = append(b.fragments, fragment)

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.NewTimer(b.delay)
	b.timerCh = b.timer.C
}

// C fires when the debounce window expires. It is nil while the buffer is
// idle, which blocks forever in a select.
func (b *WordBuffer) C() <-chan time.Time {
	return b.timerCh
}

// Flush returns the buffered fragments joined by single spaces and empties
// the buffer. An empty buffer yields "".
func (b *WordBuffer) Flush() string {
	text := strings.Join(b.fragments, " ")
	b.Reset()
	return text
}

// Pending returns the current content without flushing.
func (b *WordBuffer) Pending() string {
	return strings.Join(b.fragments, " ")
}

// Len returns the number of buffered fragments.
func (b *WordBuffer) Len() int {
	return len(b.fragments)
}

// Reset drops the content and cancels the timer.
func (b *WordBuffer) Reset() {
	b.fragments = b.fragments[:0]
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
		b.timerCh = nil
	}
}
