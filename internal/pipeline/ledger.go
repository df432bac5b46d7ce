// Package pipeline turns successive caption observations into utterances
// and dispatches each one at most once.
//
// A Session owns one goroutine that serialises everything: polling,
// change notifications, classification, the word buffer timer and the
// throttle retry timer. Only dispatch runs elsewhere.
package pipeline

// Ledger records texts that must never be dispatched (again) during a
// session. It is owned by the session goroutine and not safe for concurrent
// use.
type Ledger struct {
	dispatched map[string]struct{}
	skipped    map[string]struct{}
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		dispatched: make(map[string]struct{}),
		skipped:    make(map[string]struct{}),
	}
}

// Skip marks text as permanently skipped.
func (l *Ledger) Skip(text string) { l.skipped[text] = struct{}{} }

// IsSkipped reports whether text was skipped.
func (l *Ledger) IsSkipped(text string) bool {
	_, ok := l.skipped[text]
	return ok
}

// MarkDispatched records text as sent.
func (l *Ledger) MarkDispatched(text string) { l.dispatched[text] = struct{}{} }

// IsDispatched reports whether text was sent.
func (l *Ledger) IsDispatched(text string) bool {
	_, ok := l.dispatched[text]
	return ok
}

// Counts returns the sizes of the dispatched and skipped sets.
func (l *Ledger) Counts() (dispatched, skipped int) {
	return len(l.dispatched), len(l.skipped)
}

// Reset clears both sets.
func (l *Ledger) Reset() {
	clear(l.dispatched)
	clear(l.skipped)
}
