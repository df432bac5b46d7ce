package pipeline

import "github.com/hazyhaar/capwatch/caption"

// Action is the outcome of classifying one observation.
type Action int

const (
	ActionIgnoreBaseline Action = iota
	ActionIgnoreDuplicate
	ActionIgnoreSkipped
	ActionContinuation
	ActionNewTurn
)

func (a Action) String() string {
	switch a {
	case ActionIgnoreBaseline:
		return "ignore-baseline"
	case ActionIgnoreDuplicate:
		return "ignore-duplicate"
	case ActionIgnoreSkipped:
		return "ignore-skipped"
	case ActionContinuation:
		return "continuation"
	case ActionNewTurn:
		return "new-turn"
	default:
		return "unknown"
	}
}

// Flags is the session state the classifier reads and, for the baseline,
// writes.
type Flags struct {
	BaselineEstablished bool
	Ledger              *Ledger
}

// Classify decides what to do with current given the previous observation.
// Element identity, not text, tells a continuing speaker from a new one: the
// page re-renders the same node with appended text while someone keeps
// talking and creates a new node for a new speaker or caption line.
//
// The first call of a session establishes the baseline; the caller keeps
// current as the new previous observation in every case.
func Classify(last *caption.Observation, current caption.Observation, flags *Flags) Action {
	if !flags.BaselineEstablished {
		flags.BaselineEstablished = true
		return ActionIgnoreBaseline
	}
	if flags.Ledger != nil && flags.Ledger.IsSkipped(current.Text) {
		return ActionIgnoreSkipped
	}
	if last == nil {
		return ActionNewTurn
	}
	if current.Text == last.Text {
		return ActionIgnoreDuplicate
	}
	if current.Identity == last.Identity && len(current.Text) > len(last.Text) {
		return ActionContinuation
	}
	return ActionNewTurn
}
