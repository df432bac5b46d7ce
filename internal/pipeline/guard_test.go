package pipeline

import (
	"testing"
	"time"
)

type recorder struct {
	texts []string
	at    []time.Time
}

func (r *recorder) fn(text string) {
	r.texts = append(r.texts, text)
	r.at = append(r.at, time.Now())
}

// drain releases queued texts until none remain or timeout.
func drain(t *testing.T, g *Guard, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for g.Pending() > 0 {
		select {
		case <-g.C():
			g.Release()
		case <-deadline:
			t.Fatalf("queue not drained, %d pending", g.Pending())
		}
	}
}

func TestGuard_DedupAndSkip(t *testing.T) {
	ledger := NewLedger()
	ledger.Skip("baseline")
	g := NewGuard(ledger, 10*time.Millisecond, nil)
	var rec recorder

	if o := g.TryDispatch("baseline", rec.fn); o != OutcomeDroppedSkipped {
		t.Errorf("skipped text: got %s", o)
	}
	if o := g.TryDispatch("hello", rec.fn); o != OutcomeDispatched {
		t.Fatalf("first send: got %s", o)
	}
	time.Sleep(20 * time.Millisecond)
	if o := g.TryDispatch("hello", rec.fn); o != OutcomeDroppedDuplicate {
		t.Errorf("second send: got %s", o)
	}
	if o := g.TryDispatch("", rec.fn); o != OutcomeDroppedEmpty {
		t.Errorf("empty: got %s", o)
	}
	if len(rec.texts) != 1 {
		t.Errorf("dispatch count: got %d, want 1", len(rec.texts))
	}
	if !ledger.IsDispatched("hello") {
		t.Error("text not recorded in ledger")
	}
}

func TestGuard_ThrottleReschedulesNotDrops(t *testing.T) {
	const interval = 150 * time.Millisecond
	g := NewGuard(NewLedger(), interval, nil)
	var rec recorder

	start := time.Now()
	if o := g.TryDispatch("first", rec.fn); o != OutcomeDispatched {
		t.Fatalf("first: got %s", o)
	}
	time.Sleep(30 * time.Millisecond)
	if o := g.TryDispatch("second", rec.fn); o != OutcomeDeferred {
		t.Fatalf("second: got %s, want deferred", o)
	}
	if o := g.TryDispatch("third", rec.fn); o != OutcomeDeferred {
		t.Fatalf("third: got %s, want deferred", o)
	}
	if len(rec.texts) != 1 {
		t.Fatalf("dispatched too early: %v", rec.texts)
	}

	drain(t, g, 2*time.Second)

	want := []string{"first", "second", "third"}
	if len(rec.texts) != len(want) {
		t.Fatalf("dispatched: got %v, want %v", rec.texts, want)
	}
	for i := range want {
		if rec.texts[i] != want[i] {
			t.Errorf("order[%d]: got %q, want %q", i, rec.texts[i], want[i])
		}
	}
	// Allow scheduler slack below the nominal interval.
	if gap := rec.at[1].Sub(start); gap < interval-20*time.Millisecond {
		t.Errorf("second dispatched after %v, want about %v", gap, interval)
	}
}

func TestGuard_QueuedDuplicateDroppedOnRelease(t *testing.T) {
	g := NewGuard(NewLedger(), 50*time.Millisecond, nil)
	var rec recorder

	g.TryDispatch("a", rec.fn)
	g.TryDispatch("b", rec.fn)
	g.TryDispatch("b", rec.fn)
	drain(t, g, 2*time.Second)

	if len(rec.texts) != 2 || rec.texts[1] != "b" {
		t.Errorf("dispatched: got %v, want [a b]", rec.texts)
	}
}

func TestGuard_Reset(t *testing.T) {
	g := NewGuard(NewLedger(), time.Hour, nil)
	var rec recorder
	g.TryDispatch("a", rec.fn)
	g.TryDispatch("b", rec.fn)
	if g.Pending() != 1 || g.C() == nil {
		t.Fatal("expected one queued text")
	}
	g.Reset()
	if g.Pending() != 0 || g.C() != nil || !g.LastDispatch().IsZero() {
		t.Error("Reset left state behind")
	}
	if o := g.TryDispatch("c", rec.fn); o != OutcomeDispatched {
		t.Errorf("after Reset: got %s, want dispatched", o)
	}
}
