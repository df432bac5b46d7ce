package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/internal/locator"
)

// liveDoc is a mutable single-element document.
type liveDoc struct {
	mu   sync.Mutex
	id   caption.NodeID
	text string
}

func (d *liveDoc) set(id, text string) {
	d.mu.Lock()
	d.id, d.text = caption.NodeID(id), text
	d.mu.Unlock()
}

func (d *liveDoc) QueryAll(context.Context, string) ([]locator.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.text == "" {
		return nil, nil
	}
	return []locator.Element{staticElement{id: d.id, text: d.text}}, nil
}

type staticElement struct {
	id   caption.NodeID
	text string
}

func (e staticElement) Identity() caption.NodeID { return e.id }

func (e staticElement) Text(context.Context) (string, error) { return e.text, nil }

// notifyingDoc adds a change channel to liveDoc.
type notifyingDoc struct {
	liveDoc
	changes  chan struct{}
	fail     bool
	unsubbed chan struct{}
}

func (d *notifyingDoc) Subscribe(context.Context) (<-chan struct{}, func(), error) {
	if d.fail {
		return nil, nil, errors.New("no binding")
	}
	return d.changes, func() { close(d.unsubbed) }, nil
}

type sent struct {
	mu    sync.Mutex
	texts []string
	ch    chan string
}

func newSent() *sent { return &sent{ch: make(chan string, 16)} }

func (s *sent) dispatch(_ context.Context, text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	s.ch <- text
}

func (s *sent) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *sent) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-s.ch:
		if got != want {
			t.Fatalf("dispatched %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no dispatch, want %q", want)
	}
}

func (s *sent) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case got := <-s.ch:
		t.Fatalf("unexpected dispatch %q", got)
	case <-time.After(d):
	}
}

func testSession(doc locator.Document, out *sent) *Session {
	return NewSession(Config{
		ID:           "ses_test",
		PageID:       "meet",
		Document:     doc,
		Locator:      locator.New(locator.WithStrategies([]locator.Strategy{{Name: "any", Selector: "*"}})),
		Dispatch:     out.dispatch,
		PollInterval: 10 * time.Millisecond,
		BufferDelay:  40 * time.Millisecond,
		MinInterval:  60 * time.Millisecond,
	})
}

func waitPasses(t *testing.T, s *Session, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Stats().Passes < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d passes, want %d", s.Stats().Passes, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_BaselineThenContinuation(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "Hello")
	out := newSent()
	s := testSession(doc, out)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	waitPasses(t, s, 1)
	out.expectNone(t, 100*time.Millisecond)

	doc.set("a", "Hello there")
	out.expect(t, "there")
	out.expectNone(t, 150*time.Millisecond)

	if st := s.Stats(); st.Dispatched != 1 || !st.PollOnly || st.State != "active" {
		t.Errorf("Stats: %+v", st)
	}
}

func TestSession_NewTurnDispatchesWholeText(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "Hello wor")
	out := newSent()
	s := testSession(doc, out)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, 1)

	doc.set("b", "Hello world now")
	out.expect(t, "Hello world now")
}

func TestSession_BurstCoalescesIntoOneDispatch(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "We")
	out := newSent()
	s := testSession(doc, out)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, 1)

	doc.set("a", "We should")
	time.Sleep(15 * time.Millisecond)
	doc.set("a", "We should ship")
	time.Sleep(15 * time.Millisecond)
	doc.set("a", "We should ship today")

	out.expect(t, "should ship today")
	out.expectNone(t, 150*time.Millisecond)
}

func TestSession_RepeatedTextNotRedispatched(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "intro")
	out := newSent()
	s := testSession(doc, out)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, 1)

	doc.set("b", "same words")
	out.expect(t, "same words")
	doc.set("c", "other words")
	out.expect(t, "other words")
	doc.set("d", "same words")
	out.expectNone(t, 200*time.Millisecond)

	// The baseline text stays suppressed even on a new element.
	doc.set("e", "intro")
	out.expectNone(t, 150*time.Millisecond)
}

func TestSession_Skip(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "start")
	out := newSent()
	s := testSession(doc, out)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, 1)

	s.Skip("You are presenting")
	time.Sleep(20 * time.Millisecond)
	doc.set("b", "You are presenting")
	out.expectNone(t, 150*time.Millisecond)
}

func TestSession_NotificationsTriggerPass(t *testing.T) {
	doc := &notifyingDoc{changes: make(chan struct{}, 1), unsubbed: make(chan struct{})}
	doc.set("a", "Hello")
	out := newSent()
	s := NewSession(Config{
		ID:             "ses_notify",
		Document:       doc,
		Locator:        locator.New(locator.WithStrategies([]locator.Strategy{{Name: "any", Selector: "*"}})),
		Dispatch:       out.dispatch,
		PollInterval:   time.Hour,
		NotifyDebounce: 20 * time.Millisecond,
		BufferDelay:    30 * time.Millisecond,
		MinInterval:    30 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitPasses(t, s, 1)
	if s.Stats().PollOnly {
		t.Error("PollOnly with a working notifier")
	}

	doc.set("a", "Hello again")
	doc.changes <- struct{}{}
	out.expect(t, "again")

	s.Stop()
	select {
	case <-doc.unsubbed:
	case <-time.After(time.Second):
		t.Fatal("Stop did not unsubscribe")
	}
}

func TestSession_NotifierFailureFallsBackToPolling(t *testing.T) {
	doc := &notifyingDoc{fail: true}
	doc.set("a", "Hello")
	out := newSent()
	s := testSession(doc, out)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, 1)
	if !s.Stats().PollOnly {
		t.Error("expected poll-only after subscribe failure")
	}
	doc.set("a", "Hello there")
	out.expect(t, "there")
}

func TestSession_ClosedNotifierFallsBackToPolling(t *testing.T) {
	doc := &notifyingDoc{changes: make(chan struct{}), unsubbed: make(chan struct{})}
	doc.set("a", "Hello")
	out := newSent()
	s := testSession(doc, out)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, 1)
	if s.Stats().PollOnly {
		t.Fatal("PollOnly before the notifier closed")
	}

	// The page lost its observer.
	close(doc.changes)
	deadline := time.Now().Add(2 * time.Second)
	for !s.Stats().PollOnly {
		if time.Now().After(deadline) {
			t.Fatal("PollOnly not reported after the notifier closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	doc.set("a", "Hello there")
	out.expect(t, "there")
}

func TestSession_StartIdempotentStopIdempotent(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "Hello")
	out := newSent()
	s := testSession(doc, out)

	s.Stop() // idle: no-op
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	waitPasses(t, s, 1)

	doc.set("a", "Hello world")
	time.Sleep(15 * time.Millisecond)
	s.Stop()
	s.Stop()
	if s.State() != StateIdle {
		t.Errorf("State after Stop: %s", s.State())
	}
	// The buffered fragment was cancelled with the session.
	out.expectNone(t, 120*time.Millisecond)

	// A restarted session re-establishes its baseline.
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	out.expectNone(t, 100*time.Millisecond)
	doc.set("b", "Brand new turn")
	out.expect(t, "Brand new turn")
}

func TestSession_ParentCancelReturnsToIdle(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "Hello")
	out := newSent()
	s := testSession(doc, out)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitPasses(t, s, 1)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("State after parent cancel: %s", s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	before := s.Stats().Passes
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, before+2)
	if s.State() != StateActive {
		t.Errorf("State after restart: %s", s.State())
	}
	doc.set("a", "Hello there")
	out.expect(t, "there")
}

func TestSession_NoDocument(t *testing.T) {
	s := NewSession(Config{ID: "x"})
	if err := s.Start(context.Background()); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Start: got %v, want ErrNoDocument", err)
	}
}

func TestSession_ThrottledFlushesStillDelivered(t *testing.T) {
	doc := &liveDoc{}
	doc.set("a", "zero")
	out := newSent()
	s := NewSession(Config{
		ID:           "ses_throttle",
		Document:     doc,
		Locator:      locator.New(locator.WithStrategies([]locator.Strategy{{Name: "any", Selector: "*"}})),
		Dispatch:     out.dispatch,
		PollInterval: 5 * time.Millisecond,
		BufferDelay:  15 * time.Millisecond,
		MinInterval:  200 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	waitPasses(t, s, 1)

	doc.set("b", "first line")
	out.expect(t, "first line")
	doc.set("c", "second line")
	out.expect(t, "second line")

	if got := out.all(); len(got) != 2 {
		t.Errorf("dispatched %v", got)
	}
	if s.Stats().Deferred == 0 {
		t.Error("expected the second line to be deferred by the throttle")
	}
}
