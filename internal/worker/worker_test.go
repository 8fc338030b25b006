package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alarmd-project/alarmd/internal/event"
	"github.com/alarmd-project/alarmd/internal/types"
	"github.com/alarmd-project/alarmd/internal/worker"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// fakeStore is a concurrency-safe in-memory stand-in for the registry.
type fakeStore struct {
	mu     sync.Mutex
	alarms map[int64]types.Alarm
}

func newFakeStore() *fakeStore {
	return &fakeStore{alarms: make(map[int64]types.Alarm)}
}

func (s *fakeStore) Lookup(id int64) (types.Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	return a, ok
}

func (s *fakeStore) put(a types.Alarm) {
	s.mu.Lock()
	s.alarms[a.ID] = a
	s.mu.Unlock()
}

func (s *fakeStore) remove(id int64) {
	s.mu.Lock()
	delete(s.alarms, id)
	s.mu.Unlock()
}

// collected gathers emitted events in a concurrency-safe way.
type collected struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *collected) Emit(e event.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collected) snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

// waitFor polls until cond is true or the deadline elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func countType(events []event.Event, typ event.Type) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestWorker_RendersCurrentMessage(t *testing.T) {
	store := newFakeStore()
	a := types.Alarm{ID: 1, Message: "hello", Revision: 0}
	store.put(a)
	c := &collected{}

	w := worker.New(1, a, store, c, worker.WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if !waitFor(t, time.Second, func() bool {
		return countType(c.snapshot(), event.TypeRender) >= 2
	}) {
		t.Fatal("expected at least 2 renders within 1s")
	}
	for _, e := range c.snapshot() {
		if e.Type == event.TypeRender && e.Message != "hello" {
			t.Errorf("rendered message: want %q, got %q", "hello", e.Message)
		}
	}
}

// TestWorker_AnnotatesChangedMessage verifies that the first render after a
// revision bump carries the changed annotation, and later renders of the
// same revision do not.
func TestWorker_AnnotatesChangedMessage(t *testing.T) {
	store := newFakeStore()
	a := types.Alarm{ID: 2, Message: "old", Revision: 0}
	store.put(a)
	c := &collected{}

	w := worker.New(1, a, store, c, worker.WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Let the first (unannotated) render land, then change the alarm.
	if !waitFor(t, time.Second, func() bool {
		return countType(c.snapshot(), event.TypeRender) >= 1
	}) {
		t.Fatal("no initial render")
	}
	store.put(types.Alarm{ID: 2, Message: "new", Revision: 1})

	if !waitFor(t, time.Second, func() bool {
		return countType(c.snapshot(), event.TypeRenderChanged) >= 1
	}) {
		t.Fatal("no annotated render after change")
	}

	events := c.snapshot()
	sawChanged := false
	for _, e := range events {
		switch e.Type {
		case event.TypeRenderChanged:
			if e.Message != "new" {
				t.Errorf("annotated render message: want %q, got %q", "new", e.Message)
			}
			if sawChanged {
				t.Error("changed annotation repeated for the same revision")
			}
			sawChanged = true
		case event.TypeRender:
			if sawChanged && e.Message != "new" {
				t.Errorf("render after change: want %q, got %q", "new", e.Message)
			}
		}
	}
}

// TestWorker_TerminatesOnRemoval verifies that registry absence is the
// worker's termination signal: it emits a stop notice and never renders
// again.
func TestWorker_TerminatesOnRemoval(t *testing.T) {
	store := newFakeStore()
	a := types.Alarm{ID: 3, Message: "m", Revision: 0}
	store.put(a)
	c := &collected{}

	w := worker.New(4, a, store, c, worker.WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if !waitFor(t, time.Second, func() bool {
		return countType(c.snapshot(), event.TypeRender) >= 1
	}) {
		t.Fatal("no initial render")
	}

	store.remove(3)

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit within 1s of removal")
	}

	events := c.snapshot()
	if n := countType(events, event.TypeWorkerStopped); n != 1 {
		t.Fatalf("worker stop notices: want 1, got %d", n)
	}
	last := events[len(events)-1]
	if last.Type != event.TypeWorkerStopped {
		t.Errorf("last event: want worker.stopped, got %s", last.Type)
	}
	if last.WorkerID != 4 || last.AlarmID != 3 {
		t.Errorf("stop notice ids: got worker=%d alarm=%d", last.WorkerID, last.AlarmID)
	}
}

// TestWorker_NoRenderAfterRemoval races removal against the render loop and
// asserts no render event carries a message for a removed alarm. Run with
// -race.
func TestWorker_NoRenderAfterRemoval(t *testing.T) {
	for i := 0; i < 20; i++ {
		store := newFakeStore()
		a := types.Alarm{ID: 9, Message: "m", Revision: 0}
		store.put(a)
		c := &collected{}

		w := worker.New(1, a, store, c, worker.WithInterval(time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)

		time.Sleep(time.Duration(i%5) * time.Millisecond)
		store.remove(9)

		<-w.Done()
		cancel()

		events := c.snapshot()
		for j, e := range events {
			if e.Type == event.TypeWorkerStopped && j != len(events)-1 {
				t.Fatalf("render emitted after termination notice: %+v", events[j+1])
			}
		}
	}
}

// TestWorker_StopsWhenIDReused covers expiry followed by a re-issued alarm
// under the same id before the worker's next tick. The lookup then succeeds
// against a different incarnation; the worker must treat that as removal and
// stop, leaving the new record to its own worker.
func TestWorker_StopsWhenIDReused(t *testing.T) {
	store := newFakeStore()
	old := types.Alarm{ID: 7, Generation: 1, Message: "old"}
	store.put(old)
	c := &collected{}

	w := worker.New(2, old, store, c, worker.WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if !waitFor(t, time.Second, func() bool {
		return countType(c.snapshot(), event.TypeRender) >= 1
	}) {
		t.Fatal("no initial render")
	}

	// Expiry removed the old record; a new alarm wearing the same id arrives
	// before the worker's next tick.
	store.put(types.Alarm{ID: 7, Generation: 2, Message: "new incarnation"})

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker kept running against the new incarnation")
	}

	events := c.snapshot()
	if n := countType(events, event.TypeWorkerStopped); n != 1 {
		t.Fatalf("worker stop notices: want 1, got %d", n)
	}
	for _, e := range events {
		if e.Type == event.TypeRender && e.Message == "new incarnation" {
			t.Error("old worker rendered the new incarnation's message")
		}
	}
}

func TestWorker_ContextCancelExitsWithoutNotice(t *testing.T) {
	store := newFakeStore()
	a := types.Alarm{ID: 5, Message: "m", Revision: 0}
	store.put(a)
	c := &collected{}

	w := worker.New(1, a, store, c, worker.WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	if !waitFor(t, time.Second, func() bool {
		return countType(c.snapshot(), event.TypeRender) >= 1
	}) {
		t.Fatal("no initial render")
	}
	cancel()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit on context cancel")
	}
	if n := countType(c.snapshot(), event.TypeWorkerStopped); n != 0 {
		t.Errorf("shutdown must not emit a termination notice, got %d", n)
	}
}
