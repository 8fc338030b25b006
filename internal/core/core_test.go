package core_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alarmd-project/alarmd/internal/config"
	"github.com/alarmd-project/alarmd/internal/core"
	"github.com/alarmd-project/alarmd/internal/event"
)

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

func (c *collected) count(typ event.Type) int {
	n := 0
	for _, e := range c.snapshot() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Alarm.RenderIntervalMs = 25
	return cfg
}

func startCore(t *testing.T) (*core.Core, *collected) {
	t.Helper()
	c := core.New(testConfig(), "main")
	sink := &collected{}
	c.Hub().AddSink(sink)
	c.Start(context.Background())
	t.Cleanup(func() { c.Close() })
	return c, sink
}

func TestStartAlarm_InsertsAndAnnounces(t *testing.T) {
	c, sink := startCore(t)

	a, created, err := c.StartAlarm(100, 60, "backup finished")
	if err != nil {
		t.Fatalf("StartAlarm: %v", err)
	}
	if !created {
		t.Error("StartAlarm on fresh id: want created=true")
	}
	if a.ID != 100 || a.Seconds != 60 || a.Message != "backup finished" {
		t.Errorf("unexpected record: %+v", a)
	}

	if !waitFor(t, time.Second, func() bool { return sink.count(event.TypeInserted) == 1 }) {
		t.Fatal("no inserted announcement")
	}
	for _, e := range sink.snapshot() {
		if e.Type == event.TypeInserted && e.Actor != "main" {
			t.Errorf("actor: want main, got %q", e.Actor)
		}
	}

	if got := c.Alarms(); len(got) != 1 || got[0].ID != 100 {
		t.Errorf("Alarms(): %+v", got)
	}
}

func TestStartAlarm_LiveIDAnnouncedAsChange(t *testing.T) {
	c, sink := startCore(t)

	c.StartAlarm(7, 60, "first")
	_, created, err := c.StartAlarm(7, 30, "second")
	if err != nil {
		t.Fatalf("StartAlarm: %v", err)
	}
	if created {
		t.Error("StartAlarm on live id: want created=false")
	}

	if !waitFor(t, time.Second, func() bool { return sink.count(event.TypeChanged) == 1 }) {
		t.Fatal("re-start of a live id must announce a change")
	}
	if len(c.Alarms()) != 1 {
		t.Errorf("duplicate record after re-start: %+v", c.Alarms())
	}
}

func TestChangeAlarm_UnknownID(t *testing.T) {
	c, sink := startCore(t)

	_, err := c.ChangeAlarm(999, 10, "nope")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("ChangeAlarm unknown id: want ErrNotFound, got %v", err)
	}
	if n := sink.count(event.TypeChanged); n != 0 {
		t.Errorf("failed change must not announce, got %d events", n)
	}
}

func TestValidation(t *testing.T) {
	c, _ := startCore(t)

	if _, _, err := c.StartAlarm(1, 0, "m"); !errors.Is(err, core.ErrInvalidSeconds) {
		t.Errorf("zero seconds: want ErrInvalidSeconds, got %v", err)
	}
	if _, _, err := c.StartAlarm(1, -5, "m"); !errors.Is(err, core.ErrInvalidSeconds) {
		t.Errorf("negative seconds: want ErrInvalidSeconds, got %v", err)
	}
	if _, _, err := c.StartAlarm(1, 5, ""); !errors.Is(err, core.ErrInvalidMessage) {
		t.Errorf("empty message: want ErrInvalidMessage, got %v", err)
	}
	long := strings.Repeat("x", 128)
	if _, _, err := c.StartAlarm(1, 5, long); !errors.Is(err, core.ErrInvalidMessage) {
		t.Errorf("128-char message: want ErrInvalidMessage, got %v", err)
	}
	// 127 chars is the maximum accepted length.
	if _, _, err := c.StartAlarm(1, 5, long[:127]); err != nil {
		t.Errorf("127-char message rejected: %v", err)
	}

	if _, err := c.ChangeAlarm(1, 0, "m"); !errors.Is(err, core.ErrInvalidSeconds) {
		t.Errorf("change with zero seconds: want ErrInvalidSeconds, got %v", err)
	}
}

func TestEndToEnd_StartRenderExpire(t *testing.T) {
	c, sink := startCore(t)

	if _, _, err := c.StartAlarm(42, 1, "tea is ready"); err != nil {
		t.Fatalf("StartAlarm: %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return sink.count(event.TypeWorkerCreated) == 1 }) {
		t.Fatal("no worker created")
	}
	if !waitFor(t, time.Second, func() bool { return sink.count(event.TypeRender) >= 1 }) {
		t.Fatal("no render")
	}
	if !waitFor(t, 3*time.Second, func() bool { return sink.count(event.TypeExpired) == 1 }) {
		t.Fatal("no expiry")
	}
	if !waitFor(t, time.Second, func() bool { return sink.count(event.TypeWorkerStopped) == 1 }) {
		t.Fatal("no worker stop notice")
	}
	if len(c.Alarms()) != 0 {
		t.Errorf("alarm still live after expiry: %+v", c.Alarms())
	}
}

func TestClose_StopsWorkers(t *testing.T) {
	c := core.New(testConfig(), "main")
	sink := &collected{}
	c.Hub().AddSink(sink)
	c.Start(context.Background())

	c.StartAlarm(1, 600, "long running")
	if !waitFor(t, time.Second, func() bool { return sink.count(event.TypeWorkerCreated) == 1 }) {
		t.Fatal("no worker created")
	}

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while a worker was live")
	}

	// Shutdown is not expiry: no termination notice.
	if n := sink.count(event.TypeWorkerStopped); n != 0 {
		t.Errorf("shutdown emitted %d stop notices", n)
	}
}
