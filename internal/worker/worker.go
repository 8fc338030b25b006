// Package worker implements the per-alarm message worker: a goroutine that
// periodically renders its alarm's current message until the alarm expires.
//
// A worker never keeps a reference to the alarm record. Every cycle it
// re-fetches the current message and revision through the registry; the
// moment the record it was spawned for is gone — the lookup fails, or the id
// now belongs to a different incarnation — the worker emits its termination
// notice and exits. Registry state is the sole cancellation signal, so there
// is no window in which a worker can act on freed or stale data.
package worker

import (
	"context"
	"time"

	"github.com/alarmd-project/alarmd/internal/event"
	"github.com/alarmd-project/alarmd/internal/types"
)

// DefaultRenderInterval is the pause between renders. Five time units, as in
// the original program's display loop.
const DefaultRenderInterval = 5 * time.Second

// Store is the read side of the registry a worker depends on.
type Store interface {
	Lookup(id int64) (types.Alarm, bool)
}

// Worker renders one alarm's message on a fixed cadence.
type Worker struct {
	id       int64 // worker identifier, assigned by the scheduler
	alarmID  int64
	gen      uint64 // incarnation of the record this worker serves
	store    Store
	sink     event.Sink
	interval time.Duration
	now      func() time.Time

	// lastRev is the revision of the message most recently rendered.
	// A higher revision on the next cycle means the alarm was changed and the
	// render carries the "changed" annotation.
	lastRev  uint64
	rendered bool

	done chan struct{}
}

// Option customises a Worker.
type Option func(*Worker)

// WithInterval overrides the render cadence (tests use millisecond values).
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithClock overrides the time source used for notice timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// New creates a worker for the given alarm record. The worker is bound to
// that exact incarnation: a later record under the same id does not keep it
// alive. Call Run (usually in its own goroutine) to start rendering.
func New(workerID int64, alarm types.Alarm, store Store, sink event.Sink, opts ...Option) *Worker {
	w := &Worker{
		id:       workerID,
		alarmID:  alarm.ID,
		gen:      alarm.Generation,
		store:    store,
		sink:     sink,
		interval: DefaultRenderInterval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// ID returns the worker identifier.
func (w *Worker) ID() int64 { return w.id }

// AlarmID returns the id of the alarm this worker serves.
func (w *Worker) AlarmID() int64 { return w.alarmID }

// Done is closed when the worker has exited, for any reason.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Run renders until the alarm disappears from the store or ctx is cancelled.
// The first render happens immediately; each subsequent one after interval.
// Context cancellation is process shutdown — the worker exits without a
// termination notice, since the alarm did not expire.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if !w.renderOnce() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// renderOnce performs one lookup-and-render cycle. It returns false when the
// alarm this worker serves no longer exists and the worker must stop. A live
// record under the same id but a different generation is a new incarnation —
// it has its own worker, and for this one it counts as removal.
func (w *Worker) renderOnce() bool {
	a, ok := w.store.Lookup(w.alarmID)
	if !ok || a.Generation != w.gen {
		w.sink.Emit(event.Event{
			Type:     event.TypeWorkerStopped,
			AlarmID:  w.alarmID,
			WorkerID: w.id,
			At:       w.now().Unix(),
		})
		return false
	}

	typ := event.TypeRender
	if w.rendered && a.Revision != w.lastRev {
		typ = event.TypeRenderChanged
	}
	w.lastRev = a.Revision
	w.rendered = true

	w.sink.Emit(event.Event{
		Type:     typ,
		AlarmID:  a.ID,
		WorkerID: w.id,
		At:       w.now().Unix(),
		Seconds:  a.Seconds,
		Message:  a.Message,
		Revision: a.Revision,
	})
	return true
}
