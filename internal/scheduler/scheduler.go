// Package scheduler implements the single timing goroutine that drives alarm
// expiry.
//
// The loop owns timing exclusively: it peeks at the registry for the next
// due time, sleeps on a time.Timer, and on wake removes due alarms and
// announces their expiry. A buffered notify channel lets the gateway
// interrupt the sleep whenever an insert or change may have produced an
// earlier head, so a user command is observed within one lock-acquisition
// turnaround plus the remaining sleep — never later.
//
// The scheduler also attaches workers: each loop iteration it activates
// Pending alarms and spawns one message worker per newly active alarm.
// Worker teardown needs no signalling at all — an expired alarm simply
// vanishes from the registry, and its worker exits on the next failed
// lookup.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/alarmd-project/alarmd/internal/event"
	"github.com/alarmd-project/alarmd/internal/registry"
	"github.com/alarmd-project/alarmd/internal/worker"
)

// Scheduler is the single goroutine that times and dispatches alarm expiry.
type Scheduler struct {
	reg  *registry.Registry
	sink event.Sink

	renderInterval time.Duration
	idleWait       time.Duration
	now            func() time.Time

	// notify is a buffered channel of capacity 1. The gateway sends a signal
	// after every insert or change that might move the next due time earlier,
	// prompting the loop to re-evaluate its sleep. Non-blocking send: a
	// pending signal already guarantees a re-evaluation.
	notify chan struct{}

	done     chan struct{}
	loopWG   sync.WaitGroup
	workerWG sync.WaitGroup

	mu           sync.Mutex
	workers      map[int64]*worker.Worker // alarm id → worker
	nextWorkerID int64
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithRenderInterval sets the cadence passed to spawned workers.
func WithRenderInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.renderInterval = d
		}
	}
}

// WithIdleWait sets how long the loop sleeps when the registry is empty.
func WithIdleWait(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.idleWait = d
		}
	}
}

// WithClock overrides the time source (tests use this to pin "now").
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler over reg, emitting events to sink.
// Call Start to begin dispatching.
func New(reg *registry.Registry, sink event.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		reg:            reg,
		sink:           sink,
		renderInterval: worker.DefaultRenderInterval,
		idleWait:       registry.DefaultIdleWait,
		now:            time.Now,
		notify:         make(chan struct{}, 1),
		done:           make(chan struct{}),
		workers:        make(map[int64]*worker.Worker),
		nextWorkerID:   1,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the scheduling goroutine. Must be called exactly once.
// Workers spawned by the loop inherit ctx; cancel it before calling Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.loopWG.Add(1)
	go s.run(ctx)
}

// Stop shuts the loop down and waits for it and all workers to exit.
// The context passed to Start must already be cancelled (or every alarm
// expired), otherwise live workers keep rendering and Stop blocks.
func (s *Scheduler) Stop() {
	select {
	case <-s.done:
		// already stopped
	default:
		close(s.done)
	}
	s.loopWG.Wait()
	s.workerWG.Wait()
}

// Notify wakes the loop to re-evaluate its sleep. Called by the core after
// every registry insert or change.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// LiveWorkers returns the number of workers that have not yet exited.
func (s *Scheduler) LiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.workers {
		select {
		case <-w.Done():
		default:
			n++
		}
	}
	return n
}

// ─── scheduling goroutine ─────────────────────────────────────────────────────

func (s *Scheduler) run(ctx context.Context) {
	defer s.loopWG.Done()

	// timer is lazily allocated when there's something to wait for.
	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	for {
		s.attachWorkers(ctx)
		s.pruneWorkers()

		nowMs := s.now().UnixMilli()
		if a, ok := s.reg.TakeNextDue(nowMs); ok {
			s.sink.Emit(event.Event{
				Type:     event.TypeExpired,
				AlarmID:  a.ID,
				At:       s.now().Unix(),
				Seconds:  a.Seconds,
				Message:  a.Message,
				Revision: a.Revision,
			})
			// Nothing to sleep for; yield so the gateway gets a fair turn at
			// the lock before the next dispatch.
			runtime.Gosched()
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			default:
			}
			continue
		}

		// Sleep until the head alarm is due (or the idle wait when the
		// registry is empty), but stay responsive to inserts and shutdown.
		wait := s.idleWait
		if dueAt, ok := s.reg.PeekNextDue(); ok {
			wait = 0
			if dueAt > nowMs {
				wait = time.Duration(dueAt-nowMs) * time.Millisecond
			}
		}
		if t == nil {
			t = time.NewTimer(wait)
		} else {
			t.Reset(wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.notify:
			// The head may have moved earlier — re-evaluate from the top.
			if !t.Stop() {
				// Drain the timer channel if it fired between Reset and Stop.
				select {
				case <-t.C:
				default:
				}
			}
		case <-t.C:
		}
	}
}

// attachWorkers activates Pending alarms and spawns one worker per newly
// active alarm, announcing each creation.
func (s *Scheduler) attachWorkers(ctx context.Context) {
	for _, a := range s.reg.ActivatePending() {
		s.mu.Lock()
		wid := s.nextWorkerID
		s.nextWorkerID++
		w := worker.New(wid, a, s.reg, s.sink,
			worker.WithInterval(s.renderInterval),
			worker.WithClock(s.now),
		)
		s.workers[a.ID] = w
		s.mu.Unlock()

		s.sink.Emit(event.Event{
			Type:     event.TypeWorkerCreated,
			AlarmID:  a.ID,
			WorkerID: wid,
			At:       s.now().Unix(),
		})

		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			w.Run(ctx)
		}()
	}
}

// pruneWorkers drops handles of workers that have exited. An alarm id whose
// worker is gone can then be re-used by a later Start_Alarm without
// colliding with the dead handle.
func (s *Scheduler) pruneWorkers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.workers {
		select {
		case <-w.Done():
			delete(s.workers, id)
		default:
		}
	}
}
