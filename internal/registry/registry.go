// Package registry implements the shared, mutex-protected alarm store.
//
// The registry is the single owner of every alarm record. The scheduler and
// the message workers only ever observe records through registry methods,
// each of which copies the record out under the lock — no caller can hold a
// reference into registry storage across a suspension point, which removes
// the use-after-free and stale-cursor hazards of the original design.
//
// Internally the registry keeps two views of the same records:
//   - a Min-Heap ordered by (due_at, id) — O(1) peek of the next alarm to
//     expire, O(log N) insert and re-sift after a change
//   - an id → record map — O(1) lookup for workers and the gateway
//
// All methods are safe for concurrent use. The lock is held only for the
// duration of each operation; the registry never sleeps or blocks while
// holding it, so gateway inserts are never starved by scheduler timing.
package registry

import (
	"container/heap"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alarmd-project/alarmd/internal/types"
)

// ErrNotFound is returned by Change when no live alarm carries the id.
var ErrNotFound = errors.New("registry: alarm not found")

// DefaultIdleWait is how long the scheduler should wait before re-checking
// an empty registry. One time unit, as in the original program, so a freshly
// inserted alarm is never more than a second away from being observed even
// without an explicit wake-up.
const DefaultIdleWait = time.Second

// Registry is the authoritative mapping of alarm id → alarm record.
type Registry struct {
	mu   sync.Mutex
	h    minHeap
	byID map[int64]*entry

	// gen numbers inserts. Each new record gets the next value, so two
	// records that ever wore the same id still carry distinct generations.
	gen uint64
}

// New returns an empty Registry.
func New() *Registry {
	h := make(minHeap, 0, 16)
	heap.Init(&h)
	return &Registry{
		h:    h,
		byID: make(map[int64]*entry),
	}
}

// Start inserts a new alarm or, when id is already live, changes the
// existing record in place exactly as Change would. It returns a copy of the
// resulting record and whether a new record was created.
//
// A created record starts Pending with revision 0 and
// due_at = nowMs + seconds.
func (r *Registry) Start(id int64, seconds int, message string, nowMs int64) (types.Alarm, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byID[id]; ok {
		r.changeLocked(e, seconds, message, nowMs)
		return *e.alarm, false
	}

	r.gen++
	e := &entry{alarm: &types.Alarm{
		ID:         id,
		Seconds:    seconds,
		Message:    message,
		DueAt:      nowMs + int64(seconds)*1000,
		Revision:   0,
		Generation: r.gen,
		State:      types.StatePending,
		CreatedAt:  nowMs,
		ChangedAt:  nowMs,
	}}
	heap.Push(&r.h, e)
	r.byID[id] = e
	return *e.alarm, true
}

// Change mutates the live alarm with the given id: new message, new
// duration, recomputed due_at, revision incremented. It returns a copy of
// the updated record, or ErrNotFound when the id is not live — the registry
// is left untouched in that case.
func (r *Registry) Change(id int64, seconds int, message string, nowMs int64) (types.Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return types.Alarm{}, ErrNotFound
	}
	r.changeLocked(e, seconds, message, nowMs)
	return *e.alarm, nil
}

// changeLocked applies a content change and re-sifts the heap entry.
// MUST be called with r.mu held.
func (r *Registry) changeLocked(e *entry, seconds int, message string, nowMs int64) {
	e.alarm.Seconds = seconds
	e.alarm.Message = message
	e.alarm.DueAt = nowMs + int64(seconds)*1000
	e.alarm.Revision++
	e.alarm.ChangedAt = nowMs
	heap.Fix(&r.h, e.heapIdx)
}

// Lookup returns a copy of the live alarm with the given id.
// The second return is false when the id is not live — for a worker this is
// the termination signal.
func (r *Registry) Lookup(id int64) (types.Alarm, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return types.Alarm{}, false
	}
	return *e.alarm, true
}

// TakeNextDue removes and returns the soonest-due alarm, but only when its
// due_at has arrived. The returned copy carries StateExpired; the record
// itself is gone from the registry the moment this method returns, and is
// never handed out again.
func (r *Registry) TakeNextDue(nowMs int64) (types.Alarm, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.h) == 0 || r.h[0].alarm.DueAt > nowMs {
		return types.Alarm{}, false
	}

	e := heap.Pop(&r.h).(*entry)
	delete(r.byID, e.alarm.ID)
	e.alarm.State = types.StateExpired
	return *e.alarm, true
}

// PeekNextDue returns the due_at of the soonest-due alarm without removing
// it. ok is false when the registry is empty.
func (r *Registry) PeekNextDue() (dueAtMs int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.h) == 0 {
		return 0, false
	}
	return r.h[0].alarm.DueAt, true
}

// NextWait sizes the scheduler's sleep: zero when the head alarm is already
// due, the remaining time when it is in the future, and DefaultIdleWait when
// the registry is empty.
func (r *Registry) NextWait(nowMs int64) time.Duration {
	dueAt, ok := r.PeekNextDue()
	if !ok {
		return DefaultIdleWait
	}
	if dueAt <= nowMs {
		return 0
	}
	return time.Duration(dueAt-nowMs) * time.Millisecond
}

// ActivatePending transitions every Pending alarm to Active and returns
// copies of the transitioned records, ordered by id ascending so worker
// creation is deterministic. The scheduler calls this once per loop
// iteration to learn which alarms need a worker.
func (r *Registry) ActivatePending() []types.Alarm {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.Alarm
	for _, e := range r.byID {
		if e.alarm.State == types.StatePending {
			e.alarm.State = types.StateActive
			out = append(out, *e.alarm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live (Pending or Active) alarms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Snapshot returns copies of every live alarm, ordered by id ascending —
// the registry's stable iteration order.
func (r *Registry) Snapshot() []types.Alarm {
	r.mu.Lock()
	out := make([]types.Alarm, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e.alarm)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
