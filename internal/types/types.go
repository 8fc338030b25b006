// Package types contains the core domain types shared across all alarmd
// internal packages. It deliberately has zero imports of other alarmd packages
// so that the registry, scheduler, and event layers can all import from it
// without creating import cycles.
package types

// State is the lifecycle state of an alarm inside the registry.
type State uint8

const (
	// StatePending means the alarm has been inserted but no worker has been
	// attached to it yet.
	StatePending State = iota
	// StateActive means a message worker is periodically rendering the alarm.
	StateActive
	// StateExpired means the scheduler removed the alarm because its due time
	// passed. An expired record no longer exists in the registry; the state is
	// only ever observed on the copy handed to the caller of TakeNextDue.
	StateExpired
)

// MarshalJSON renders the state as its lowercase name so API consumers see
// "pending"/"active"/"expired" rather than raw numbers.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// MaxMessageLen is the longest alarm message the system accepts, in bytes.
// Inherited from the original fixed 128-byte message buffer (127 chars + NUL).
const MaxMessageLen = 127

// Alarm is one timed alarm request.
//
// Design rules:
//   - The registry exclusively owns the stored record. Every Alarm that
//     crosses a package boundary is a value copy taken under the registry
//     lock; no component may retain a pointer into registry storage.
//   - All timestamps are UTC milliseconds since Unix epoch.
//   - Revision increments on every content change so workers can detect
//     "changed since last rendered" without a dedicated signal.
type Alarm struct {
	// ID is the caller-supplied alarm identifier. Unique among live alarms.
	ID int64 `json:"id"`

	// Seconds is the requested duration in whole seconds.
	Seconds int `json:"seconds"`

	// Message is the text the worker renders each cycle.
	Message string `json:"message"`

	// DueAt is the UTC millisecond at which the alarm expires.
	// Recomputed as now + Seconds on every change.
	DueAt int64 `json:"due_at"`

	// Revision counts content changes. 0 on insert, +1 per change.
	Revision uint64 `json:"revision"`

	// Generation distinguishes incarnations of a reused id. The registry
	// assigns a fresh value on every insert and never on a change, so a
	// worker can tell "my alarm, changed" from "a new alarm wearing the
	// same id". Internal bookkeeping, not part of the API surface.
	Generation uint64 `json:"-"`

	// State is the lifecycle state at the time the copy was taken.
	State State `json:"state"`

	// CreatedAt is the UTC millisecond of the original insert.
	CreatedAt int64 `json:"created_at"`

	// ChangedAt is the UTC millisecond of the most recent change.
	// Equal to CreatedAt until the first change.
	ChangedAt int64 `json:"changed_at"`
}

// IsDue reports whether the alarm's due time has arrived.
func (a *Alarm) IsDue(nowMs int64) bool {
	return a.DueAt <= nowMs
}
