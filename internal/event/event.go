// Package event defines the notification events the alarm core emits and the
// Hub that fans them out to sinks (console, journal, metrics) and streaming
// subscribers (WebSocket clients).
//
// Every externally visible notification — insertions, changes, worker
// lifecycle, renders, expiries — flows through exactly one Hub.Publish call,
// so adding a new output surface never touches the scheduling core.
package event

// Type identifies what happened.
type Type string

const (
	// TypeInserted — a new alarm was inserted into the registry.
	TypeInserted Type = "alarm.inserted"
	// TypeChanged — an existing alarm's content was changed in place.
	TypeChanged Type = "alarm.changed"
	// TypeWorkerCreated — the scheduler attached a worker to a pending alarm.
	TypeWorkerCreated Type = "worker.created"
	// TypeRender — a worker rendered its alarm's current message.
	TypeRender Type = "alarm.render"
	// TypeRenderChanged — first render after a content change.
	TypeRenderChanged Type = "alarm.render_changed"
	// TypeExpired — the scheduler removed a due alarm from the registry.
	TypeExpired Type = "alarm.expired"
	// TypeWorkerStopped — a worker observed its alarm's removal and exited.
	TypeWorkerStopped Type = "worker.stopped"
)

// Event is one notification emitted by the alarm core.
//
// Not every field is meaningful for every type; AlarmID and At always are.
// At is Unix seconds — the console formats inherited from the original
// program print whole-second timestamps, and the journal records the same
// value the user saw.
type Event struct {
	Type     Type   `json:"type"`
	AlarmID  int64  `json:"alarm_id"`
	WorkerID int64  `json:"worker_id,omitempty"`
	At       int64  `json:"at"` // unix seconds
	Seconds  int    `json:"seconds,omitempty"`
	Message  string `json:"message,omitempty"`
	Revision uint64 `json:"revision,omitempty"`
	Actor    string `json:"actor,omitempty"` // inserting actor (node identity)
}

// Sink receives every published event, synchronously, in publish order
// relative to the publishing goroutine. Emit must not block for long —
// it runs on the scheduler and worker goroutines.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }
