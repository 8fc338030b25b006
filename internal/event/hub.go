package event

import "sync"

// subscriberBuffer is the channel capacity given to each streaming
// subscriber. A subscriber that falls this far behind starts losing events
// rather than blocking the core.
const subscriberBuffer = 64

// Hub fans events out to registered sinks and streaming subscribers.
//
// Sinks run synchronously on the publishing goroutine, so console output
// keeps the order in which the core emitted it. Subscribers receive events
// over buffered channels; a full channel drops the event (streaming is a
// best-effort observation surface, never backpressure on the scheduler).
//
// All methods are safe for concurrent use.
type Hub struct {
	mu    sync.RWMutex
	sinks []Sink
	subs  map[int64]chan Event
	next  int64
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int64]chan Event)}
}

// AddSink registers a synchronous sink. Sinks cannot be removed; they live
// for the process lifetime, matching the single init-at-start lifecycle of
// the registry itself.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()
}

// Subscribe returns a channel of events and a cancel function. The channel
// is closed by cancel; it is never closed by the Hub itself.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every sink and subscriber.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.sinks {
		s.Emit(e)
	}
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is not keeping up — drop.
		}
	}
}

// Emit makes the Hub itself usable as a Sink, so components that only need
// to publish can depend on the narrow Sink interface.
func (h *Hub) Emit(e Event) { h.Publish(e) }

// SubscriberCount returns the number of attached streaming subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
