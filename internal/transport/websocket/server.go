// Package websocket streams the live notification feed to browser and CLI
// observers.
//
// Clients open a WebSocket connection to:
//
//	GET /events
//
// Every event the hub publishes is forwarded as one JSON text frame:
//
//	{"type":"alarm.render","alarm_id":42,"worker_id":1,"at":...,"message":"..."}
//
// The stream is one-way. A subscriber that cannot keep up is dropped rather
// than allowed to stall the alarm pipeline.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	gorillaws "github.com/gorilla/websocket"

	"github.com/alarmd-project/alarmd/internal/event"
)

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin WebSocket upgrade requests.
	// A request is considered same-origin when its Origin header matches the
	// Host header (scheme-agnostic). Requests without an Origin header
	// (e.g. from native clients/curl) are always allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client, allow
		}
		parsed, err := parseHost(origin)
		if err != nil {
			return false
		}
		return parsed == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// parseHost returns the host:port (or just host) portion of a URL string.
func parseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", rawURL)
	}
	return u.Host, nil
}

// Handler serves the event-stream WebSocket endpoint.
type Handler struct {
	Hub *event.Hub
	Log *slog.Logger
}

// ServeHTTP upgrades the connection and forwards hub events until the client
// disconnects or its subscription is cancelled for falling behind.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.Hub.Subscribe()
	defer cancel()

	// Drain inbound frames so close handshakes are processed; the stream
	// itself is one-way.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return // subscription cancelled
			}
			data, err := json.Marshal(e)
			if err != nil {
				log.Warn("ws marshal failed", "err", err)
				continue
			}
			if err := conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
				return
			}
		}
	}
}
