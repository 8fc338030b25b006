package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alarmd-project/alarmd/internal/core"
	"github.com/alarmd-project/alarmd/internal/event"
	"github.com/alarmd-project/alarmd/internal/journal"
	"github.com/alarmd-project/alarmd/internal/types"
)

// journalDefaultLimit and journalMaxLimit bound the ?limit= parameter of
// GET /journal.
const (
	journalDefaultLimit = 100
	journalMaxLimit     = 1000
)

// Handler groups all HTTP request handlers around the Core.
//
// Every route is read-only: the console gateway is the single surface that
// inserts or changes alarms, so the API can never race it for writes.
type Handler struct {
	core    *core.Core
	journal *journal.Journal // may be nil when the journal is disabled
	nodeID  string
	started time.Time
}

// ─── DTOs ─────────────────────────────────────────────────────────────────────

type healthResp struct {
	Status      string `json:"status"`
	NodeID      string `json:"node_id"`
	UptimeSec   int64  `json:"uptime_sec"`
	LiveAlarms  int    `json:"live_alarms"`
	LiveWorkers int    `json:"live_workers"`
}

type alarmsResp struct {
	Alarms []types.Alarm `json:"alarms"`
	Count  int           `json:"count"`
}

type journalResp struct {
	Events []event.Event `json:"events"`
	Count  int           `json:"count"`
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResp{
		Status:      "ok",
		NodeID:      h.nodeID,
		UptimeSec:   int64(time.Since(h.started).Seconds()),
		LiveAlarms:  len(h.core.Alarms()),
		LiveWorkers: h.core.LiveWorkers(),
	})
}

// listAlarms returns every live alarm, ordered by id.
func (h *Handler) listAlarms(w http.ResponseWriter, _ *http.Request) {
	alarms := h.core.Alarms()
	writeJSON(w, http.StatusOK, alarmsResp{Alarms: alarms, Count: len(alarms)})
}

func (h *Handler) getAlarm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "alarm id must be an integer"})
		return
	}
	a, ok := h.core.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alarm not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// recentJournal returns the newest journaled events, newest first.
// ?limit=N caps the page size (default 100, max 1000).
func (h *Handler) recentJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}

	limit := journalDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, journalMaxLimit)
	}

	events, err := h.journal.Recent(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, journalResp{Events: events, Count: len(events)})
}

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
