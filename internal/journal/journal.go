// Package journal persists the notification stream to disk as an audit log.
//
// Every event the hub publishes — inserts, changes, renders, expiries, worker
// lifecycle — is appended under a ULID key, so the on-disk order matches the
// order operators saw on the console. The journal records what happened; it is
// not a store of live alarm state, and nothing is replayed from it on start.
//
// bbolt is the backing store because it is:
//   - Pure Go (no CGO, no external process)
//   - ACID — the log is always consistent even after a crash
//   - Single file (journal.db inside the data directory)
//   - Well-maintained (used by etcd in production)
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/alarmd-project/alarmd/internal/event"
	"github.com/alarmd-project/alarmd/internal/node"
)

var bucketEvents = []byte("events") // bucket name inside bbolt

// Journal is a bbolt-backed append-only log of notification events.
type Journal struct {
	db  *bbolt.DB
	log *slog.Logger
}

// Open opens (or creates) the journal at dataDir/journal.db.
func Open(dataDir string, log *slog.Logger) (*Journal, error) {
	path := filepath.Join(dataDir, "journal.db")
	opts := &bbolt.Options{Timeout: 0} // non-blocking open
	db, err := bbolt.Open(path, 0o640, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: init bucket: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, log: log}, nil
}

// Append writes one event under a fresh ULID key. ULIDs are time-ordered, so
// bbolt's key order is the emission order.
func (j *Journal) Append(e event.Event) error {
	key, err := node.NewID()
	if err != nil {
		return fmt.Errorf("journal: key: %w", err)
	}
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal event: %w", err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).Put([]byte(key), val)
	})
}

// Emit makes Journal an event.Sink. Sinks must not fail the publisher, so a
// write error is logged and swallowed.
func (j *Journal) Emit(e event.Event) {
	if err := j.Append(e); err != nil {
		j.log.Error("journal append failed", "type", string(e.Type), "alarm_id", e.AlarmID, "error", err)
	}
}

// Recent returns up to n events, newest first. n <= 0 returns nil.
func (j *Journal) Recent(n int) ([]event.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []event.Event
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var e event.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("journal: unmarshal %q: %w", k, err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of journaled events.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEvents).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying bbolt database.
func (j *Journal) Close() error {
	return j.db.Close()
}
