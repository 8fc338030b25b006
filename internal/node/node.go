// Package node provides the two kinds of identity alarmd needs: the stable
// id of the instance itself, and fresh time-ordered keys for journal
// entries. Both are ULIDs so journal keys and instance ids sort the same
// way everywhere they appear.
package node

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idFile is the name of the identity file inside the data directory.
const idFile = "node_id"

// Identity returns the instance id, creating the data directory and the
// identity file on first start. The id tags journal entries and the health
// endpoint so output from several instances sharing a host stays
// attributable.
//
// An override other than "" or "auto" is used as-is after validation; this
// bypasses the identity file entirely, which is what container setups with
// externally assigned ids want.
func Identity(dataDir, override string) (string, error) {
	if dataDir == "" {
		return "", errors.New("node: dataDir must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return "", fmt.Errorf("node: create data dir: %w", err)
	}

	if override != "" && override != "auto" {
		if _, err := ulid.ParseStrict(override); err != nil {
			return "", fmt.Errorf("node: invalid id override %q: %w", override, err)
		}
		return override, nil
	}

	path := filepath.Join(dataDir, idFile)
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, err := ulid.ParseStrict(id); err != nil {
			return "", fmt.Errorf("node: persisted id %q is invalid: %w", id, err)
		}
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("node: read id file: %w", err)
	}

	id, err := NewID()
	if err != nil {
		return "", fmt.Errorf("node: generate id: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o640); err != nil {
		return "", fmt.Errorf("node: persist id: %w", err)
	}
	return id, nil
}

// All NewID calls share one monotone entropy source so ULIDs generated
// within the same millisecond still sort in generation order. The journal
// relies on this for key ordering.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a fresh time-ordered ULID string. The journal uses these as
// entry keys.
func NewID() (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), monoEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNewID is like NewID but panics on error. Use only in tests or init code.
func MustNewID() string {
	id, err := NewID()
	if err != nil {
		panic(fmt.Sprintf("node.MustNewID: %v", err))
	}
	return id
}
