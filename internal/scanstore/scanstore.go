// Package scanstore is the process-wide registry of scan sessions: for
// each client-chosen scan-id, the original scan parameters plus either a
// candidate list (exact-mode) or a set of snapshot blocks (unknown-mode
// until materialized).
package scanstore

import (
	"strings"
	"sync"

	"github.com/dorastack/memscan/internal/chunked"
	"github.com/dorastack/memscan/internal/scantypes"
	"github.com/dorastack/memscan/internal/snapshot"
)

// Candidate pairs a believed-interesting address with the bytes last
// observed there, hex-encoded to stay human-readable in API responses.
type Candidate struct {
	Address   uint64
	PriorHex  string
}

// Params is the request that created or last reset a session.
type Params struct {
	Pattern  string
	Ranges   []chunked.Range
	FindType scantypes.FindType
	DataType scantypes.DataType
	Align    uint64
}

// Session is all state associated with one scan-id. Candidates and Blocks
// are mutually exclusive: an exact-mode session only ever populates
// Candidates; an unknown-mode session populates Blocks until the survivor
// count drops below the materialization threshold, at which point the
// filter engine replaces Blocks with Candidates and sets Materialized.
//
// mu guards Candidates and Blocks. It is held briefly by scan workers
// appending batches, and for the duration of an entire filter pass by the
// filter engine, matching the concurrency model's "writer lock held for
// the duration of the pass" rule.
type Session struct {
	mu sync.RWMutex

	Params       Params
	Candidates   []Candidate
	Blocks       []*snapshot.Block
	Materialized bool
}

// Lock/Unlock/RLock/RUnlock expose the session's own lock directly: the
// filter engine needs to hold it for an entire multi-block pass, not just
// around individual field accesses.
func (s *Session) Lock()    { s.mu.Lock() }
func (s *Session) Unlock()  { s.mu.Unlock() }
func (s *Session) RLock()   { s.mu.RLock() }
func (s *Session) RUnlock() { s.mu.RUnlock() }

// InSnapshotMode reports whether the session is still in the snapshot
// branch: unknown find-type and not yet materialized into candidates.
// Callers must hold at least a read lock.
func (s *Session) InSnapshotMode() bool {
	return s.Params.FindType == scantypes.FindUnknown && !s.Materialized
}

// AppendCandidates adds a batch to the candidate list under the writer
// lock, the per-thread flush path scan workers use to bound memory.
func (s *Session) AppendCandidates(batch []Candidate) {
	if len(batch) == 0 {
		return
	}
	s.mu.Lock()
	s.Candidates = append(s.Candidates, batch...)
	s.mu.Unlock()
}

// AppendBlock adds one snapshot block under the writer lock.
func (s *Session) AppendBlock(b *snapshot.Block) {
	s.mu.Lock()
	s.Blocks = append(s.Blocks, b)
	s.mu.Unlock()
}

// Store is the keyed registry of sessions, guarded by its own
// reader-writer lock, held briefly for lookups and replacements.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New returns an empty store.
func New() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// NormalizeID trims whitespace and replaces internal spaces with
// underscores, so a scan-id is always safe to use as a filesystem path
// component for spill files.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	return strings.ReplaceAll(id, " ", "_")
}

// Reset creates a fresh session for id, discarding any prior state — the
// behavior a new scan call under an existing id always has.
func (st *Store) Reset(id string, params Params) *Session {
	sess := &Session{Params: params}
	st.mu.Lock()
	st.sessions[NormalizeID(id)] = sess
	st.mu.Unlock()
	return sess
}

// Get looks up a session by id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[NormalizeID(id)]
	return sess, ok
}

// Delete removes a session, e.g. on explicit client release.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, NormalizeID(id))
	st.mu.Unlock()
}
