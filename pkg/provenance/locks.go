package provenance

import "sync"

// lockTable is an arena of per-token mutexes created on demand. It
// serializes index-side effects for a single token; operations on
// different tokens never contend. Locks live for the process lifetime,
// which is bounded by the token space actually touched.
type lockTable struct {
	mu    sync.Mutex
	locks map[TokenID]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[TokenID]*sync.Mutex)}
}

// lock acquires the token's mutex and returns its unlock function.
func (t *lockTable) lock(id TokenID) func() {
	t.mu.Lock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}
