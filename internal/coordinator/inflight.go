package coordinator

import (
	"sync"

	"xrate-oracle/internal/asset"
)

// inflightKey identifies one resolution in progress.
type inflightKey struct {
	pair     string
	tsMinute uint64
}

// inflightTable short-circuits duplicate requests: while a (pair, minute)
// resolution is issuing outcalls, identical requests fail fast with Pending
// and are expected to retry.
type inflightTable struct {
	mu      sync.Mutex
	entries map[inflightKey]struct{}
}

func newInflightTable() *inflightTable {
	return &inflightTable{entries: make(map[inflightKey]struct{})}
}

// acquire registers the pair unless it is already being resolved. The
// returned release function must run on every exit path.
func (t *inflightTable) acquire(pair asset.Pair, tsMinute uint64) (release func(), ok bool) {
	key := inflightKey{pair: pair.Key(), tsMinute: tsMinute}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[key]; exists {
		return nil, false
	}
	t.entries[key] = struct{}{}
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.entries, key)
	}, true
}

// contains reports whether the pair is currently being resolved.
func (t *inflightTable) contains(pair asset.Pair, tsMinute uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.entries[inflightKey{pair: pair.Key(), tsMinute: tsMinute}]
	return exists
}
