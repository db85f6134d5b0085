package txscope

import (
	"github.com/google/uuid"
)

// callbackEntry is a deferred after-commit callback bound to the outermost
// root frame that was open when it was registered.
type callbackEntry struct {
	run        func() error
	boundScope uuid.UUID
}

// callbackQueue is the per-connection FIFO of after-commit callbacks. It is
// expected to be empty unless the connection currently has (or very recently
// had) an open outermost scope.
type callbackQueue struct {
	entries []callbackEntry
}

func (q *callbackQueue) register(scopeID uuid.UUID, cb func() error) {
	q.entries = append(q.entries, callbackEntry{run: cb, boundScope: scopeID})
}

func (q *callbackQueue) len() int {
	return len(q.entries)
}

// takeFor removes and returns the callbacks bound to scopeID in registration
// order. Entries bound to other scopes are kept.
func (q *callbackQueue) takeFor(scopeID uuid.UUID) []func() error {
	var taken []func() error
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.boundScope == scopeID {
			taken = append(taken, e.run)
		} else {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	return taken
}

// takeAll removes and returns every queued callback in registration order.
func (q *callbackQueue) takeAll() []func() error {
	taken := make([]func() error, 0, len(q.entries))
	for _, e := range q.entries {
		taken = append(taken, e.run)
	}
	q.entries = nil
	return taken
}

// discardFor drops the callbacks bound to scopeID without running them,
// returning how many were dropped. Used on rollback.
func (q *callbackQueue) discardFor(scopeID uuid.UUID) int {
	dropped := 0
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.boundScope == scopeID {
			dropped++
		} else {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	return dropped
}

// discardAll empties the queue. Used when the harness transaction rolls back.
func (q *callbackQueue) discardAll() int {
	dropped := len(q.entries)
	q.entries = nil
	return dropped
}
