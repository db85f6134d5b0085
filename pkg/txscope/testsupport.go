package txscope

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// This file is the integration surface for the txtest harness: the wrapping
// transaction each test runs inside, and the pending-callback guard fired
// before a test body runs. Application code has no reason to call any of it.

// BeginTestTransaction opens the harness's own transaction on the named
// connection and marks the connection as wrapped. While wrapped, Transaction
// scopes are simulated with savepoints and their after-commit callbacks are
// drained by the simulator instead of the database.
func (m *Manager) BeginTestTransaction(ctx context.Context, name string) error {
	cs, ok := m.conns[name]
	if !ok {
		return &UnknownConnectionError{Database: name}
	}
	if cs.harness != nil {
		return fmt.Errorf("connection %q is already wrapped by a test transaction", name)
	}
	if cs.stack.isOpen() || cs.conn.IsTransactionOpen() {
		return &TransactionAlreadyOpenError{Database: name}
	}
	if err := cs.conn.BeginTransaction(ctx); err != nil {
		return fmt.Errorf("failed to begin test transaction on connection %q: %w", name, err)
	}
	cs.harness = &harnessState{scopeID: uuid.New()}
	return nil
}

// EndTestTransaction rolls back the harness transaction, discards every
// queued callback and unmarks the connection. It reports scopes the test left
// open instead of papering over them.
func (m *Manager) EndTestTransaction(ctx context.Context, name string) error {
	cs, ok := m.conns[name]
	if !ok {
		return &UnknownConnectionError{Database: name}
	}
	if cs.harness == nil {
		return fmt.Errorf("connection %q is not wrapped by a test transaction", name)
	}
	cs.harness = nil
	if n := cs.queue.discardAll(); n > 0 {
		m.logger.Debug("discarding after-commit callbacks at end of test transaction",
			zap.String("database", name),
			zap.Int("count", n),
		)
	}
	var unwound error
	if depth := cs.stack.depth(); depth > 0 {
		cs.stack.frames = nil
		unwound = fmt.Errorf("test left %d scope(s) open on connection %q", depth, name)
	}
	if err := cs.conn.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to roll back test transaction on connection %q: %w", name, err)
	}
	return unwound
}

// PendingAfterCommitCallbacks returns how many registered callbacks on the
// named connection have not yet been drained or discarded.
func (m *Manager) PendingAfterCommitCallbacks(name string) int {
	cs, ok := m.conns[name]
	if !ok {
		return 0
	}
	return cs.queue.len()
}

// GuardPendingCallbacks is the hook the harness fires at the start of a test:
// leftover callbacks from an earlier scope either fail the test immediately
// (strict mode) or are drained silently, per Settings.CatchUnhandledCallbacks.
func (m *Manager) GuardPendingCallbacks(name string) error {
	scope := m.On(name)
	if scope.err != nil {
		return scope.err
	}
	return scope.guardLeftovers(m.settings())
}

// PartOfATransaction opens a bare transaction scope around fn so that code
// requiring a transaction (TransactionRequired, Savepoint) can be tested
// directly, without going through whatever code manages the transaction in
// production. Unlike Transaction it performs no after-commit callback
// simulation on exit; use Transaction when the callbacks matter.
func (s *Scope) PartOfATransaction(ctx context.Context, fn func(context.Context) error) error {
	if s.err != nil {
		return s.err
	}
	if s.cs.stack.isOpen() {
		return &TransactionAlreadyOpenError{Database: s.cs.name}
	}
	return s.runRoot(ctx, s.m.settings(), fn, false)
}
