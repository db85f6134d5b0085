package txscope

import (
	"context"
	"fmt"
	"sort"

	"github.com/avelinek/txscope/pkg/driver"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultConnection is the connection name used by Manager.Default.
const DefaultConnection = "default"

// Manager tracks the transaction scope stack and after-commit callback queue
// of each named connection. It performs no internal locking: a Manager and
// its connections belong to a single logical execution context (one
// goroutine, one request), and each connection's state is fully independent
// of every other connection's.
type Manager struct {
	conns    map[string]*connState
	settings SettingsFunc
	notifier Notifier
	logger   *zap.Logger
}

// connState is everything the Manager knows about one named connection.
type connState struct {
	name  string
	conn  driver.Conn
	stack scopeStack
	queue callbackQueue
	// harness is non-nil while the test harness's own never-committing
	// transaction wraps the connection.
	harness *harnessState
}

type harnessState struct {
	scopeID uuid.UUID
}

// NewManager builds a Manager over the given named connections. settings is
// re-resolved at the start of every operation; pass nil for the strict
// defaults. notifier may be nil.
func NewManager(
	conns map[string]driver.Conn,
	settings SettingsFunc,
	notifier Notifier,
	logger *zap.Logger,
) *Manager {
	if settings == nil {
		settings = DefaultSettings
	}
	states := make(map[string]*connState, len(conns))
	for name, conn := range conns {
		states[name] = &connState{name: name, conn: conn}
	}
	return &Manager{
		conns:    states,
		settings: settings,
		notifier: notifier,
		logger:   logger,
	}
}

// On returns the scope operations for the named connection. An unknown name
// is reported by the first operation called on the returned Scope.
func (m *Manager) On(name string) *Scope {
	cs, ok := m.conns[name]
	if !ok {
		return &Scope{m: m, err: &UnknownConnectionError{Database: name}}
	}
	return &Scope{m: m, cs: cs}
}

// Default returns the scope operations for the default connection.
func (m *Manager) Default() *Scope {
	return m.On(DefaultConnection)
}

// RunAfterCommit registers cb on the named connection. See Scope.RunAfterCommit.
func (m *Manager) RunAfterCommit(name string, cb func() error) error {
	return m.On(name).RunAfterCommit(cb)
}

// InTransaction reports whether the named connection has an open scope. The
// test harness's wrapping transaction is not counted.
func (m *Manager) InTransaction(name string) bool {
	cs, ok := m.conns[name]
	if !ok {
		return false
	}
	return m.hasOpenTransaction(cs)
}

// ConnsWithOpenTransactions returns the sorted names of every connection with
// an open transaction, ignoring the test harness's wrapping transactions.
func (m *Manager) ConnsWithOpenTransactions() []string {
	var open []string
	for name, cs := range m.conns {
		if m.hasOpenTransaction(cs) {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

func (m *Manager) hasOpenTransaction(cs *connState) bool {
	if cs.stack.isOpen() {
		return true
	}
	// A transaction opened behind the Manager's back still counts, unless it
	// is the harness transaction.
	return cs.harness == nil && cs.conn.IsTransactionOpen()
}

// Durable runs fn outside of any transaction. It fails with a
// TransactionAlreadyOpenError if any connection has an open transaction.
// Whether fn returns normally, fails or panics, every transaction it left
// open manually is rolled back afterwards; a DanglingTransactionError reports
// them unless fn's own error takes precedence.
func (m *Manager) Durable(ctx context.Context, fn func(context.Context) error) error {
	if open := m.ConnsWithOpenTransactions(); len(open) > 0 {
		return &TransactionAlreadyOpenError{Database: open[0]}
	}

	var fnErr error
	func() {
		defer func() {
			if p := recover(); p != nil {
				m.sweepDangling(ctx)
				panic(p)
			}
		}()
		fnErr = fn(ctx)
	}()

	dangling := m.sweepDangling(ctx)
	if fnErr != nil {
		return fnErr
	}
	if len(dangling) > 0 {
		return &DanglingTransactionError{Databases: dangling}
	}
	return nil
}

// sweepDangling rolls back transactions left open outside of any scope and
// returns the sorted names of the affected connections.
func (m *Manager) sweepDangling(ctx context.Context) []string {
	var dangling []string
	for name, cs := range m.conns {
		if cs.stack.isOpen() || cs.harness != nil || !cs.conn.IsTransactionOpen() {
			continue
		}
		m.logger.Warn("rolling back dangling transaction left open by durable block",
			zap.String("database", name),
		)
		if err := cs.conn.Rollback(ctx); err != nil {
			m.logger.Error("failed to roll back dangling transaction",
				zap.String("database", name),
				zap.Error(err),
			)
		}
		m.notify(Event{Type: EventRollback, Database: name})
		dangling = append(dangling, name)
	}
	sort.Strings(dangling)
	return dangling
}

func (m *Manager) notify(event Event) {
	if m.notifier != nil {
		m.notifier.Notify(event)
	}
}

// Scope exposes the transaction scope operations of one named connection.
type Scope struct {
	m   *Manager
	cs  *connState
	err error
}

// Transaction opens a new outermost transaction, runs fn inside it and
// commits on success. If fn returns an error or panics, the transaction is
// rolled back and the callbacks it registered are discarded. Opening a
// Transaction while one is already open is always an error, never a
// savepoint.
func (s *Scope) Transaction(ctx context.Context, fn func(context.Context) error) error {
	if s.err != nil {
		return s.err
	}
	set := s.m.settings()
	if s.cs.stack.isOpen() {
		return &TransactionAlreadyOpenError{Database: s.cs.name}
	}
	if s.cs.harness == nil && s.cs.conn.IsTransactionOpen() {
		// A transaction opened behind the Manager's back blocks us just the
		// same as one of our own.
		return &TransactionAlreadyOpenError{Database: s.cs.name}
	}
	if err := s.guardLeftovers(set); err != nil {
		return err
	}
	return s.runRoot(ctx, set, fn, true)
}

// TransactionRequired asserts that a transaction is already open and runs fn
// inside it without opening any new scope. No SQL is issued on either exit
// path.
func (s *Scope) TransactionRequired(ctx context.Context, fn func(context.Context) error) error {
	if s.err != nil {
		return s.err
	}
	if !s.cs.stack.isOpen() {
		return &MissingRequiredTransactionError{Database: s.cs.name}
	}
	return fn(ctx)
}

// TransactionIfNotAlready behaves exactly like TransactionRequired when a
// transaction is open and exactly like Transaction when none is. It is a
// deliberate escape hatch for code that genuinely runs in both positions;
// prefer the single-purpose operations.
func (s *Scope) TransactionIfNotAlready(ctx context.Context, fn func(context.Context) error) error {
	if s.err != nil {
		return s.err
	}
	if s.cs.stack.isOpen() {
		return fn(ctx)
	}
	return s.Transaction(ctx, fn)
}

// Savepoint opens an SQL savepoint inside the currently open transaction and
// runs fn. On success the savepoint is released; if fn returns an error or
// panics, work is rolled back to the savepoint and the enclosing transaction
// stays open. Savepoints never touch the after-commit callback queue.
func (s *Scope) Savepoint(ctx context.Context, fn func(context.Context) error) error {
	if s.err != nil {
		return s.err
	}
	cs := s.cs
	if !cs.stack.isOpen() {
		return &MissingRequiredTransactionError{Database: cs.name}
	}

	fr := scopeFrame{kind: kindSavepoint, id: uuid.New(), savepoint: newSavepointName()}
	if err := cs.conn.CreateSavepoint(ctx, fr.savepoint); err != nil {
		return fmt.Errorf("failed to create savepoint on connection %q: %w", cs.name, err)
	}
	cs.stack.push(fr)
	s.m.notify(Event{Type: EventSavepoint, Database: cs.name, Depth: cs.stack.depth(), Savepoint: fr.savepoint})

	defer func() {
		if p := recover(); p != nil {
			s.rollbackSavepoint(ctx, fr)
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		s.rollbackSavepoint(ctx, fr)
		return err
	}

	cs.stack.pop()
	if err := cs.conn.ReleaseSavepoint(ctx, fr.savepoint); err != nil {
		return fmt.Errorf("failed to release savepoint on connection %q: %w", cs.name, err)
	}
	s.m.notify(Event{Type: EventSavepointRelease, Database: cs.name, Depth: cs.stack.depth(), Savepoint: fr.savepoint})
	return nil
}

func (s *Scope) rollbackSavepoint(ctx context.Context, fr scopeFrame) {
	cs := s.cs
	cs.stack.pop()
	if err := cs.conn.RollbackToSavepoint(ctx, fr.savepoint); err != nil {
		s.m.logger.Error("failed to roll back to savepoint",
			zap.String("database", cs.name),
			zap.String("savepoint", fr.savepoint),
			zap.Error(err),
		)
	}
	s.m.notify(Event{Type: EventSavepointRollback, Database: cs.name, Depth: cs.stack.depth(), Savepoint: fr.savepoint})
}

// RunAfterCommit registers cb to run immediately after the currently open
// outermost transaction commits. The callback is bound to the transaction,
// never to an inner savepoint: a savepoint may roll back while the
// transaction still commits. Callbacks run in registration order; a failing
// callback never suppresses its siblings.
//
// With no open transaction the behaviour follows
// Settings.AfterCommitNeedsTransaction: an error by default, immediate
// execution in legacy mode.
func (s *Scope) RunAfterCommit(cb func() error) error {
	if s.err != nil {
		return s.err
	}
	set := s.m.settings()
	cs := s.cs
	if root, ok := cs.stack.root(); ok {
		cs.queue.register(root.id, cb)
		return nil
	}
	if set.AfterCommitNeedsTransaction {
		return &NoTransactionOpenError{Database: cs.name}
	}
	if cs.harness != nil && !set.RunCallbacksInTests {
		// Legacy mode under the harness without simulation: the callback
		// belongs to the harness transaction, which never commits. Park it
		// there so the leftover guard can surface it.
		cs.queue.register(cs.harness.scopeID, cb)
		return nil
	}
	// Legacy mode outside any transaction: autocommit means the work is
	// already committed, so run the callback right away.
	return cb()
}

// guardLeftovers reacts to callbacks left behind by a previous scope that
// never drained, before a new outermost scope opens.
func (s *Scope) guardLeftovers(set Settings) error {
	cs := s.cs
	if cs.queue.len() == 0 {
		return nil
	}
	if set.CatchUnhandledCallbacks {
		return &UnhandledCallbacksError{Database: cs.name, Count: cs.queue.len()}
	}
	s.m.logger.Warn("draining unhandled after-commit callbacks from a previous scope",
		zap.String("database", cs.name),
		zap.Int("count", cs.queue.len()),
	)
	return s.drain(cs.queue.takeAll())
}

// runRoot opens a root frame, runs fn and settles the frame on every exit
// path. When the harness transaction wraps the connection the root is
// simulated with a savepoint, since the real BEGIN already happened. drain
// controls whether a successful exit runs the frame's after-commit callbacks.
func (s *Scope) runRoot(ctx context.Context, set Settings, fn func(context.Context) error, drain bool) error {
	cs := s.cs
	fr := scopeFrame{kind: kindRoot, id: uuid.New(), simulated: cs.harness != nil}
	if fr.simulated {
		fr.savepoint = newSavepointName()
		if err := cs.conn.CreateSavepoint(ctx, fr.savepoint); err != nil {
			return fmt.Errorf("failed to open simulated transaction on connection %q: %w", cs.name, err)
		}
	} else {
		if err := cs.conn.BeginTransaction(ctx); err != nil {
			return fmt.Errorf("failed to begin transaction on connection %q: %w", cs.name, err)
		}
	}
	cs.stack.push(fr)
	s.m.notify(Event{Type: EventBegin, Database: cs.name, Depth: cs.stack.depth()})
	if !cs.conn.IsTransactionOpen() {
		s.m.logger.Warn("driver reports no open transaction after begin",
			zap.String("database", cs.name),
		)
	}

	var fnErr error
	func() {
		defer func() {
			if p := recover(); p != nil {
				s.abortRoot(ctx, fr)
				panic(p)
			}
		}()
		fnErr = fn(ctx)
	}()
	if fnErr != nil {
		s.abortRoot(ctx, fr)
		return fnErr
	}
	return s.finishRoot(ctx, set, fr, drain)
}

// finishRoot commits (or releases, for a simulated root) and drains the
// frame's callbacks at the same logical point the database driver would run
// them in production: immediately after the commit.
func (s *Scope) finishRoot(ctx context.Context, set Settings, fr scopeFrame, drain bool) error {
	cs := s.cs
	cs.stack.pop()
	if fr.simulated {
		if err := cs.conn.ReleaseSavepoint(ctx, fr.savepoint); err != nil {
			cs.queue.discardFor(fr.id)
			return fmt.Errorf("failed to close simulated transaction on connection %q: %w", cs.name, err)
		}
	} else {
		if err := cs.conn.Commit(ctx); err != nil {
			cs.queue.discardFor(fr.id)
			return fmt.Errorf("failed to commit transaction on connection %q: %w", cs.name, err)
		}
	}
	s.m.notify(Event{Type: EventCommit, Database: cs.name, Depth: cs.stack.depth()})

	if !drain {
		return nil
	}
	if fr.simulated && !set.RunCallbacksInTests {
		// Simulation is off: the callbacks stay queued, exactly as they
		// would stay attached to the harness transaction that never commits.
		return nil
	}
	cbs := cs.queue.takeFor(fr.id)
	if len(cbs) == 0 {
		return nil
	}
	s.m.notify(Event{Type: EventCallbackDrain, Database: cs.name, Callbacks: len(cbs)})
	return s.drain(cbs)
}

func (s *Scope) abortRoot(ctx context.Context, fr scopeFrame) {
	cs := s.cs
	cs.stack.pop()
	if n := cs.queue.discardFor(fr.id); n > 0 {
		s.m.logger.Debug("discarding after-commit callbacks of rolled back transaction",
			zap.String("database", cs.name),
			zap.Int("count", n),
		)
	}
	var err error
	if fr.simulated {
		err = cs.conn.RollbackToSavepoint(ctx, fr.savepoint)
	} else {
		err = cs.conn.Rollback(ctx)
	}
	if err != nil {
		s.m.logger.Error("failed to roll back transaction",
			zap.String("database", cs.name),
			zap.Error(err),
		)
	}
	s.m.notify(Event{Type: EventRollback, Database: cs.name, Depth: cs.stack.depth()})
}

// drain runs callbacks in order, attempting every one of them and combining
// their failures.
func (s *Scope) drain(cbs []func() error) error {
	var errs error
	for _, cb := range cbs {
		errs = multierr.Append(errs, cb())
	}
	return errs
}
