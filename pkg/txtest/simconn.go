package txtest

import (
	"context"
	"fmt"
)

// Operation names accepted by SimConn.FailNext.
const (
	OpBegin               = "begin"
	OpCommit              = "commit"
	OpRollback            = "rollback"
	OpCreateSavepoint     = "create_savepoint"
	OpReleaseSavepoint    = "release_savepoint"
	OpRollbackToSavepoint = "rollback_to_savepoint"
)

// SimConn is an in-memory driver.Conn. It tracks transaction and savepoint
// state with the same rules a real database enforces, records every issued
// statement for assertions on query count and shape, and can inject failures.
// Unlike a lenient real server, a nested BEGIN is an error rather than a
// warning, so state-machine bugs surface in tests.
type SimConn struct {
	statements []string
	txOpen     bool
	savepoints []string
	failures   map[string]error
}

func NewSimConn() *SimConn {
	return &SimConn{failures: make(map[string]error)}
}

// FailNext makes the next call of the named operation return err.
func (c *SimConn) FailNext(op string, err error) {
	c.failures[op] = err
}

func (c *SimConn) takeFailure(op string) error {
	err, ok := c.failures[op]
	if !ok {
		return nil
	}
	delete(c.failures, op)
	return err
}

func (c *SimConn) BeginTransaction(_ context.Context) error {
	if err := c.takeFailure(OpBegin); err != nil {
		return err
	}
	if c.txOpen {
		return fmt.Errorf("simulated connection: BEGIN inside an open transaction")
	}
	c.txOpen = true
	c.statements = append(c.statements, "BEGIN")
	return nil
}

func (c *SimConn) Commit(_ context.Context) error {
	if err := c.takeFailure(OpCommit); err != nil {
		return err
	}
	if !c.txOpen {
		return fmt.Errorf("simulated connection: COMMIT with no open transaction")
	}
	c.txOpen = false
	c.savepoints = nil
	c.statements = append(c.statements, "COMMIT")
	return nil
}

func (c *SimConn) Rollback(_ context.Context) error {
	if err := c.takeFailure(OpRollback); err != nil {
		return err
	}
	if !c.txOpen {
		return fmt.Errorf("simulated connection: ROLLBACK with no open transaction")
	}
	c.txOpen = false
	c.savepoints = nil
	c.statements = append(c.statements, "ROLLBACK")
	return nil
}

func (c *SimConn) CreateSavepoint(_ context.Context, name string) error {
	if err := c.takeFailure(OpCreateSavepoint); err != nil {
		return err
	}
	if !c.txOpen {
		return fmt.Errorf("simulated connection: SAVEPOINT with no open transaction")
	}
	c.savepoints = append(c.savepoints, name)
	c.statements = append(c.statements, "SAVEPOINT "+name)
	return nil
}

func (c *SimConn) ReleaseSavepoint(_ context.Context, name string) error {
	if err := c.takeFailure(OpReleaseSavepoint); err != nil {
		return err
	}
	i, err := c.findSavepoint(name)
	if err != nil {
		return err
	}
	// Releasing a savepoint destroys it and every savepoint established
	// after it.
	c.savepoints = c.savepoints[:i]
	c.statements = append(c.statements, "RELEASE SAVEPOINT "+name)
	return nil
}

func (c *SimConn) RollbackToSavepoint(_ context.Context, name string) error {
	if err := c.takeFailure(OpRollbackToSavepoint); err != nil {
		return err
	}
	i, err := c.findSavepoint(name)
	if err != nil {
		return err
	}
	// Rolling back destroys later savepoints but keeps this one defined.
	c.savepoints = c.savepoints[:i+1]
	c.statements = append(c.statements, "ROLLBACK TO SAVEPOINT "+name)
	return nil
}

func (c *SimConn) IsTransactionOpen() bool {
	return c.txOpen
}

func (c *SimConn) findSavepoint(name string) (int, error) {
	for i, sp := range c.savepoints {
		if sp == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("simulated connection: no savepoint named %q", name)
}

// Log returns a copy of every statement issued so far, in order.
func (c *SimConn) Log() []string {
	out := make([]string, len(c.statements))
	copy(out, c.statements)
	return out
}

// LogSince returns the statements issued after the first n.
func (c *SimConn) LogSince(n int) []string {
	if n >= len(c.statements) {
		return nil
	}
	out := make([]string, len(c.statements)-n)
	copy(out, c.statements[n:])
	return out
}

// StatementCount returns how many statements have been issued so far.
func (c *SimConn) StatementCount() int {
	return len(c.statements)
}

// Savepoints returns the currently established savepoints, outermost first.
func (c *SimConn) Savepoints() []string {
	out := make([]string, len(c.savepoints))
	copy(out, c.savepoints)
	return out
}
