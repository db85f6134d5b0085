package txscope

import (
	"fmt"
	"strings"
)

// TransactionAlreadyOpenError is returned when opening a Transaction or
// Durable scope while a transaction is already open on the connection.
// Nested transactions are never downgraded to savepoints; the caller has to
// restructure its call graph.
type TransactionAlreadyOpenError struct {
	Database string
}

func (e *TransactionAlreadyOpenError) Error() string {
	return fmt.Sprintf("a transaction is already open on connection %q", e.Database)
}

// MissingRequiredTransactionError is returned by TransactionRequired and
// Savepoint when no transaction is open on the connection. It signals a
// missing higher-level scope.
type MissingRequiredTransactionError struct {
	Database string
}

func (e *MissingRequiredTransactionError) Error() string {
	return fmt.Sprintf("no transaction is open on connection %q, but one is required", e.Database)
}

// NoTransactionOpenError is returned by RunAfterCommit when callback
// registration is attempted without an open transaction and
// Settings.AfterCommitNeedsTransaction is on.
type NoTransactionOpenError struct {
	Database string
}

func (e *NoTransactionOpenError) Error() string {
	return fmt.Sprintf("cannot register an after-commit callback on connection %q: no transaction is open", e.Database)
}

// UnhandledCallbacksError is returned when a new outermost scope is opened
// while after-commit callbacks registered under a previous scope were never
// drained. This is a test-ordering diagnostic, not a runtime fault, and is
// not meant to be caught.
type UnhandledCallbacksError struct {
	Database string
	Count    int
}

func (e *UnhandledCallbacksError) Error() string {
	return fmt.Sprintf("connection %q has %d unhandled after-commit callback(s) from a previous scope", e.Database, e.Count)
}

// DanglingTransactionError is returned by Durable when the wrapped code left
// a manually opened transaction behind. The transactions have already been
// rolled back by the time the error is returned.
type DanglingTransactionError struct {
	Databases []string
}

func (e *DanglingTransactionError) Error() string {
	return fmt.Sprintf("durable block left open transaction(s) on connection(s): %s", strings.Join(e.Databases, ", "))
}

// UnknownConnectionError is returned when a scope operation refers to a
// connection name the Manager was not constructed with.
type UnknownConnectionError struct {
	Database string
}

func (e *UnknownConnectionError) Error() string {
	return fmt.Sprintf("no connection named %q is registered with this manager", e.Database)
}
