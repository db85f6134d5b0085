package driver

import "context"

// Conn is the contract txscope requires from a database connection. It covers
// exactly the transaction-control statements the scope operations decide to
// issue; statement execution, pooling and connection lifecycle stay with the
// owning application.
//
// A Conn is expected to track a single underlying session: IsTransactionOpen
// must reflect the real server-side transaction state of that session,
// including transactions opened outside of txscope.
type Conn interface {
	// BeginTransaction opens a real transaction on the connection.
	BeginTransaction(ctx context.Context) error
	// Commit commits the currently open transaction.
	Commit(ctx context.Context) error
	// Rollback aborts the currently open transaction.
	Rollback(ctx context.Context) error
	// CreateSavepoint establishes a named savepoint inside an open transaction.
	CreateSavepoint(ctx context.Context, name string) error
	// ReleaseSavepoint destroys a previously established savepoint, keeping
	// all work performed since it was created.
	ReleaseSavepoint(ctx context.Context, name string) error
	// RollbackToSavepoint rolls back all work performed since the savepoint
	// was created, leaving the enclosing transaction open.
	RollbackToSavepoint(ctx context.Context, name string) error
	// IsTransactionOpen reports whether the connection currently has an open
	// transaction, regardless of who opened it.
	IsTransactionOpen() bool
}
