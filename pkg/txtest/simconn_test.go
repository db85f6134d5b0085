package txtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimConn(t *testing.T) {
	ctx := context.Background()

	t.Run("Tracks the transaction lifecycle", func(t *testing.T) {
		conn := NewSimConn()
		assert.False(t, conn.IsTransactionOpen())

		require.Nil(t, conn.BeginTransaction(ctx))
		assert.True(t, conn.IsTransactionOpen())

		require.Nil(t, conn.Commit(ctx))
		assert.False(t, conn.IsTransactionOpen())
		assert.Equal(t, []string{"BEGIN", "COMMIT"}, conn.Log())
	})

	t.Run("Rejects a nested BEGIN", func(t *testing.T) {
		conn := NewSimConn()
		require.Nil(t, conn.BeginTransaction(ctx))

		assert.NotNil(t, conn.BeginTransaction(ctx))
	})

	t.Run("Rejects transaction control outside a transaction", func(t *testing.T) {
		conn := NewSimConn()

		assert.NotNil(t, conn.Commit(ctx))
		assert.NotNil(t, conn.Rollback(ctx))
		assert.NotNil(t, conn.CreateSavepoint(ctx, "sp"))
	})

	t.Run("Releasing a savepoint destroys it and every later one", func(t *testing.T) {
		conn := NewSimConn()
		require.Nil(t, conn.BeginTransaction(ctx))
		require.Nil(t, conn.CreateSavepoint(ctx, "outer"))
		require.Nil(t, conn.CreateSavepoint(ctx, "inner"))

		require.Nil(t, conn.ReleaseSavepoint(ctx, "outer"))

		assert.Empty(t, conn.Savepoints())
		assert.NotNil(t, conn.ReleaseSavepoint(ctx, "inner"))
	})

	t.Run("Rolling back to a savepoint keeps it defined", func(t *testing.T) {
		conn := NewSimConn()
		require.Nil(t, conn.BeginTransaction(ctx))
		require.Nil(t, conn.CreateSavepoint(ctx, "outer"))
		require.Nil(t, conn.CreateSavepoint(ctx, "inner"))

		require.Nil(t, conn.RollbackToSavepoint(ctx, "outer"))

		assert.Equal(t, []string{"outer"}, conn.Savepoints())
	})

	t.Run("Rollback clears savepoints", func(t *testing.T) {
		conn := NewSimConn()
		require.Nil(t, conn.BeginTransaction(ctx))
		require.Nil(t, conn.CreateSavepoint(ctx, "sp"))

		require.Nil(t, conn.Rollback(ctx))

		assert.Empty(t, conn.Savepoints())
		assert.False(t, conn.IsTransactionOpen())
	})

	t.Run("Injects a failure into the next matching operation", func(t *testing.T) {
		conn := NewSimConn()
		failure := errors.New("connection reset")
		conn.FailNext(OpBegin, failure)

		assert.ErrorIs(t, conn.BeginTransaction(ctx), failure)
		// The failure is consumed; the next attempt succeeds.
		assert.Nil(t, conn.BeginTransaction(ctx))
		assert.Equal(t, []string{"BEGIN"}, conn.Log())
	})

	t.Run("LogSince returns only the tail of the statement log", func(t *testing.T) {
		conn := NewSimConn()
		require.Nil(t, conn.BeginTransaction(ctx))
		require.Nil(t, conn.CreateSavepoint(ctx, "sp"))

		assert.Equal(t, []string{"SAVEPOINT sp"}, conn.LogSince(1))
		assert.Nil(t, conn.LogSince(5))
	})
}
