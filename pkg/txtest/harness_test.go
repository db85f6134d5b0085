package txtest

import (
	"context"
	"testing"

	"github.com/avelinek/txscope/pkg/txscope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("Wraps the test in a rolled back transaction", func(t *testing.T) {
		manager, sims := NewManager(nil)
		sim := sims[txscope.DefaultConnection]

		t.Run("wrapped test body", func(t *testing.T) {
			Wrap(t, manager)
			assert.Equal(t, []string{"BEGIN"}, sim.Log())
			assert.True(t, sim.IsTransactionOpen())
			// The harness transaction is invisible to the state queries.
			assert.False(t, manager.InTransaction(txscope.DefaultConnection))
		})

		// After the subtest, the cleanup has rolled the transaction back.
		assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, sim.Log())
		assert.False(t, sim.IsTransactionOpen())
	})

	t.Run("Wraps several connections independently", func(t *testing.T) {
		manager, sims := NewManager(nil, "default", "other")

		t.Run("wrapped test body", func(t *testing.T) {
			Wrap(t, manager, "default", "other")
			assert.True(t, sims["default"].IsTransactionOpen())
			assert.True(t, sims["other"].IsTransactionOpen())
		})

		assert.False(t, sims["default"].IsTransactionOpen())
		assert.False(t, sims["other"].IsTransactionOpen())
	})
}

func TestTestTransactionHooks(t *testing.T) {
	ctx := context.Background()

	t.Run("Wrapping twice is an error", func(t *testing.T) {
		manager, _ := NewManager(nil)
		require.Nil(t, manager.BeginTestTransaction(ctx, txscope.DefaultConnection))

		assert.NotNil(t, manager.BeginTestTransaction(ctx, txscope.DefaultConnection))
	})

	t.Run("Ending an unwrapped connection is an error", func(t *testing.T) {
		manager, _ := NewManager(nil)

		assert.NotNil(t, manager.EndTestTransaction(ctx, txscope.DefaultConnection))
	})

	t.Run("Ending the wrap discards parked callbacks", func(t *testing.T) {
		settings := NewSettings()
		settings.Current.AfterCommitNeedsTransaction = false
		settings.Current.RunCallbacksInTests = false
		manager, _ := NewManager(settings.Func())
		require.Nil(t, manager.BeginTestTransaction(ctx, txscope.DefaultConnection))

		ran := false
		require.Nil(t, manager.RunAfterCommit(txscope.DefaultConnection, func() error {
			ran = true
			return nil
		}))
		require.Equal(t, 1, manager.PendingAfterCommitCallbacks(txscope.DefaultConnection))

		require.Nil(t, manager.EndTestTransaction(ctx, txscope.DefaultConnection))
		assert.False(t, ran)
		assert.Equal(t, 0, manager.PendingAfterCommitCallbacks(txscope.DefaultConnection))
	})
}
