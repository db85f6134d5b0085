package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/avelinek/txscope/pkg/txscope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txscope.toml")
	require.Nil(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Empty path yields strict defaults", func(t *testing.T) {
		cfg, err := Load("")

		require.Nil(t, err)
		assert.Equal(t, txscope.DefaultConnection, cfg.Database.Name)
		settings, err := cfg.TxscopeSettings()
		require.Nil(t, err)
		assert.Equal(t, txscope.DefaultSettings(), settings)
	})

	t.Run("Reads database and settings sections", func(t *testing.T) {
		path := writeConfig(t, `
[database]
name = "analytics"
url = "postgres://localhost:5432/analytics"

[settings]
after_commit_needs_transaction = false
catch_unhandled_after_commit_callbacks_in_tests = false
`)

		cfg, err := Load(path)
		require.Nil(t, err)
		assert.Equal(t, "analytics", cfg.Database.Name)
		assert.Equal(t, "postgres://localhost:5432/analytics", cfg.Database.URL)

		settings, err := cfg.TxscopeSettings()
		require.Nil(t, err)
		assert.False(t, settings.AfterCommitNeedsTransaction)
		// Absent keys keep their defaults.
		assert.True(t, settings.RunCallbacksInTests)
		assert.False(t, settings.CatchUnhandledCallbacks)
	})

	t.Run("Fails on an unreadable file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))

		assert.NotNil(t, err)
	})

	t.Run("Environment variables override the file", func(t *testing.T) {
		path := writeConfig(t, `
[settings]
run_after_commit_callbacks_in_tests = true
`)
		t.Setenv(EnvRunCallbacksInTests, "false")
		t.Setenv(EnvAfterCommitNeedsTransaction, "0")

		cfg, err := Load(path)
		require.Nil(t, err)
		settings, err := cfg.TxscopeSettings()
		require.Nil(t, err)

		assert.False(t, settings.RunCallbacksInTests)
		assert.False(t, settings.AfterCommitNeedsTransaction)
		assert.True(t, settings.CatchUnhandledCallbacks)
	})

	t.Run("Rejects malformed boolean overrides", func(t *testing.T) {
		cfg, err := Load("")
		require.Nil(t, err)
		t.Setenv(EnvCatchUnhandledCallbacks, "definitely")

		_, err = cfg.TxscopeSettings()
		assert.NotNil(t, err)
	})
}
