package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/avelinek/txscope/pkg/txscope"
)

// Env variables overriding the settings section of the config file.
const (
	EnvAfterCommitNeedsTransaction = "TXSCOPE_AFTER_COMMIT_NEEDS_TRANSACTION"
	EnvRunCallbacksInTests         = "TXSCOPE_RUN_AFTER_COMMIT_CALLBACKS_IN_TESTS"
	EnvCatchUnhandledCallbacks     = "TXSCOPE_CATCH_UNHANDLED_AFTER_COMMIT_CALLBACKS_IN_TESTS"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Settings SettingsConfig `toml:"settings"`
}

type DatabaseConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// SettingsConfig mirrors txscope.Settings with pointers so that an absent key
// keeps its strict default.
type SettingsConfig struct {
	AfterCommitNeedsTransaction *bool `toml:"after_commit_needs_transaction"`
	RunCallbacksInTests         *bool `toml:"run_after_commit_callbacks_in_tests"`
	CatchUnhandledCallbacks     *bool `toml:"catch_unhandled_after_commit_callbacks_in_tests"`
}

// Load reads the TOML config at path. An empty path yields a default Config.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{Name: txscope.DefaultConnection},
	}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = txscope.DefaultConnection
	}
	return cfg, nil
}

// TxscopeSettings resolves the effective settings: strict defaults, then the
// config file, then TXSCOPE_* environment overrides.
func (c *Config) TxscopeSettings() (txscope.Settings, error) {
	s := txscope.DefaultSettings()
	if c.Settings.AfterCommitNeedsTransaction != nil {
		s.AfterCommitNeedsTransaction = *c.Settings.AfterCommitNeedsTransaction
	}
	if c.Settings.RunCallbacksInTests != nil {
		s.RunCallbacksInTests = *c.Settings.RunCallbacksInTests
	}
	if c.Settings.CatchUnhandledCallbacks != nil {
		s.CatchUnhandledCallbacks = *c.Settings.CatchUnhandledCallbacks
	}
	for _, override := range []struct {
		env    string
		target *bool
	}{
		{EnvAfterCommitNeedsTransaction, &s.AfterCommitNeedsTransaction},
		{EnvRunCallbacksInTests, &s.RunCallbacksInTests},
		{EnvCatchUnhandledCallbacks, &s.CatchUnhandledCallbacks},
	} {
		raw, ok := os.LookupEnv(override.env)
		if !ok {
			continue
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return s, fmt.Errorf("invalid boolean %q in %s: %w", raw, override.env, err)
		}
		*override.target = value
	}
	return s, nil
}
