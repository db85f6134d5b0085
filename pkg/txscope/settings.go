package txscope

// Settings are the three strictness toggles. They are resolved through a
// SettingsFunc at the start of every scope operation rather than baked into
// the Manager, so tests can flip them between (or inside) operations.
type Settings struct {
	// AfterCommitNeedsTransaction makes RunAfterCommit return a
	// NoTransactionOpenError when no transaction is open. Turning it off
	// restores the legacy behaviour of executing the callback immediately.
	AfterCommitNeedsTransaction bool
	// RunCallbacksInTests makes the outermost scope drain its after-commit
	// callbacks on exit when the connection is wrapped by the test harness,
	// simulating the commit that will happen in production.
	RunCallbacksInTests bool
	// CatchUnhandledCallbacks makes opening a new outermost scope fail with
	// an UnhandledCallbacksError when callbacks from a previous scope were
	// never drained. When off, the leftovers are drained silently before the
	// new scope opens.
	CatchUnhandledCallbacks bool
}

// SettingsFunc yields the Settings in force for a single operation.
type SettingsFunc func() Settings

// DefaultSettings returns the strict defaults: every toggle on.
func DefaultSettings() Settings {
	return Settings{
		AfterCommitNeedsTransaction: true,
		RunCallbacksInTests:         true,
		CatchUnhandledCallbacks:     true,
	}
}

// StaticSettings adapts a fixed Settings value into a SettingsFunc.
func StaticSettings(s Settings) SettingsFunc {
	return func() Settings { return s }
}
