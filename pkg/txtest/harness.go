package txtest

import (
	"context"
	"testing"

	"github.com/avelinek/txscope/pkg/driver"
	"github.com/avelinek/txscope/pkg/txscope"
	"go.uber.org/zap"
)

// Settings is a mutable settings source for tests, standing in for the
// process-wide configuration of a real application. Mutating Current takes
// effect on the next scope operation, since the Manager re-resolves settings
// per call.
type Settings struct {
	Current txscope.Settings
}

func NewSettings() *Settings {
	return &Settings{Current: txscope.DefaultSettings()}
}

func (s *Settings) Func() txscope.SettingsFunc {
	return func() txscope.Settings { return s.Current }
}

// Wrap puts the named connections of m inside the harness's own
// never-committing transactions for the duration of the test, the same way
// production tests wrap every test in a rolled-back transaction. At test
// start it fires the pending-callback guard, failing fast when a previous
// scope left callbacks behind; at test end it rolls the wrapping transactions
// back and reports scopes the test failed to unwind. With no names given, the
// default connection is wrapped.
func Wrap(t *testing.T, m *txscope.Manager, names ...string) {
	t.Helper()
	if len(names) == 0 {
		names = []string{txscope.DefaultConnection}
	}
	ctx := context.Background()
	for _, name := range names {
		name := name
		if err := m.BeginTestTransaction(ctx, name); err != nil {
			t.Fatalf("failed to begin test transaction on %q: %v", name, err)
		}
		t.Cleanup(func() {
			if err := m.EndTestTransaction(context.Background(), name); err != nil {
				t.Errorf("failed to end test transaction on %q: %v", name, err)
			}
		})
		if err := m.GuardPendingCallbacks(name); err != nil {
			t.Fatalf("pending after-commit callback guard failed on %q: %v", name, err)
		}
	}
}

// NewManager builds a Manager over fresh SimConns for the given names (the
// default connection when none are given), returning the conns for statement
// assertions. The manager logs nowhere; pass your own Manager when log output
// matters.
func NewManager(settings txscope.SettingsFunc, names ...string) (*txscope.Manager, map[string]*SimConn) {
	if len(names) == 0 {
		names = []string{txscope.DefaultConnection}
	}
	sims := make(map[string]*SimConn, len(names))
	conns := make(map[string]driver.Conn, len(names))
	for _, name := range names {
		sim := NewSimConn()
		sims[name] = sim
		conns[name] = sim
	}
	return txscope.NewManager(conns, settings, nil, zap.NewNop()), sims
}
