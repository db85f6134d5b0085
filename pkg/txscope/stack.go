package txscope

import (
	"strings"

	"github.com/google/uuid"
)

type frameKind int

const (
	kindRoot frameKind = iota
	kindSavepoint
)

func (k frameKind) String() string {
	if k == kindRoot {
		return "root"
	}
	return "savepoint"
}

// scopeFrame is one open scope on a connection. A savepoint frame can only
// exist above a root frame. Root frames realized as SQL savepoints (because
// the test harness transaction occupies the real BEGIN) carry simulated=true.
type scopeFrame struct {
	kind      frameKind
	depth     int
	id        uuid.UUID
	savepoint string
	simulated bool
}

// scopeStack tracks the open scopes of a single connection, innermost on top.
// It is a plain data structure: push and pop are only called in matching
// pairs by the scope operations' own cleanup paths, so it has no error
// handling of its own.
type scopeStack struct {
	frames []scopeFrame
}

func (s *scopeStack) isOpen() bool {
	return len(s.frames) > 0
}

func (s *scopeStack) depth() int {
	return len(s.frames)
}

func (s *scopeStack) push(f scopeFrame) scopeFrame {
	f.depth = len(s.frames) + 1
	s.frames = append(s.frames, f)
	return f
}

func (s *scopeStack) pop() scopeFrame {
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// root returns the bottom frame, the only frame after-commit callbacks are
// ever bound to.
func (s *scopeStack) root() (scopeFrame, bool) {
	if len(s.frames) == 0 {
		return scopeFrame{}, false
	}
	return s.frames[0], true
}

// newSavepointName generates an identifier-safe savepoint name.
func newSavepointName() string {
	return "txscope_sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
