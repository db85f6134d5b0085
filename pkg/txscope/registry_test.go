package txscope

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCallbackQueue(t *testing.T) {
	t.Run("Takes callbacks for a scope in FIFO order", func(t *testing.T) {
		q := &callbackQueue{}
		scopeID := uuid.New()
		var ran []string
		q.register(scopeID, func() error { ran = append(ran, "first"); return nil })
		q.register(scopeID, func() error { ran = append(ran, "second"); return nil })

		taken := q.takeFor(scopeID)
		assert.Len(t, taken, 2)
		assert.Equal(t, 0, q.len())

		for _, cb := range taken {
			assert.Nil(t, cb())
		}
		assert.Equal(t, []string{"first", "second"}, ran)
	})

	t.Run("Keeps callbacks bound to other scopes", func(t *testing.T) {
		q := &callbackQueue{}
		mine := uuid.New()
		other := uuid.New()
		q.register(mine, func() error { return nil })
		q.register(other, func() error { return nil })

		taken := q.takeFor(mine)
		assert.Len(t, taken, 1)
		assert.Equal(t, 1, q.len())
	})

	t.Run("Discards callbacks for a scope without running them", func(t *testing.T) {
		q := &callbackQueue{}
		scopeID := uuid.New()
		ran := false
		q.register(scopeID, func() error { ran = true; return nil })

		assert.Equal(t, 1, q.discardFor(scopeID))
		assert.Equal(t, 0, q.len())
		assert.False(t, ran)
	})

	t.Run("Takes everything across scopes in registration order", func(t *testing.T) {
		q := &callbackQueue{}
		var ran []string
		q.register(uuid.New(), func() error { ran = append(ran, "a"); return nil })
		q.register(uuid.New(), func() error { ran = append(ran, "b"); return nil })

		for _, cb := range q.takeAll() {
			assert.Nil(t, cb())
		}
		assert.Equal(t, []string{"a", "b"}, ran)
		assert.Equal(t, 0, q.len())
	})

	t.Run("Discards everything on demand", func(t *testing.T) {
		q := &callbackQueue{}
		q.register(uuid.New(), func() error { return nil })
		q.register(uuid.New(), func() error { return nil })

		assert.Equal(t, 2, q.discardAll())
		assert.Equal(t, 0, q.len())
	})
}
