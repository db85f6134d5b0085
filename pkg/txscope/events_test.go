package txscope_test

import (
	"testing"

	"github.com/asaskevich/EventBus"
	"github.com/avelinek/txscope/pkg/txscope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusNotifier(t *testing.T) {
	t.Run("Publishes events on the configured topic", func(t *testing.T) {
		bus := EventBus.New()
		var received []txscope.Event
		require.Nil(t, bus.Subscribe("txscope:lifecycle", func(event txscope.Event) {
			received = append(received, event)
		}))

		notifier := txscope.NewBusNotifier(bus, "txscope:lifecycle", zap.NewNop())
		notifier.Notify(txscope.Event{Type: txscope.EventBegin, Database: "default", Depth: 1})

		require.Len(t, received, 1)
		assert.Equal(t, txscope.EventBegin, received[0].Type)
		assert.Equal(t, "default", received[0].Database)
	})
}
