package txscope

import (
	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// EventType classifies a scope lifecycle event.
type EventType string

const (
	EventBegin             EventType = "begin"
	EventCommit            EventType = "commit"
	EventRollback          EventType = "rollback"
	EventSavepoint         EventType = "savepoint"
	EventSavepointRelease  EventType = "savepoint_release"
	EventSavepointRollback EventType = "savepoint_rollback"
	EventCallbackDrain     EventType = "callback_drain"
)

// Event describes one transition of a connection's scope stack. Events are
// purely observational: consumers can log or count them, but they never feed
// back into scope semantics.
type Event struct {
	Type      EventType
	Database  string
	Depth     int
	Savepoint string
	// Callbacks is the number of callbacks drained, for EventCallbackDrain.
	Callbacks int
}

// Notifier receives scope lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(event Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(event Event)

func (f NotifierFunc) Notify(event Event) {
	f(event)
}

// BusNotifier publishes lifecycle events on an event bus so that metrics or
// audit consumers can subscribe without being wired into the Manager.
type BusNotifier struct {
	eventBus EventBus.Bus
	topic    string
	logger   *zap.Logger
}

func NewBusNotifier(eventBus EventBus.Bus, topic string, logger *zap.Logger) *BusNotifier {
	return &BusNotifier{
		eventBus: eventBus,
		topic:    topic,
		logger:   logger,
	}
}

func (n *BusNotifier) Notify(event Event) {
	if !n.eventBus.HasCallback(n.topic) {
		n.logger.Debug("scope lifecycle event published with no subscribers",
			zap.String("topic", n.topic),
			zap.String("type", string(event.Type)),
		)
	}
	n.eventBus.Publish(n.topic, event)
}
