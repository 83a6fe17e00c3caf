package hub

import (
	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// Payload is a raw event body as decoded from the wire. The dispatcher never
// reshapes it; normalization belongs to the consumer.
type Payload = map[string]interface{}

const (
	topicConversationUpdated = "conversation:updated"
	topicConversationCreated = "conversation:created"
)

// Dispatcher fans inbound hub events out to registered handlers. Handlers run
// synchronously in registration order; a panicking handler is contained so the
// remaining handlers still fire.
type Dispatcher struct {
	bus EventBus.Bus
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{bus: EventBus.New()}
}

func (d *Dispatcher) subscribe(topic string, handler func(Payload)) func() {
	wrapped := func(p Payload) {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Warn("hub: event handler panicked", zap.String("topic", topic), zap.Any("panic", r))
			}
		}()
		handler(p)
	}
	_ = d.bus.Subscribe(topic, wrapped)
	return func() {
		_ = d.bus.Unsubscribe(topic, wrapped)
	}
}

// OnConversationUpdated registers a handler for state-transition events and
// returns its unregister function.
func (d *Dispatcher) OnConversationUpdated(handler func(Payload)) func() {
	return d.subscribe(topicConversationUpdated, handler)
}

// OnConversationCreated registers a handler for new-conversation events and
// returns its unregister function.
func (d *Dispatcher) OnConversationCreated(handler func(Payload)) func() {
	return d.subscribe(topicConversationCreated, handler)
}

// dispatch routes one inbound event by its wire target. Unknown targets and
// the hub's pong reply are dropped silently.
func (d *Dispatcher) dispatch(target string, payload Payload) {
	switch target {
	case "conversationUpdated":
		d.bus.Publish(topicConversationUpdated, payload)
	case "conversationCreated":
		d.bus.Publish(topicConversationCreated, payload)
	case "pong":
		// heartbeat reply, nothing to do
	default:
		zap.L().Debug("hub: unhandled event", zap.String("target", target))
	}
}
