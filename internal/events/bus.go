package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for process-wide broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers an event to all subscribers. The generic event.Publish
// needs the concrete type, hence the switch.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case DeviceAddedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceRemovedEvent:
		event.Publish(b.dispatcher, e)
	case RouteChangedEvent:
		event.Publish(b.dispatcher, e)
	case VolumeChangedEvent:
		event.Publish(b.dispatcher, e)
	case MixOverrunEvent:
		event.Publish(b.dispatcher, e)
	case CaptureOverflowEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler; the handler's parameter type selects the
// event stream. Returns an unsubscribe function.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceAddedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RouteChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(VolumeChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MixOverrunEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureOverflowEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
