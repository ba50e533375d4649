package events

import (
	"testing"
	"time"
)

func waitEvent[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
		var zero T
		return zero
	}
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	b := New()
	added := make(chan DeviceAddedEvent, 1)
	removed := make(chan DeviceRemovedEvent, 1)
	unsubAdd := b.Subscribe(func(e DeviceAddedEvent) { added <- e })
	defer unsubAdd()
	unsubRemove := b.Subscribe(func(e DeviceRemovedEvent) { removed <- e })
	defer unsubRemove()

	b.Publish(DeviceAddedEvent{DeviceID: "dev-1", Name: "USB Audio", Direction: "output"})
	e := waitEvent(t, added)
	if e.DeviceID != "dev-1" || e.Direction != "output" {
		t.Fatalf("delivered event = %+v", e)
	}
	select {
	case e := <-removed:
		t.Fatalf("removal subscriber got an added event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	got := make(chan RouteChangedEvent, 4)
	unsub := b.Subscribe(func(e RouteChangedEvent) { got <- e })

	b.Publish(RouteChangedEvent{Category: "render", DeviceID: "dev-1"})
	waitEvent(t, got)

	unsub()
	b.Publish(RouteChangedEvent{Category: "render", DeviceID: "dev-2"})
	select {
	case e := <-got:
		t.Fatalf("unsubscribed handler still received %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeUnknownHandlerIsNoop(t *testing.T) {
	b := New()
	unsub := b.Subscribe(func(s string) {})
	unsub()
}

func TestEventTypesDistinct(t *testing.T) {
	evs := []Event{
		DeviceAddedEvent{}, DeviceRemovedEvent{}, RouteChangedEvent{},
		VolumeChangedEvent{}, MixOverrunEvent{}, CaptureOverflowEvent{},
	}
	seen := map[uint32]bool{}
	for _, e := range evs {
		if e.Type() == 0 || seen[e.Type()] {
			t.Errorf("event %T has zero or duplicate type %d", e, e.Type())
		}
		seen[e.Type()] = true
	}
}
