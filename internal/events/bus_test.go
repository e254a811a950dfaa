package events

import (
	"testing"
	"time"
)

func TestBusDeliversToSubscribersOfType(t *testing.T) {
	bus := NewBus()
	progress := bus.Subscribe(EventScheduleProgress)
	other := bus.Subscribe(EventLockAcquired)

	bus.Publish(EventScheduleProgress, Payload{"team_id": int64(7), "progress": 40})

	select {
	case got := <-progress:
		if got["progress"] != 40 {
			t.Fatalf("progress = %v, want 40", got["progress"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected a progress event")
	}

	select {
	case got := <-other:
		t.Fatalf("unexpected delivery to other subscriber: %v", got)
	default:
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventScheduleProgress)

	for i := 0; i < cap(sub)+5; i++ {
		bus.Publish(EventScheduleProgress, Payload{"progress": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("buffered = %d, want %d", len(sub), cap(sub))
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventScheduleProgress)
	bus.Unsubscribe(EventScheduleProgress, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	if n := bus.SubscriberCount(EventScheduleProgress); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}

	// A second unsubscribe must not panic on the closed channel.
	bus.Unsubscribe(EventScheduleProgress, sub)
	bus.Publish(EventScheduleProgress, Payload{})
}
