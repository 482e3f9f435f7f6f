package events

import (
	"errors"
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTransferProgress)

	bus.Publish(&TransferEvent{
		BaseEvent: NewBase(EventTransferProgress),
		TaskID:    "task-1",
		Direction: "upload",
		Progress:  50,
		Message:   "sealing",
	})

	select {
	case received := <-ch:
		ev, ok := received.(*TransferEvent)
		if !ok {
			t.Fatal("Expected TransferEvent")
		}
		if ev.TaskID != "task-1" {
			t.Errorf("Expected task id 'task-1', got '%s'", ev.TaskID)
		}
		if ev.Progress != 50 {
			t.Errorf("Expected progress 50, got %d", ev.Progress)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_MultipleTypesOneChannel(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventCatalogLoaded, EventCatalogRefreshFailed)
	bus.Publish(&CatalogEvent{BaseEvent: NewBase(EventCatalogLoaded), TotalFiles: 3})
	bus.Publish(&CatalogEvent{BaseEvent: NewBase(EventCatalogRefreshFailed), Error: errors.New("offline")})
	bus.Publish(&CatalogEvent{BaseEvent: NewBase(EventCatalogInvalidated)})

	if got := len(ch); got != 2 {
		t.Errorf("Expected 2 buffered events, got %d", got)
	}

	// Closing must not panic on a channel registered under two types.
	bus.Close()
	for range ch {
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	all := bus.SubscribeAll()
	bus.PublishLog(InfoLevel, "catalog", "loaded", nil)
	bus.Publish(&NotificationEvent{BaseEvent: NewBase(EventNotification), Message: "hi"})

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for event %d", i)
		}
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventLog)
	for i := 0; i < 5; i++ {
		bus.PublishLog(DebugLevel, "test", "msg", nil)
	}

	if got := bus.DroppedEvents(); got != 4 {
		t.Errorf("Expected 4 dropped events, got %d", got)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventLog, EventNotification)
	bus.Unsubscribe(ch)

	bus.PublishLog(InfoLevel, "test", "after unsubscribe", nil)

	select {
	case <-ch:
		t.Error("Expected no event after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventBus_ClosedBus(t *testing.T) {
	bus := NewEventBus(10)
	bus.Close()

	ch := bus.Subscribe(EventLog)
	if _, ok := <-ch; ok {
		t.Error("Expected closed channel from closed bus")
	}
	// Publishing after close is a no-op.
	bus.PublishLog(InfoLevel, "test", "ignored", nil)

	var nilBus *EventBus
	nilBus.Publish(&LogEvent{BaseEvent: NewBase(EventLog)})
}

func TestLogLevelString(t *testing.T) {
	if WarnLevel.String() != "WARN" {
		t.Errorf("Expected WARN, got %s", WarnLevel.String())
	}
	if LogLevel(42).String() != "UNKNOWN" {
		t.Error("Expected UNKNOWN for out-of-range level")
	}
}
