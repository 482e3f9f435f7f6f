package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vaultlink/vaultlink/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog EventType = "log"

	// Catalog events
	EventCatalogLoaded        EventType = "catalog_loaded"         // New snapshot installed
	EventCatalogInvalidated   EventType = "catalog_invalidated"    // Snapshot cleared
	EventCatalogRefreshFailed EventType = "catalog_refresh_failed" // Listing failed, previous snapshot kept
	EventCatalogRefreshStale  EventType = "catalog_refresh_stale"  // Out-of-order completion discarded

	// Transfer task events
	EventTransferQueued    EventType = "transfer_queued"
	EventTransferStarted   EventType = "transfer_started" // Running (first attempt or retry)
	EventTransferProgress  EventType = "transfer_progress"
	EventTransferSucceeded EventType = "transfer_succeeded"
	EventTransferFailed    EventType = "transfer_failed"
	EventTransferCancelled EventType = "transfer_cancelled"
	EventTransferDismissed EventType = "transfer_dismissed"

	// User-facing notifications
	EventNotification EventType = "notification"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level     LogLevel
	Message   string
	Component string
	Error     error
}

// CatalogEvent describes a change of the catalog snapshot.
type CatalogEvent struct {
	BaseEvent
	Owner      string
	Seq        uint64
	TotalFiles int
	Skipped    int // records dropped as duplicates
	Error      error
}

// TransferEvent describes a transfer task transition or progress update.
type TransferEvent struct {
	BaseEvent
	TaskID    string
	Direction string // "upload" or "download"
	Subject   string // local path or remote file id
	State     string
	Progress  int // 0-100
	Message   string
	Attempt   int
	Error     error
}

// NotificationEvent is a short-lived user-facing message.
type NotificationEvent struct {
	BaseEvent
	ID       string
	Severity LogLevel
	Message  string
	TTL      time.Duration
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

func closedChan() <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Subscribe creates a subscription to the given event types
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return closedChan()
	}

	ch := make(chan Event, eb.bufferSize)
	for _, t := range types {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return closedChan()
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events that do
// not fit a subscriber's buffer are dropped and counted.
// A nil bus is valid and discards everything.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		eb.deliver(ch, event)
	}
	for _, ch := range eb.all {
		eb.deliver(ch, event)
	}
}

func (eb *EventBus) deliver(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		eb.droppedEvents.Add(1)
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	// A channel subscribed to several types must only be closed once.
	seen := make(map[chan Event]struct{})
	closeOnce := func(ch chan Event) {
		if _, ok := seen[ch]; ok {
			return
		}
		seen[ch] = struct{}{}
		close(ch)
	}
	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			closeOnce(ch)
		}
	}
	for _, ch := range eb.all {
		closeOnce(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, component, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: NewBase(EventLog),
		Level:     level,
		Message:   message,
		Component: component,
		Error:     err,
	})
}

// Unsubscribe removes a subscription channel from every type it was
// registered for and from the all-events list.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		eb.subscribers[eventType] = removeChan(subscribers, ch)
	}
	eb.all = removeChan(eb.all, ch)
}

func removeChan(list []chan Event, ch <-chan Event) []chan Event {
	for i, c := range list {
		if c == ch {
			list[i] = list[len(list)-1]
			return list[:len(list)-1]
		}
	}
	return list
}

// DroppedEvents returns the number of events dropped due to full buffers
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
