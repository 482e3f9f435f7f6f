// Package notify keeps the short-lived user-facing messages raised by
// transfers and catalog operations. Each message dismisses itself after a
// fixed lifetime; desktop delivery through beeep is optional.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/events"
	"github.com/vaultlink/vaultlink/internal/logging"
)

const desktopTitle = "vaultlink"

// Notification is one active message.
type Notification struct {
	ID        string
	Severity  events.LogLevel
	Message   string
	CreatedAt time.Time
}

// Center owns the active notifications.
type Center struct {
	mu      sync.Mutex
	active  []Notification
	timers  map[string]*time.Timer
	seq     int
	closed  bool
	ttl     time.Duration
	desktop bool
	send    func(title, message string) error
	bus     *events.EventBus
	logger  *logging.Logger
}

// Option configures a Center.
type Option func(*Center)

// WithTTL overrides the auto-dismiss delay.
func WithTTL(d time.Duration) Option {
	return func(c *Center) { c.ttl = d }
}

// WithEventBus publishes every posted notification.
func WithEventBus(bus *events.EventBus) Option {
	return func(c *Center) { c.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Center) { c.logger = l }
}

// WithDesktop enables desktop notifications for successes and errors.
func WithDesktop(enabled bool) Option {
	return func(c *Center) { c.desktop = enabled }
}

// NewCenter creates a notification center.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		timers: make(map[string]*time.Timer),
		ttl:    constants.NotificationTTL,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger).Component("notify")
	return c
}

// Post adds a message and schedules its dismissal.
func (c *Center) Post(severity events.LogLevel, message string) Notification {
	c.mu.Lock()
	c.seq++
	n := Notification{
		ID:        fmt.Sprintf("n%d", c.seq),
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if c.closed {
		c.mu.Unlock()
		return n
	}
	c.active = append(c.active, n)
	id := n.ID
	c.timers[id] = time.AfterFunc(c.ttl, func() { c.Dismiss(id) })
	desktop := c.desktop && severity != events.DebugLevel
	c.mu.Unlock()

	c.bus.Publish(&events.NotificationEvent{
		BaseEvent: events.NewBase(events.EventNotification),
		ID:        n.ID,
		Severity:  severity,
		Message:   message,
		TTL:       c.ttl,
	})

	if desktop {
		if err := c.send(desktopTitle, message); err != nil {
			c.logger.Warn().Err(err).Msg("failed to send desktop notification")
		}
	}
	return n
}

// Info posts an informational message.
func (c *Center) Info(message string) Notification {
	return c.Post(events.InfoLevel, message)
}

// Error posts an error message.
func (c *Center) Error(message string) Notification {
	return c.Post(events.ErrorLevel, message)
}

// Dismiss removes a message before its lifetime ends. It reports whether
// the message was still active.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, n := range c.active {
		if n.ID == id {
			c.active = append(c.active[:i], c.active[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the current messages, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.active...)
}

// Follow posts a message for every settled transfer published on bus until
// ctx is done or the bus is closed.
func (c *Center) Follow(ctx context.Context, bus *events.EventBus) {
	ch := bus.Subscribe(events.EventTransferSucceeded, events.EventTransferFailed, events.EventTransferCancelled)
	defer bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			te, ok := ev.(*events.TransferEvent)
			if !ok {
				continue
			}
			c.postTransfer(te)
		}
	}
}

func (c *Center) postTransfer(te *events.TransferEvent) {
	subject := te.Subject
	if te.Direction == "upload" {
		subject = filepath.Base(subject)
	}
	switch te.Type() {
	case events.EventTransferSucceeded:
		c.Info(fmt.Sprintf("%s of %s complete", te.Direction, subject))
	case events.EventTransferFailed:
		msg := fmt.Sprintf("%s of %s failed", te.Direction, subject)
		if te.Error != nil {
			msg += ": " + te.Error.Error()
		}
		c.Error(msg)
	case events.EventTransferCancelled:
		c.Info(fmt.Sprintf("%s of %s cancelled", te.Direction, subject))
	}
}

// Close stops pending dismissals and drops every message.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.active = nil
	c.closed = true
}
