// Package dispatch provides the trap publish/subscribe fan-out:
// asynchronously generated notifications are delivered to registered
// listeners with non-blocking, per-listener-isolated semantics, and a
// bounded retention ring keeps recent events for late subscribers.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
)

// Severity classifies a trap event.
type Severity string

// Trap severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// TrapEvent is one notification. Events are immutable once published.
type TrapEvent struct {
	DeviceID  string         `json:"device_id"`
	TrapOID   string         `json:"trap_oid"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message,omitempty"`
	Varbinds  map[string]any `json:"varbinds,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// HistoryFilter selects events from the retention buffer. Zero-valued
// fields match everything; Limit of zero returns all matches after
// Offset.
type HistoryFilter struct {
	Severity Severity `json:"severity,omitempty"`
	DeviceID string   `json:"device_id,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// Subscription is a handle to a registered listener. Events arrive on
// C; the channel is closed on unsubscribe and on dispatcher shutdown.
type Subscription struct {
	id uint64
	C  <-chan TrapEvent
	ch chan TrapEvent
}

// DispatcherConfig holds configuration for the trap dispatcher.
type DispatcherConfig struct {
	SubscriberBuffer int `json:"subscriber_buffer"`
	RetentionCount   int `json:"retention_count"`
}

// DefaultDispatcherConfig returns a default dispatcher configuration.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		SubscriberBuffer: 64,
		RetentionCount:   500,
	}
}

// DispatcherStats tracks dispatcher statistics.
type DispatcherStats struct {
	EventsPublished uint64 `json:"events_published"`
	EventsDelivered uint64 `json:"events_delivered"`
	EventsDropped   uint64 `json:"events_dropped"`
	Subscribers     int    `json:"subscribers"`
	RetainedEvents  int    `json:"retained_events"`
}

// Dispatcher fans trap events out to subscribers. Delivery is
// fire-and-forget per listener: a subscriber whose buffer is full has
// the event dropped and logged, and never blocks the publisher or the
// other subscribers. The retention ring is independent of live
// delivery and never blocks publication either.
type Dispatcher struct {
	config *DispatcherConfig
	logger logging.Logger

	mu          sync.RWMutex
	subscribers map[uint64]*Subscription
	nextID      uint64
	closed      bool

	// ring is a fixed-capacity retention buffer; head points at the
	// slot the next event will occupy, so the oldest event is evicted
	// once count reaches capacity.
	ring  []TrapEvent
	head  int
	count int

	stats DispatcherStats
}

// NewDispatcher creates a trap dispatcher.
func NewDispatcher(cfg config.Provider, logger logging.Logger) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	dispatcherConfig := DefaultDispatcherConfig()

	if buffer, err := cfg.GetInt("traps.subscriber_buffer", dispatcherConfig.SubscriberBuffer); err == nil && buffer > 0 {
		dispatcherConfig.SubscriberBuffer = buffer
	}

	if retention, err := cfg.GetInt("traps.retention_count", dispatcherConfig.RetentionCount); err == nil && retention > 0 {
		dispatcherConfig.RetentionCount = retention
	}

	return &Dispatcher{
		config:      dispatcherConfig,
		logger:      logger.With("component", "trap-dispatcher"),
		subscribers: make(map[uint64]*Subscription),
		ring:        make([]TrapEvent, dispatcherConfig.RetentionCount),
	}, nil
}

// Subscribe registers a listener and returns its handle.
func (d *Dispatcher) Subscribe() (*Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("dispatcher is closed")
	}

	d.nextID++
	ch := make(chan TrapEvent, d.config.SubscriberBuffer)
	sub := &Subscription{id: d.nextID, C: ch, ch: ch}
	d.subscribers[sub.id] = sub

	d.logger.Debug("Subscriber registered", "subscriber_id", sub.id)

	return sub, nil
}

// Unsubscribe removes a listener and closes its channel.
func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.subscribers[sub.id]; !exists {
		return
	}

	delete(d.subscribers, sub.id)
	close(sub.ch)

	d.logger.Debug("Subscriber removed", "subscriber_id", sub.id)
}

// Publish delivers the event to every current subscriber and records
// it in the retention ring. Publishing with zero subscribers is not an
// error; delivery to a full subscriber drops the event for that
// subscriber only.
func (d *Dispatcher) Publish(event TrapEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.stats.EventsPublished++

	d.ring[d.head] = event
	d.head = (d.head + 1) % len(d.ring)
	if d.count < len(d.ring) {
		d.count++
	}

	for id, sub := range d.subscribers {
		select {
		case sub.ch <- event:
			d.stats.EventsDelivered++
		default:
			d.stats.EventsDropped++
			d.logger.Warn("Dropping trap for slow subscriber",
				"subscriber_id", id,
				"trap_oid", event.TrapOID)
		}
	}
}

// History returns retained events matching the filter, newest first.
func (d *Dispatcher) History(filter HistoryFilter) []TrapEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	matched := make([]TrapEvent, 0, d.count)

	// Scan the ring newest to oldest.
	for i := 1; i <= d.count; i++ {
		idx := (d.head - i + len(d.ring)) % len(d.ring)
		event := d.ring[idx]

		if filter.Severity != "" && event.Severity != filter.Severity {
			continue
		}
		if filter.DeviceID != "" && event.DeviceID != filter.DeviceID {
			continue
		}

		matched = append(matched, event)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil
		}
		matched = matched[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched
}

// GetStats returns a snapshot of dispatcher statistics.
func (d *Dispatcher) GetStats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := d.stats
	stats.Subscribers = len(d.subscribers)
	stats.RetainedEvents = d.count

	return stats
}

// Close shuts the dispatcher down, closing every subscriber channel.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	d.closed = true
	for id, sub := range d.subscribers {
		close(sub.ch)
		delete(d.subscribers, id)
	}

	return nil
}
