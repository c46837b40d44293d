package dispatch

import (
	"testing"
	"time"

	"github.com/geekxflood/common/logging"
)

// mockConfigProvider implements the config.Provider interface for testing.
type mockConfigProvider struct {
	values map[string]interface{}
}

func newMockConfigProvider() *mockConfigProvider {
	return &mockConfigProvider{values: map[string]interface{}{}}
}

func (m *mockConfigProvider) GetString(path string, defaultValue ...string) (string, error) {
	if val, exists := m.values[path]; exists {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return "", nil
}

func (m *mockConfigProvider) GetInt(path string, defaultValue ...int) (int, error) {
	if val, exists := m.values[path]; exists {
		if i, ok := val.(int); ok {
			return i, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return 0, nil
}

func (m *mockConfigProvider) GetFloat(path string, defaultValue ...float64) (float64, error) {
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return 0, nil
}

func (m *mockConfigProvider) GetBool(path string, defaultValue ...bool) (bool, error) {
	if val, exists := m.values[path]; exists {
		if b, ok := val.(bool); ok {
			return b, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return false, nil
}

func (m *mockConfigProvider) GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error) {
	if val, exists := m.values[path]; exists {
		if d, ok := val.(time.Duration); ok {
			return d, nil
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return 0, nil
}

func (m *mockConfigProvider) GetStringSlice(path string, defaultValue ...[]string) ([]string, error) {
	if len(defaultValue) > 0 {
		return defaultValue[0], nil
	}
	return nil, nil
}

func (m *mockConfigProvider) GetMap(path string) (map[string]any, error) {
	return nil, nil
}

func (m *mockConfigProvider) Exists(path string) bool {
	_, exists := m.values[path]
	return exists
}

func (m *mockConfigProvider) Validate() error {
	return nil
}

func newTestDispatcher(t *testing.T, values map[string]interface{}) *Dispatcher {
	t.Helper()

	cfg := newMockConfigProvider()
	for k, v := range values {
		cfg.values[k] = v
	}

	logger, _, err := logging.NewLogger(logging.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	dispatcher, err := NewDispatcher(cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create dispatcher: %v", err)
	}

	return dispatcher
}

func TestPublishWithoutSubscribers(t *testing.T) {
	dispatcher := newTestDispatcher(t, nil)
	defer dispatcher.Close()

	// Must not block or error.
	dispatcher.Publish(TrapEvent{TrapOID: "1.3.6.1.6.3.1.1.5.1"})

	stats := dispatcher.GetStats()
	if stats.EventsPublished != 1 {
		t.Errorf("Expected 1 published event, got %d", stats.EventsPublished)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	dispatcher := newTestDispatcher(t, nil)
	defer dispatcher.Close()

	sub, err := dispatcher.Subscribe()
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	dispatcher.Publish(TrapEvent{DeviceID: "dev-1", TrapOID: "1.3.6.1.6.3.1.1.5.3"})

	select {
	case event := <-sub.C:
		if event.DeviceID != "dev-1" {
			t.Errorf("Unexpected device ID %s", event.DeviceID)
		}
		if event.Timestamp.IsZero() {
			t.Error("Publish did not stamp the event")
		}
		if event.Severity != SeverityInfo {
			t.Errorf("Expected default severity info, got %s", event.Severity)
		}
	case <-time.After(time.Second):
		t.Fatal("Event not delivered")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	dispatcher := newTestDispatcher(t, map[string]interface{}{
		"traps.subscriber_buffer": 1,
	})
	defer dispatcher.Close()

	slow, err := dispatcher.Subscribe()
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// Fill the subscriber's one-slot buffer, then keep publishing. Every
	// publish must return immediately; the overflow is dropped for this
	// subscriber only.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			dispatcher.Publish(TrapEvent{TrapOID: "1.3.6.1.6.3.1.1.5.4"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	stats := dispatcher.GetStats()
	if stats.EventsPublished != 5 {
		t.Errorf("Expected 5 published events, got %d", stats.EventsPublished)
	}
	if stats.EventsDropped != 4 {
		t.Errorf("Expected 4 drops for the full subscriber, got %d", stats.EventsDropped)
	}

	// The subscriber still holds the first event.
	select {
	case <-slow.C:
	default:
		t.Error("Subscriber lost its buffered event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	dispatcher := newTestDispatcher(t, nil)
	defer dispatcher.Close()

	sub, err := dispatcher.Subscribe()
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	dispatcher.Unsubscribe(sub)

	if _, open := <-sub.C; open {
		t.Error("Channel still open after unsubscribe")
	}

	// Unsubscribing twice is harmless.
	dispatcher.Unsubscribe(sub)
}

func TestRingEviction(t *testing.T) {
	dispatcher := newTestDispatcher(t, map[string]interface{}{
		"traps.retention_count": 3,
	})
	defer dispatcher.Close()

	for i := 0; i < 5; i++ {
		dispatcher.Publish(TrapEvent{
			TrapOID: "1.3.6.1.6.3.1.1.5.1",
			Message: string(rune('a' + i)),
		})
	}

	events := dispatcher.History(HistoryFilter{})
	if len(events) != 3 {
		t.Fatalf("Expected 3 retained events, got %d", len(events))
	}

	// Newest first; the two oldest were evicted.
	if events[0].Message != "e" || events[2].Message != "c" {
		t.Errorf("Unexpected retention order: %s .. %s", events[0].Message, events[2].Message)
	}
}

func TestHistoryFilters(t *testing.T) {
	dispatcher := newTestDispatcher(t, nil)
	defer dispatcher.Close()

	dispatcher.Publish(TrapEvent{DeviceID: "dev-1", TrapOID: "1.1", Severity: SeverityCritical})
	dispatcher.Publish(TrapEvent{DeviceID: "dev-2", TrapOID: "1.2", Severity: SeverityInfo})
	dispatcher.Publish(TrapEvent{DeviceID: "dev-1", TrapOID: "1.3", Severity: SeverityInfo})

	bySeverity := dispatcher.History(HistoryFilter{Severity: SeverityCritical})
	if len(bySeverity) != 1 || bySeverity[0].TrapOID != "1.1" {
		t.Errorf("Severity filter failed: %+v", bySeverity)
	}

	byDevice := dispatcher.History(HistoryFilter{DeviceID: "dev-1"})
	if len(byDevice) != 2 {
		t.Errorf("Expected 2 events for dev-1, got %d", len(byDevice))
	}

	limited := dispatcher.History(HistoryFilter{Limit: 1})
	if len(limited) != 1 || limited[0].TrapOID != "1.3" {
		t.Errorf("Limit filter failed: %+v", limited)
	}

	offset := dispatcher.History(HistoryFilter{Offset: 2})
	if len(offset) != 1 || offset[0].TrapOID != "1.1" {
		t.Errorf("Offset filter failed: %+v", offset)
	}

	if got := dispatcher.History(HistoryFilter{Offset: 10}); got != nil {
		t.Errorf("Expected nil past the end, got %+v", got)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	dispatcher := newTestDispatcher(t, nil)

	sub, err := dispatcher.Subscribe()
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := dispatcher.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, open := <-sub.C; open {
		t.Error("Channel still open after close")
	}

	// Publish after close is a no-op.
	dispatcher.Publish(TrapEvent{TrapOID: "1.1"})

	if _, err := dispatcher.Subscribe(); err == nil {
		t.Error("Expected subscribe on closed dispatcher to fail")
	}
}

func TestParseSeverity(t *testing.T) {
	if _, err := ParseSeverity("critical"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if _, err := ParseSeverity("fatal"); err == nil {
		t.Error("Expected error for unknown severity")
	}
}
