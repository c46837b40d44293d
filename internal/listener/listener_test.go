package listener

import (
	"net"
	"testing"
	"time"

	"github.com/geekxflood/common/logging"
	"github.com/gosnmp/gosnmp"

	"github.com/geekxflood/proteus/internal/dispatch"
	"github.com/geekxflood/proteus/internal/session"
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
		if str, ok := val.(string); ok {
			return time.ParseDuration(str)
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

func testLogger(t *testing.T) logging.Logger {
	t.Helper()

	logger, _, err := logging.NewLogger(logging.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	return logger
}

type testFixture struct {
	listener   *Listener
	dispatcher *dispatch.Dispatcher
	events     *dispatch.Subscription
}

func newTestListener(t *testing.T, cfg *mockConfigProvider) *testFixture {
	t.Helper()

	logger := testLogger(t)

	registry, err := session.NewRegistry(cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	if err := registry.Add(session.Device{ID: "core-switch-1", Address: "192.0.2.10"}); err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	dispatcher, err := dispatch.NewDispatcher(cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create dispatcher: %v", err)
	}
	t.Cleanup(func() { dispatcher.Close() })

	listener, err := NewListener(cfg, registry, dispatcher, logger)
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}

	sub, err := dispatcher.Subscribe()
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	return &testFixture{listener: listener, dispatcher: dispatcher, events: sub}
}

func trapPacket(trapOID string, varbinds ...gosnmp.SnmpPDU) *gosnmp.SnmpPacket {
	variables := []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(12345)},
		{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: trapOID},
	}
	variables = append(variables, varbinds...)

	return &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Variables: variables,
	}
}

func knownAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 54321}
}

func unknownAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("198.51.100.99"), Port: 54321}
}

func receiveEvent(t *testing.T, sub *dispatch.Subscription) dispatch.TrapEvent {
	t.Helper()

	select {
	case event := <-sub.C:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for trap event")
		return dispatch.TrapEvent{}
	}
}

func TestNewListenerConfig(t *testing.T) {
	cfg := newMockConfigProvider()
	cfg.values["listener.enabled"] = false
	cfg.values["listener.listen_address"] = "127.0.0.1:10162"
	cfg.values["listener.community"] = "private"
	cfg.values["listener.allow_unknown"] = true

	fx := newTestListener(t, cfg)

	if fx.listener.config.Enabled {
		t.Error("Expected listener disabled")
	}
	if fx.listener.config.ListenAddress != "127.0.0.1:10162" {
		t.Errorf("Unexpected listen address %q", fx.listener.config.ListenAddress)
	}
	if fx.listener.config.Community != "private" {
		t.Errorf("Unexpected community %q", fx.listener.config.Community)
	}
	if !fx.listener.config.AllowUnknown {
		t.Error("Expected allow_unknown true")
	}
}

func TestHandleTrapFromKnownDevice(t *testing.T) {
	fx := newTestListener(t, newMockConfigProvider())

	packet := trapPacket(".1.3.6.1.6.3.1.1.5.3",
		gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.1.4", Type: gosnmp.Integer, Value: 4},
		gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.2.4", Type: gosnmp.OctetString, Value: []byte("eth0")},
	)

	fx.listener.handleTrap(packet, knownAddr())

	event := receiveEvent(t, fx.events)
	if event.DeviceID != "core-switch-1" {
		t.Errorf("Expected device core-switch-1, got %q", event.DeviceID)
	}
	if event.TrapOID != "1.3.6.1.6.3.1.1.5.3" {
		t.Errorf("Unexpected trap OID %q", event.TrapOID)
	}
	if event.Varbinds["1.3.6.1.2.1.2.2.1.1.4"] != 4 {
		t.Errorf("Unexpected varbind value %v", event.Varbinds["1.3.6.1.2.1.2.2.1.1.4"])
	}
	// Octet strings are flattened to Go strings.
	if event.Varbinds["1.3.6.1.2.1.2.2.1.2.4"] != "eth0" {
		t.Errorf("Unexpected varbind value %v", event.Varbinds["1.3.6.1.2.1.2.2.1.2.4"])
	}
	if _, ok := event.Varbinds["1.3.6.1.6.3.1.1.4.1.0"]; ok {
		t.Error("Trap identity varbind should not appear in varbinds")
	}

	stats := fx.listener.GetStats()
	if stats.TrapsReceived != 1 || stats.TrapsPublished != 1 || stats.TrapsRejected != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestHandleTrapDropsUnknownSource(t *testing.T) {
	fx := newTestListener(t, newMockConfigProvider())

	fx.listener.handleTrap(trapPacket(".1.3.6.1.6.3.1.1.5.3"), unknownAddr())

	select {
	case event := <-fx.events.C:
		t.Fatalf("Unexpected event published: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}

	stats := fx.listener.GetStats()
	if stats.TrapsReceived != 1 || stats.TrapsRejected != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestHandleTrapAllowUnknown(t *testing.T) {
	cfg := newMockConfigProvider()
	cfg.values["listener.allow_unknown"] = true

	fx := newTestListener(t, cfg)

	fx.listener.handleTrap(trapPacket(".1.3.6.1.6.3.1.1.5.3"), unknownAddr())

	event := receiveEvent(t, fx.events)
	if event.DeviceID != "198.51.100.99" {
		t.Errorf("Expected source IP as device ID, got %q", event.DeviceID)
	}
}

func TestHandleTrapV1EnterpriseFallback(t *testing.T) {
	fx := newTestListener(t, newMockConfigProvider())

	packet := &gosnmp.SnmpPacket{
		Version:  gosnmp.Version1,
		SnmpTrap: gosnmp.SnmpTrap{Enterprise: ".1.3.6.1.4.1.9999.1"},
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(777)},
		},
	}

	fx.listener.handleTrap(packet, knownAddr())

	event := receiveEvent(t, fx.events)
	if event.TrapOID != "1.3.6.1.4.1.9999.1" {
		t.Errorf("Expected enterprise OID fallback, got %q", event.TrapOID)
	}
}

func TestHandleTrapDropsWithoutTrapOID(t *testing.T) {
	fx := newTestListener(t, newMockConfigProvider())

	packet := &gosnmp.SnmpPacket{
		Version: gosnmp.Version2c,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(12345)},
		},
	}

	fx.listener.handleTrap(packet, knownAddr())

	select {
	case event := <-fx.events.C:
		t.Fatalf("Unexpected event published: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}

	if stats := fx.listener.GetStats(); stats.TrapsRejected != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestStartDisabled(t *testing.T) {
	cfg := newMockConfigProvider()
	cfg.values["listener.enabled"] = false

	fx := newTestListener(t, cfg)

	if err := fx.listener.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if fx.listener.tl != nil {
		t.Error("Disabled listener should not open a socket")
	}
	if err := fx.listener.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestVarbindValue(t *testing.T) {
	if got := varbindValue(gosnmp.SnmpPDU{Value: []byte("hello")}); got != "hello" {
		t.Errorf("Expected flattened string, got %v", got)
	}
	if got := varbindValue(gosnmp.SnmpPDU{Value: uint32(9)}); got != uint32(9) {
		t.Errorf("Expected value passthrough, got %v", got)
	}
}
