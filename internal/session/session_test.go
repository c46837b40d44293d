package session

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

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	logger, _, err := logging.NewLogger(logging.Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	registry, err := NewRegistry(newMockConfigProvider(), logger)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	return registry
}

func TestAddAppliesDefaults(t *testing.T) {
	registry := newTestRegistry(t)

	if err := registry.Add(Device{ID: "dev-1", Address: "192.0.2.1"}); err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	device, err := registry.Get("dev-1")
	if err != nil {
		t.Fatalf("Failed to get device: %v", err)
	}

	if device.Port != 161 {
		t.Errorf("Expected default port 161, got %d", device.Port)
	}
	if device.TrapPort != 162 {
		t.Errorf("Expected default trap port 162, got %d", device.TrapPort)
	}
	if device.Community != "public" {
		t.Errorf("Expected default community, got %s", device.Community)
	}
	if device.Version != V2c {
		t.Errorf("Expected default version 2c, got %s", device.Version)
	}
	if device.Timeout != 5*time.Second {
		t.Errorf("Expected default timeout 5s, got %s", device.Timeout)
	}
	if device.State != StateUnknown {
		t.Errorf("New session must start unknown, got %s", device.State)
	}
	if !device.LastContact.IsZero() {
		t.Error("New session must have no last contact")
	}
}

func TestAddKeepsExplicitValues(t *testing.T) {
	registry := newTestRegistry(t)

	err := registry.Add(Device{
		ID:        "dev-1",
		Address:   "192.0.2.1",
		Port:      1161,
		Community: "private",
		Version:   V1,
	})
	if err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	device, _ := registry.Get("dev-1")
	if device.Port != 1161 || device.Community != "private" || device.Version != V1 {
		t.Errorf("Explicit values overridden: %+v", device)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	registry := newTestRegistry(t)

	if err := registry.Add(Device{Address: "192.0.2.1"}); err == nil {
		t.Error("Expected error for empty ID")
	}

	if err := registry.Add(Device{ID: "dev-1"}); err == nil {
		t.Error("Expected error for empty address")
	}

	if err := registry.Add(Device{ID: "dev-1", Address: "192.0.2.1", Version: "4"}); err == nil {
		t.Error("Expected error for unsupported version")
	}
}

func TestAddRejectsDuplicate(t *testing.T) {
	registry := newTestRegistry(t)

	if err := registry.Add(Device{ID: "dev-1", Address: "192.0.2.1"}); err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	if err := registry.Add(Device{ID: "dev-1", Address: "192.0.2.2"}); err == nil {
		t.Error("Expected error for duplicate ID")
	}

	if registry.Len() != 1 {
		t.Errorf("Expected 1 device, got %d", registry.Len())
	}
}

func TestRemove(t *testing.T) {
	registry := newTestRegistry(t)

	if err := registry.Add(Device{ID: "dev-1", Address: "192.0.2.1"}); err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	if err := registry.Remove("dev-1"); err != nil {
		t.Fatalf("Failed to remove device: %v", err)
	}

	if _, err := registry.Get("dev-1"); err == nil {
		t.Error("Device still present after removal")
	}

	if err := registry.Remove("dev-1"); err == nil {
		t.Error("Expected error removing absent device")
	}
}

func TestLivenessTransitions(t *testing.T) {
	registry := newTestRegistry(t)

	if err := registry.Add(Device{ID: "dev-1", Address: "192.0.2.1"}); err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	registry.MarkSuccess("dev-1")

	device, _ := registry.Get("dev-1")
	if device.State != StateOnline {
		t.Errorf("Expected online after success, got %s", device.State)
	}
	if device.LastContact.IsZero() {
		t.Error("Success did not update last contact")
	}

	contact := device.LastContact

	registry.MarkFailure("dev-1")

	device, _ = registry.Get("dev-1")
	if device.State != StateOffline {
		t.Errorf("Expected offline after failure, got %s", device.State)
	}
	if !device.LastContact.Equal(contact) {
		t.Error("Failure must not touch last contact")
	}

	registry.MarkSuccess("dev-1")

	device, _ = registry.Get("dev-1")
	if device.State != StateOnline {
		t.Errorf("Expected online after recovery, got %s", device.State)
	}
}

func TestMarkUnknownDevice(t *testing.T) {
	registry := newTestRegistry(t)

	// Marking an unregistered device is a no-op, not a panic.
	registry.MarkSuccess("ghost")
	registry.MarkFailure("ghost")
}

func TestGetReturnsCopy(t *testing.T) {
	registry := newTestRegistry(t)

	if err := registry.Add(Device{ID: "dev-1", Address: "192.0.2.1"}); err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	device, _ := registry.Get("dev-1")
	device.Address = "tampered"

	fresh, _ := registry.Get("dev-1")
	if fresh.Address != "192.0.2.1" {
		t.Error("Get exposed registry internals")
	}
}

func TestList(t *testing.T) {
	registry := newTestRegistry(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := registry.Add(Device{ID: id, Address: "192.0.2.1"}); err != nil {
			t.Fatalf("Failed to add device %s: %v", id, err)
		}
	}

	if len(registry.List()) != 3 {
		t.Errorf("Expected 3 devices, got %d", len(registry.List()))
	}
}

func TestParseVersion(t *testing.T) {
	for _, valid := range []string{"1", "2c", "3"} {
		if _, err := ParseVersion(valid); err != nil {
			t.Errorf("Unexpected error for %q: %v", valid, err)
		}
	}

	for _, invalid := range []string{"", "2", "v2c"} {
		if _, err := ParseVersion(invalid); err == nil {
			t.Errorf("Expected error for %q", invalid)
		}
	}
}
