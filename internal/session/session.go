// Package session provides the managed device registry: per-target
// binding of network address, community credential, and protocol
// version, with a liveness state machine driven by operation outcomes.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
)

// Version is the SNMP protocol version of a device session.
type Version string

// Supported protocol versions. Version is a configuration attribute;
// v3 cryptographic parameters are not modeled.
const (
	V1  Version = "1"
	V2c Version = "2c"
	V3  Version = "3"
)

// ParseVersion validates a version string from configuration.
func ParseVersion(s string) (Version, error) {
	switch Version(s) {
	case V1, V2c, V3:
		return Version(s), nil
	default:
		return "", fmt.Errorf("unsupported SNMP version %q", s)
	}
}

// State is the liveness state of a device session.
type State string

// Liveness states. A session starts unknown and moves to online or
// offline only in response to operation outcomes or explicit probes.
const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Device is one managed target. The identity fields are immutable
// after registration; liveness fields change only through the registry.
type Device struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Address     string        `json:"address"`
	Port        uint16        `json:"port"`
	TrapPort    uint16        `json:"trap_port"`
	Community   string        `json:"community"`
	Version     Version       `json:"version"`
	Description string        `json:"description,omitempty"`
	State       State         `json:"state"`
	LastContact time.Time     `json:"last_contact"`
	Timeout     time.Duration `json:"timeout"`
	Retries     int           `json:"retries"`
}

// RegistryConfig holds configuration defaults applied to devices that
// register without explicit values.
type RegistryConfig struct {
	DefaultPort      uint16        `json:"default_port"`
	DefaultTrapPort  uint16        `json:"default_trap_port"`
	DefaultCommunity string        `json:"default_community"`
	DefaultVersion   Version       `json:"default_version"`
	DefaultTimeout   time.Duration `json:"default_timeout"`
	DefaultRetries   int           `json:"default_retries"`
}

// DefaultRegistryConfig returns the standard SNMP defaults: agent
// traffic on 161, traps on 162, public community, v2c.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		DefaultPort:      161,
		DefaultTrapPort:  162,
		DefaultCommunity: "public",
		DefaultVersion:   V2c,
		DefaultTimeout:   5 * time.Second,
		DefaultRetries:   1,
	}
}

// Registry is the explicit device store. It replaces module-level
// shared collections: a registry handle is injected into every
// component that parameterizes operations by device.
type Registry struct {
	config  *RegistryConfig
	logger  logging.Logger
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry creates an empty device registry.
func NewRegistry(cfg config.Provider, logger logging.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	registryConfig := DefaultRegistryConfig()

	if port, err := cfg.GetInt("devices.default_port", int(registryConfig.DefaultPort)); err == nil {
		registryConfig.DefaultPort = uint16(port)
	}

	if trapPort, err := cfg.GetInt("devices.default_trap_port", int(registryConfig.DefaultTrapPort)); err == nil {
		registryConfig.DefaultTrapPort = uint16(trapPort)
	}

	if community, err := cfg.GetString("devices.default_community", registryConfig.DefaultCommunity); err == nil {
		registryConfig.DefaultCommunity = community
	}

	if version, err := cfg.GetString("devices.default_version", string(registryConfig.DefaultVersion)); err == nil {
		parsed, err := ParseVersion(version)
		if err != nil {
			return nil, err
		}
		registryConfig.DefaultVersion = parsed
	}

	if timeout, err := cfg.GetDuration("devices.default_timeout", registryConfig.DefaultTimeout); err == nil {
		registryConfig.DefaultTimeout = timeout
	}

	if retries, err := cfg.GetInt("devices.default_retries", registryConfig.DefaultRetries); err == nil {
		registryConfig.DefaultRetries = retries
	}

	return &Registry{
		config:  registryConfig,
		logger:  logger.With("component", "session-registry"),
		devices: make(map[string]*Device),
	}, nil
}

// Add registers a device. Zero-valued connection attributes are filled
// from the registry defaults; liveness starts in the unknown state.
func (r *Registry) Add(device Device) error {
	if device.ID == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if device.Address == "" {
		return fmt.Errorf("device address cannot be empty")
	}

	if device.Port == 0 {
		device.Port = r.config.DefaultPort
	}
	if device.TrapPort == 0 {
		device.TrapPort = r.config.DefaultTrapPort
	}
	if device.Community == "" {
		device.Community = r.config.DefaultCommunity
	}
	if device.Version == "" {
		device.Version = r.config.DefaultVersion
	}
	if device.Timeout == 0 {
		device.Timeout = r.config.DefaultTimeout
	}
	if device.Retries == 0 {
		device.Retries = r.config.DefaultRetries
	}

	if _, err := ParseVersion(string(device.Version)); err != nil {
		return err
	}

	device.State = StateUnknown
	device.LastContact = time.Time{}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[device.ID]; exists {
		return fmt.Errorf("device %s already registered", device.ID)
	}

	r.devices[device.ID] = &device
	r.logger.Info("Device registered",
		"device_id", device.ID,
		"address", device.Address,
		"version", string(device.Version))

	return nil
}

// Remove destroys a device session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[id]; !exists {
		return fmt.Errorf("device %s not found", id)
	}

	delete(r.devices, id)
	r.logger.Info("Device removed", "device_id", id)

	return nil
}

// Get returns a copy of the device session.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, exists := r.devices[id]
	if !exists {
		return Device{}, fmt.Errorf("device %s not found", id)
	}

	return *device, nil
}

// List returns copies of all registered devices.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, device := range r.devices {
		out = append(out, *device)
	}

	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// MarkSuccess records a successful operation against the device:
// the session moves to online and last-contact is updated.
func (r *Registry) MarkSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[id]
	if !exists {
		return
	}

	if device.State != StateOnline {
		r.logger.Info("Device is now online", "device_id", id)
	}

	device.State = StateOnline
	device.LastContact = time.Now()
}

// MarkFailure records a timeout or network error against the device:
// the session moves to offline. Last-contact is left at the last
// successful exchange. Retry policy is a transport concern; the state
// machine itself never retries.
func (r *Registry) MarkFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, exists := r.devices[id]
	if !exists {
		return
	}

	if device.State != StateOffline {
		r.logger.Info("Device is now offline", "device_id", id)
	}

	device.State = StateOffline
}
