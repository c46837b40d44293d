// Package listener receives SNMP traps from managed devices and feeds
// them into the trap dispatcher. Incoming packets are matched to
// registered devices by source address; traps from unknown sources are
// dropped unless configured otherwise.
package listener

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/gosnmp/gosnmp"

	"github.com/geekxflood/proteus/internal/dispatch"
	"github.com/geekxflood/proteus/internal/session"
)

// snmpTrapOID is the varbind carrying the trap identity in v2c traps.
const snmpTrapOID = "1.3.6.1.6.3.1.1.4.1.0"

// ListenerConfig holds configuration for the trap listener
type ListenerConfig struct {
	Enabled       bool   `json:"enabled"`
	ListenAddress string `json:"listen_address"`
	Community     string `json:"community"`
	AllowUnknown  bool   `json:"allow_unknown"`
}

// DefaultListenerConfig returns a default listener configuration
func DefaultListenerConfig() *ListenerConfig {
	return &ListenerConfig{
		Enabled:       true,
		ListenAddress: "0.0.0.0:162",
		Community:     "public",
		AllowUnknown:  false,
	}
}

// ListenerStats tracks trap reception statistics
type ListenerStats struct {
	TrapsReceived  int64 `json:"traps_received"`
	TrapsPublished int64 `json:"traps_published"`
	TrapsRejected  int64 `json:"traps_rejected"`
}

// Listener receives SNMP traps and publishes them to the dispatcher
type Listener struct {
	config     *ListenerConfig
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger

	tl    *gosnmp.TrapListener
	wg    sync.WaitGroup
	stats ListenerStats
	mu    sync.RWMutex
}

// NewListener creates a new trap listener
func NewListener(cfg config.Provider, registry *session.Registry, dispatcher *dispatch.Dispatcher, logger logging.Logger) (*Listener, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("device registry cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("trap dispatcher cannot be nil")
	}

	listenerConfig := DefaultListenerConfig()

	if enabled, err := cfg.GetBool("listener.enabled", listenerConfig.Enabled); err == nil {
		listenerConfig.Enabled = enabled
	}

	if listenAddress, err := cfg.GetString("listener.listen_address", listenerConfig.ListenAddress); err == nil {
		listenerConfig.ListenAddress = listenAddress
	}

	if community, err := cfg.GetString("listener.community", listenerConfig.Community); err == nil {
		listenerConfig.Community = community
	}

	if allowUnknown, err := cfg.GetBool("listener.allow_unknown", listenerConfig.AllowUnknown); err == nil {
		listenerConfig.AllowUnknown = allowUnknown
	}

	return &Listener{
		config:     listenerConfig,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.With("component", "listener"),
	}, nil
}

// Start begins listening for traps
func (l *Listener) Start() error {
	if !l.config.Enabled {
		l.logger.Info("Trap listener is disabled")
		return nil
	}

	tl := gosnmp.NewTrapListener()
	tl.OnNewTrap = l.handleTrap
	tl.Params = &gosnmp.GoSNMP{
		Transport: "udp",
		Community: l.config.Community,
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
		MaxOids:   gosnmp.MaxOids,
	}
	l.tl = tl

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := tl.Listen(l.config.ListenAddress); err != nil {
			l.logger.Error("Trap listener stopped", "error", err.Error())
		}
	}()

	l.logger.Info("Trap listener started", "listen_address", l.config.ListenAddress)
	return nil
}

// Stop stops the trap listener
func (l *Listener) Stop() error {
	if l.tl != nil {
		l.tl.Close()
	}
	l.wg.Wait()
	return nil
}

// handleTrap converts an incoming trap packet to a trap event
func (l *Listener) handleTrap(packet *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	l.mu.Lock()
	l.stats.TrapsReceived++
	l.mu.Unlock()

	deviceID, known := l.deviceForAddr(addr)
	if !known && !l.config.AllowUnknown {
		l.mu.Lock()
		l.stats.TrapsRejected++
		l.mu.Unlock()
		l.logger.Debug("Dropping trap from unknown source", "source", addr.IP.String())
		return
	}
	if !known {
		deviceID = addr.IP.String()
	}

	event := dispatch.TrapEvent{
		DeviceID:  deviceID,
		Severity:  dispatch.SeverityInfo,
		Varbinds:  make(map[string]any),
		Timestamp: time.Now(),
	}

	for _, v := range packet.Variables {
		name := strings.TrimPrefix(v.Name, ".")
		if name == snmpTrapOID {
			if trapOID, ok := v.Value.(string); ok {
				event.TrapOID = strings.TrimPrefix(trapOID, ".")
			}
			continue
		}
		event.Varbinds[name] = varbindValue(v)
	}

	if event.TrapOID == "" && packet.Enterprise != "" {
		// v1 traps carry their identity in the enterprise field
		event.TrapOID = strings.TrimPrefix(packet.Enterprise, ".")
	}

	if event.TrapOID == "" {
		l.mu.Lock()
		l.stats.TrapsRejected++
		l.mu.Unlock()
		l.logger.Debug("Dropping trap without trap OID", "source", addr.IP.String())
		return
	}

	l.dispatcher.Publish(event)

	l.mu.Lock()
	l.stats.TrapsPublished++
	l.mu.Unlock()

	l.logger.Debug("Trap published",
		"device_id", event.DeviceID,
		"trap_oid", event.TrapOID,
		"varbinds", len(event.Varbinds))
}

// deviceForAddr resolves a source address to a registered device ID
func (l *Listener) deviceForAddr(addr *net.UDPAddr) (string, bool) {
	source := addr.IP.String()
	for _, device := range l.registry.List() {
		if device.Address == source {
			return device.ID, true
		}
	}
	return "", false
}

// varbindValue flattens a varbind payload to a storable value
func varbindValue(v gosnmp.SnmpPDU) any {
	switch value := v.Value.(type) {
	case []byte:
		return string(value)
	default:
		return value
	}
}

// GetStats returns trap reception statistics
func (l *Listener) GetStats() ListenerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}
