// Package transport performs SNMP operations against remote managed
// devices over gosnmp sessions. It presents the same discriminated
// result surface as the local operation engine, maps network failures
// into the transport error kinds, and drives the session liveness
// state machine: a successful exchange marks the device online, a
// timeout or network error marks it offline. Each call carries a
// bounded timeout; no locks are held across a network round trip.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/gosnmp/gosnmp"

	"github.com/geekxflood/proteus/internal/engine"
	"github.com/geekxflood/proteus/internal/mib"
	"github.com/geekxflood/proteus/internal/oid"
	"github.com/geekxflood/proteus/internal/session"
)

// ClientConfig holds configuration for the remote operation client.
type ClientConfig struct {
	MaxWalkResults int           `json:"max_walk_results"`
	ProbeOID       string        `json:"probe_oid"`
	ProbeInterval  time.Duration `json:"probe_interval"`
}

// DefaultClientConfig returns a default client configuration. The
// probe OID is sysDescr, the conventional reachability check.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxWalkResults: 1000,
		ProbeOID:       mib.SysDescrOID,
		ProbeInterval:  60 * time.Second,
	}
}

// Client executes GET, SET, GETNEXT, and WALK against remote devices.
type Client struct {
	config   *ClientConfig
	registry *session.Registry
	logger   logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a remote operation client over the device registry.
func NewClient(cfg config.Provider, registry *session.Registry, logger logging.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("device registry cannot be nil")
	}

	clientConfig := DefaultClientConfig()

	if maxResults, err := cfg.GetInt("transport.max_walk_results", clientConfig.MaxWalkResults); err == nil && maxResults > 0 {
		clientConfig.MaxWalkResults = maxResults
	}

	if probeOID, err := cfg.GetString("transport.probe_oid", clientConfig.ProbeOID); err == nil {
		if _, parseErr := oid.Parse(probeOID); parseErr != nil {
			return nil, fmt.Errorf("probe OID: %w", parseErr)
		}
		clientConfig.ProbeOID = probeOID
	}

	if interval, err := cfg.GetDuration("transport.probe_interval", clientConfig.ProbeInterval); err == nil {
		clientConfig.ProbeInterval = interval
	}

	return &Client{
		config:   clientConfig,
		registry: registry,
		logger:   logger.With("component", "transport"),
	}, nil
}

// connect builds and connects a gosnmp session for the device. v3
// security parameters are out of scope; the engine supports
// community-style access control only.
func connect(device session.Device) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:    device.Address,
		Port:      device.Port,
		Community: device.Community,
		Timeout:   device.Timeout,
		Retries:   device.Retries,
		MaxOids:   60,
	}

	switch device.Version {
	case session.V1:
		g.Version = gosnmp.Version1
	case session.V2c:
		g.Version = gosnmp.Version2c
	case session.V3:
		return nil, fmt.Errorf("SNMPv3 security parameters are not supported")
	default:
		return nil, fmt.Errorf("unsupported SNMP version %q", device.Version)
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s:%d: %w", device.Address, device.Port, err)
	}

	return g, nil
}

// Get performs a remote GET of a single OID.
func (c *Client) Get(ctx context.Context, deviceID, oidText string) engine.OperationResult {
	target, err := oid.Parse(oidText)
	if err != nil {
		return engine.FailureResult(engine.NoSuchObject)
	}

	return c.withSession(ctx, deviceID, func(conn *gosnmp.GoSNMP) (engine.OperationResult, error) {
		packet, err := conn.Get([]string{target.String()})
		if err != nil {
			return engine.OperationResult{}, err
		}

		return resultFromPacket(packet)
	})
}

// GetNext performs a remote GETNEXT from the given OID.
func (c *Client) GetNext(ctx context.Context, deviceID, oidText string) engine.OperationResult {
	target, err := oid.Parse(oidText)
	if err != nil {
		return engine.FailureResult(engine.NoSuchObject)
	}

	return c.withSession(ctx, deviceID, func(conn *gosnmp.GoSNMP) (engine.OperationResult, error) {
		packet, err := conn.GetNext([]string{target.String()})
		if err != nil {
			return engine.OperationResult{}, err
		}

		return resultFromPacket(packet)
	})
}

// Set performs a remote SET with the declared type.
func (c *Client) Set(ctx context.Context, deviceID, oidText string, value any, declared mib.ValueType) engine.OperationResult {
	target, err := oid.Parse(oidText)
	if err != nil {
		return engine.FailureResult(engine.NoSuchObject)
	}

	if err := mib.CheckValue(declared, value); err != nil {
		return engine.FailureResult(engine.WrongType)
	}

	pdu, err := pduForSet(target.String(), value, declared)
	if err != nil {
		return engine.FailureResult(engine.WrongType)
	}

	return c.withSession(ctx, deviceID, func(conn *gosnmp.GoSNMP) (engine.OperationResult, error) {
		packet, err := conn.Set([]gosnmp.SnmpPDU{pdu})
		if err != nil {
			return engine.OperationResult{}, err
		}

		if failure, failed := failureFromStatus(packet); failed {
			return engine.FailureResult(failure), nil
		}

		return engine.SuccessResult(target.String(), declared, value), nil
	})
}

// Walk performs a remote walk strictly after root, bounded by
// maxResults, using repeated GETNEXT so the subtree bound is checked
// structurally on this side rather than trusting the agent.
func (c *Client) Walk(ctx context.Context, deviceID, rootText string, maxResults int) (engine.WalkResult, engine.OperationResult) {
	root, err := oid.Parse(rootText)
	if err != nil {
		return engine.WalkResult{}, engine.FailureResult(engine.NoSuchObject)
	}

	if maxResults <= 0 || maxResults > c.config.MaxWalkResults {
		maxResults = c.config.MaxWalkResults
	}

	var walk engine.WalkResult
	cursor := root.String()

	for {
		if ctx.Err() != nil {
			return walk, engine.FailureResult(engine.Timeout)
		}

		if len(walk.VarBinds) >= maxResults {
			walk.Truncated = true
			return walk, engine.OperationResult{Success: true}
		}

		next := c.GetNext(ctx, deviceID, cursor)
		if !next.Success {
			if next.Failure == engine.EndOfMibView {
				return walk, engine.OperationResult{Success: true}
			}
			return walk, next
		}

		nextOID, err := oid.Parse(next.OID)
		if err != nil || !root.IsPrefixOf(nextOID) {
			return walk, engine.OperationResult{Success: true}
		}

		walk.VarBinds = append(walk.VarBinds, engine.VarBind{
			OID:   next.OID,
			Type:  next.Type,
			Value: next.Value,
		})

		cursor = next.OID
	}
}

// Probe checks device reachability with a GET of the probe OID and
// returns the resulting liveness state.
func (c *Client) Probe(ctx context.Context, deviceID string) session.State {
	c.Get(ctx, deviceID, c.config.ProbeOID)

	device, err := c.registry.Get(deviceID)
	if err != nil {
		return session.StateUnknown
	}

	return device.State
}

// StartMonitor launches the periodic connectivity probe over every
// registered device.
func (c *Client) StartMonitor(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.monitorLoop(ctx)

	c.logger.Info("Device monitor started", "interval", c.config.ProbeInterval.String())
}

// StopMonitor halts the periodic probe.
func (c *Client) StopMonitor() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Client) monitorLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, device := range c.registry.List() {
				state := c.Probe(ctx, device.ID)
				c.logger.Debug("Probe completed", "device_id", device.ID, "state", string(state))
			}
		}
	}
}

// withSession resolves the device, runs the operation, and applies the
// liveness transition for the outcome. Transport errors are mapped to
// Timeout or DeviceUnreachable; every other outcome counts as contact.
func (c *Client) withSession(ctx context.Context, deviceID string, op func(*gosnmp.GoSNMP) (engine.OperationResult, error)) engine.OperationResult {
	device, err := c.registry.Get(deviceID)
	if err != nil {
		return engine.FailureResult(engine.DeviceUnreachable)
	}

	conn, err := connect(device)
	if err != nil {
		c.registry.MarkFailure(deviceID)
		c.logger.Debug("Connect failed", "device_id", deviceID, "error", err.Error())
		return engine.FailureResult(engine.DeviceUnreachable)
	}
	defer conn.Conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < conn.Timeout {
			conn.Timeout = remaining
		}
	}

	result, err := op(conn)
	if err != nil {
		kind := classifyError(err)
		c.registry.MarkFailure(deviceID)
		c.logger.Debug("Operation failed",
			"device_id", deviceID,
			"failure", string(kind),
			"error", err.Error())
		return engine.FailureResult(kind)
	}

	// A protocol-level failure is still a successful exchange with the
	// device, so it counts as contact.
	c.registry.MarkSuccess(deviceID)

	return result
}

// classifyError maps a network error onto the transport failure kinds.
func classifyError(err error) engine.FailureKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return engine.Timeout
	}

	if strings.Contains(err.Error(), "timeout") {
		return engine.Timeout
	}

	return engine.DeviceUnreachable
}
