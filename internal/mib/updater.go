package mib

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"

	"github.com/geekxflood/proteus/internal/oid"
)

// UpdaterConfig holds configuration for the background value updater.
type UpdaterConfig struct {
	Interval        time.Duration `json:"interval"`
	UpdateCounters  bool          `json:"update_counters"`
	CounterStep     uint32        `json:"counter_step"`
	CounterOIDs     []string      `json:"counter_oids"`
	UptimeOID       string        `json:"uptime_oid"`
	EnableHeartbeat bool          `json:"enable_heartbeat"`
}

// DefaultUpdaterConfig returns a default updater configuration.
func DefaultUpdaterConfig() *UpdaterConfig {
	return &UpdaterConfig{
		Interval:       30 * time.Second,
		UpdateCounters: true,
		CounterStep:    1000,
		CounterOIDs: []string{
			"1.3.6.1.2.1.2.2.1.10.1",
			"1.3.6.1.2.1.2.2.1.16.1",
			"1.3.6.1.2.1.2.2.1.10.2",
			"1.3.6.1.2.1.2.2.1.16.2",
		},
		UptimeOID: SysUpTimeOID,
	}
}

// TreeSource yields the current live tree. Updates always target the
// tree that is live at tick time, so a hot reload is picked up on the
// next tick.
type TreeSource interface {
	Tree() *Tree
}

// Updater drives the agent-internal value mutations: the sysUpTime
// tick and simulated interface traffic counters. Updates go through
// the tree's write lock, the same discipline as SET.
type Updater struct {
	config  *UpdaterConfig
	source  TreeSource
	logger  logging.Logger
	started time.Time

	counters []oid.OID
	uptime   oid.OID

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUpdater creates a value updater over the given tree source.
func NewUpdater(cfg config.Provider, source TreeSource, logger logging.Logger) (*Updater, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("tree source cannot be nil")
	}

	updaterConfig := DefaultUpdaterConfig()

	if interval, err := cfg.GetDuration("updater.interval", updaterConfig.Interval); err == nil {
		updaterConfig.Interval = interval
	}

	if counters, err := cfg.GetBool("updater.update_counters", updaterConfig.UpdateCounters); err == nil {
		updaterConfig.UpdateCounters = counters
	}

	if step, err := cfg.GetInt("updater.counter_step", int(updaterConfig.CounterStep)); err == nil && step > 0 {
		updaterConfig.CounterStep = uint32(step)
	}

	u := &Updater{
		config:  updaterConfig,
		source:  source,
		logger:  logger.With("component", "mib-updater"),
		started: time.Now(),
	}

	var err error
	if u.uptime, err = oid.Parse(updaterConfig.UptimeOID); err != nil {
		return nil, fmt.Errorf("uptime OID: %w", err)
	}

	for _, s := range updaterConfig.CounterOIDs {
		parsed, err := oid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("counter OID %s: %w", s, err)
		}
		u.counters = append(u.counters, parsed)
	}

	return u, nil
}

// Start launches the periodic update loop.
func (u *Updater) Start(ctx context.Context) {
	ctx, u.cancel = context.WithCancel(ctx)

	u.wg.Add(1)
	go u.run(ctx)

	u.logger.Info("Updater started", "interval", u.config.Interval.String())
}

// Stop halts the update loop and waits for it to finish.
func (u *Updater) Stop() {
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
}

func (u *Updater) run(ctx context.Context) {
	defer u.wg.Done()

	ticker := time.NewTicker(u.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Tick()
		}
	}
}

// Tick performs one update pass. Exported so the agent can force an
// update outside the periodic schedule.
func (u *Updater) Tick() {
	tree := u.source.Tree()

	// sysUpTime is in hundredths of a second since agent start.
	ticks := uint32(time.Since(u.started) / (10 * time.Millisecond))
	if err := tree.UpdateValue(u.uptime, ticks); err != nil {
		u.logger.Error("Failed to update uptime", "error", err.Error())
	}

	if !u.config.UpdateCounters {
		return
	}

	for _, counter := range u.counters {
		node, err := tree.Get(counter)
		if err != nil {
			u.logger.Error("Counter OID missing", "oid", counter.String())
			continue
		}

		current, ok := node.Value.(uint32)
		if !ok {
			u.logger.Error("Counter OID is not Counter32", "oid", counter.String())
			continue
		}

		// Counter32 wraps at 2^32 by unsigned arithmetic.
		if err := tree.UpdateValue(counter, current+u.config.CounterStep); err != nil {
			u.logger.Error("Failed to update counter", "oid", counter.String(), "error", err.Error())
		}
	}
}
