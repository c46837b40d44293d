// Package app provides the main application orchestration and integration layer.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"

	"github.com/geekxflood/proteus/internal/client"
	"github.com/geekxflood/proteus/internal/dispatch"
	"github.com/geekxflood/proteus/internal/engine"
	"github.com/geekxflood/proteus/internal/listener"
	"github.com/geekxflood/proteus/internal/metrics"
	"github.com/geekxflood/proteus/internal/mib"
	"github.com/geekxflood/proteus/internal/notifier"
	"github.com/geekxflood/proteus/internal/resolver"
	"github.com/geekxflood/proteus/internal/session"
	"github.com/geekxflood/proteus/internal/storage"
	"github.com/geekxflood/proteus/internal/transport"
)

// AppConfig holds configuration for the main application
type AppConfig struct {
	Name              string        `json:"name"`
	Version           string        `json:"version"`
	LogLevel          string        `json:"log_level"`
	LogFormat         string        `json:"log_format"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	HeartbeatEnabled  bool          `json:"heartbeat_enabled"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
}

// DefaultAppConfig returns a default application configuration
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Name:              "proteus",
		Version:           "1.0.0",
		LogLevel:          "info",
		LogFormat:         "json",
		ShutdownTimeout:   30 * time.Second,
		HeartbeatEnabled:  true,
		HeartbeatInterval: 60 * time.Second,
	}
}

// Application wires the engine components together and owns their lifecycle
type Application struct {
	config         *AppConfig
	configProvider config.Provider

	// Core components
	loader     *mib.Loader
	updater    *mib.Updater
	engine     *engine.Engine
	resolver   *resolver.Resolver
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	storage    *storage.Storage
	httpClient *client.HTTPClient
	notifier   *notifier.Notifier
	listener   *listener.Listener
	transport  *transport.Client
	metrics    *metrics.MetricsManager

	storageSub *dispatch.Subscription

	// Application state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logging.Logger
}

// NewApplication creates a new engine application over the config manager
func NewApplication(configManager config.Manager) (*Application, error) {
	if configManager == nil {
		return nil, fmt.Errorf("configuration manager cannot be nil")
	}

	configProvider := configManager.(config.Provider)

	appConfig := DefaultAppConfig()

	if name, err := configProvider.GetString("app.name", appConfig.Name); err == nil {
		appConfig.Name = name
	}

	if version, err := configProvider.GetString("app.version", appConfig.Version); err == nil {
		appConfig.Version = version
	}

	if logLevel, err := configProvider.GetString("app.log_level", appConfig.LogLevel); err == nil {
		appConfig.LogLevel = logLevel
	}

	if logFormat, err := configProvider.GetString("app.log_format", appConfig.LogFormat); err == nil {
		appConfig.LogFormat = logFormat
	}

	if shutdownTimeout, err := configProvider.GetDuration("app.shutdown_timeout", appConfig.ShutdownTimeout); err == nil {
		appConfig.ShutdownTimeout = shutdownTimeout
	}

	if heartbeatEnabled, err := configProvider.GetBool("app.heartbeat_enabled", appConfig.HeartbeatEnabled); err == nil {
		appConfig.HeartbeatEnabled = heartbeatEnabled
	}

	if heartbeatInterval, err := configProvider.GetDuration("app.heartbeat_interval", appConfig.HeartbeatInterval); err == nil {
		appConfig.HeartbeatInterval = heartbeatInterval
	}

	logger, _, err := logging.NewLogger(logging.Config{
		Level:  appConfig.LogLevel,
		Format: appConfig.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:         appConfig,
		configProvider: configProvider,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
	}

	logger.Info("Creating SNMP management engine",
		"name", appConfig.Name,
		"version", appConfig.Version)

	return app, nil
}

// Initialize initializes all application components
func (a *Application) Initialize() error {
	a.logger.Info("Initializing application components")

	var err error

	a.loader, err = mib.NewLoader(a.configProvider, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object tree loader: %w", err)
	}

	a.engine, err = engine.NewEngine(a.configProvider, a.loader, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize operation engine: %w", err)
	}

	a.updater, err = mib.NewUpdater(a.configProvider, a.loader, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tree updater: %w", err)
	}

	a.resolver, err = resolver.NewResolver(a.configProvider, a.loader)
	if err != nil {
		return fmt.Errorf("failed to initialize OID resolver: %w", err)
	}

	a.registry, err = session.NewRegistry(a.configProvider, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize device registry: %w", err)
	}

	if err := a.loadDevices(); err != nil {
		return fmt.Errorf("failed to load device entries: %w", err)
	}

	a.dispatcher, err = dispatch.NewDispatcher(a.configProvider, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize trap dispatcher: %w", err)
	}

	a.storage, err = storage.NewStorage(a.configProvider)
	if err != nil {
		return fmt.Errorf("failed to initialize trap history storage: %w", err)
	}

	a.httpClient, err = client.NewHTTPClient(a.configProvider)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP client: %w", err)
	}

	a.notifier, err = notifier.NewNotifier(a.configProvider, a.httpClient, a.dispatcher, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	a.listener, err = listener.NewListener(a.configProvider, a.registry, a.dispatcher, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize trap listener: %w", err)
	}

	a.transport, err = transport.NewClient(a.configProvider, a.registry, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize transport client: %w", err)
	}

	a.metrics, err = metrics.NewMetricsManager(a.configProvider, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	a.logger.Info("Application components initialized successfully")
	return nil
}

// loadDevices registers device entries from configuration
func (a *Application) loadDevices() error {
	deviceMap, err := a.configProvider.GetMap("devices.entries")
	if err != nil {
		// No configured devices is fine, they can also arrive via API later.
		return nil
	}

	jsonData, err := json.Marshal(deviceMap)
	if err != nil {
		return err
	}

	var devices []session.Device
	if err := json.Unmarshal(jsonData, &devices); err != nil {
		return err
	}

	for _, device := range devices {
		if err := a.registry.Add(device); err != nil {
			return fmt.Errorf("device %q: %w", device.ID, err)
		}
	}

	a.logger.Info("Registered devices from configuration", "count", len(devices))
	return nil
}

// Run starts the application and blocks until shutdown
func (a *Application) Run() error {
	a.logger.Info("Starting SNMP management engine")

	if err := a.metrics.Start(); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}

	a.updater.Start(a.ctx)

	if err := a.notifier.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start notifier: %w", err)
	}

	if err := a.startStorageSink(); err != nil {
		return fmt.Errorf("failed to start storage sink: %w", err)
	}

	if err := a.listener.Start(); err != nil {
		return fmt.Errorf("failed to start trap listener: %w", err)
	}

	a.transport.StartMonitor(a.ctx)

	if a.config.HeartbeatEnabled {
		a.wg.Add(1)
		go a.heartbeatLoop()
	}

	a.metrics.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	a.logger.Info("Application started successfully")

	select {
	case sig := <-sigChan:
		a.logger.Info("Received shutdown signal", "signal", sig.String())
		return a.Shutdown()
	case <-a.ctx.Done():
		a.logger.Info("Application context cancelled")
		return a.ctx.Err()
	}
}

// startStorageSink subscribes the trap history store to the dispatcher
func (a *Application) startStorageSink() error {
	sub, err := a.dispatcher.Subscribe()
	if err != nil {
		return err
	}
	a.storageSub = sub

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				if err := a.storage.StoreTrap(event); err != nil {
					a.logger.Warn("Failed to store trap",
						"trap_oid", event.TrapOID,
						"error", err.Error())
				}
			}
		}
	}()

	return nil
}

// heartbeatLoop publishes a periodic heartbeat trap so downstream
// consumers can verify the dispatch path end to end.
func (a *Application) heartbeatLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.dispatcher.Publish(dispatch.TrapEvent{
				DeviceID: a.config.Name,
				TrapOID:  mib.HeartbeatTrapOID,
				Severity: dispatch.SeverityInfo,
				Message:  "heartbeat",
			})
		}
	}
}

// Shutdown gracefully shuts down the application
func (a *Application) Shutdown() error {
	a.logger.Info("Shutting down application")
	a.metrics.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer shutdownCancel()

	a.cancel()

	var shutdownErrors []error

	if a.listener != nil {
		if err := a.listener.Stop(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("listener shutdown error: %w", err))
		}
	}

	if a.transport != nil {
		a.transport.StopMonitor()
	}

	if a.notifier != nil {
		if err := a.notifier.Stop(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("notifier shutdown error: %w", err))
		}
	}

	if a.updater != nil {
		a.updater.Stop()
	}

	if a.dispatcher != nil {
		a.dispatcher.Unsubscribe(a.storageSub)
		if err := a.dispatcher.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("dispatcher shutdown error: %w", err))
		}
	}

	if a.httpClient != nil {
		if err := a.httpClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("HTTP client shutdown error: %w", err))
		}
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("storage shutdown error: %w", err))
		}
	}

	if a.loader != nil {
		if err := a.loader.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("loader shutdown error: %w", err))
		}
	}

	if a.metrics != nil {
		if err := a.metrics.Stop(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics shutdown error: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All background goroutines stopped")
	case <-shutdownCtx.Done():
		a.logger.Warn("Shutdown timeout reached, forcing exit")
		shutdownErrors = append(shutdownErrors, fmt.Errorf("shutdown timeout"))
	}

	if len(shutdownErrors) > 0 {
		a.logger.Error("Shutdown completed with errors", "error_count", len(shutdownErrors))
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	a.logger.Info("Application shutdown completed successfully")
	return nil
}

// Engine returns the local operation engine
func (a *Application) Engine() *engine.Engine {
	return a.engine
}

// Resolver returns the OID resolver
func (a *Application) Resolver() *resolver.Resolver {
	return a.resolver
}

// Registry returns the device registry
func (a *Application) Registry() *session.Registry {
	return a.registry
}

// Transport returns the remote operation client
func (a *Application) Transport() *transport.Client {
	return a.transport
}
