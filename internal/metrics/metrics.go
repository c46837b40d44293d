// Package metrics provides Prometheus metrics integration and system monitoring
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig defines the configuration for the metrics system
type MetricsConfig struct {
	Enabled        bool          `json:"enabled"`
	ListenAddress  string        `json:"listen_address"`
	MetricsPath    string        `json:"metrics_path"`
	HealthPath     string        `json:"health_path"`
	ReadyPath      string        `json:"ready_path"`
	UpdateInterval time.Duration `json:"update_interval"`
	Namespace      string        `json:"namespace"`
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:        true,
		ListenAddress:  ":9090",
		MetricsPath:    "/metrics",
		HealthPath:     "/health",
		ReadyPath:      "/ready",
		UpdateInterval: 30 * time.Second,
		Namespace:      "proteus",
	}
}

// MetricsManager manages Prometheus metrics and health endpoints
type MetricsManager struct {
	config   *MetricsConfig
	logger   logging.Logger
	registry *prometheus.Registry
	server   *http.Server

	// Application metrics
	operationMetrics *OperationMetrics
	trapMetrics      *TrapMetrics
	sessionMetrics   *SessionMetrics
	webhookMetrics   *WebhookMetrics
	systemMetrics    *SystemMetrics

	// Health status
	healthStatus map[string]bool
	readyStatus  bool
	mu           sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OperationMetrics contains management operation metrics
type OperationMetrics struct {
	OperationsTotal  *prometheus.CounterVec
	OperationTime    *prometheus.HistogramVec
	WalkResults      prometheus.Histogram
	WalksTruncated   prometheus.Counter
	TreeNodes        prometheus.Gauge
	DefinitionLoads  prometheus.Counter
	DefinitionErrors prometheus.Counter
}

// TrapMetrics contains trap dispatch metrics
type TrapMetrics struct {
	TrapsPublished prometheus.Counter
	TrapsDelivered prometheus.Counter
	TrapsDropped   prometheus.Counter
	TrapsBySource  *prometheus.CounterVec
	Subscribers    prometheus.Gauge
	RetainedEvents prometheus.Gauge
}

// SessionMetrics contains device session metrics
type SessionMetrics struct {
	DevicesRegistered prometheus.Gauge
	DevicesByState    *prometheus.GaugeVec
	ProbesTotal       prometheus.Counter
	ProbeFailures     prometheus.Counter
}

// WebhookMetrics contains webhook delivery metrics
type WebhookMetrics struct {
	WebhooksDelivered prometheus.Counter
	WebhooksFailed    prometheus.Counter
	DeliveryTime      prometheus.Histogram
	QueueLength       prometheus.Gauge
}

// SystemMetrics contains system resource metrics
type SystemMetrics struct {
	MemoryUsage    prometheus.Gauge
	GoroutineCount prometheus.Gauge
	Uptime         prometheus.Gauge
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(cfg config.Provider, logger logging.Logger) (*MetricsManager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	metricsConfig, err := loadMetricsConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics configuration: %w", err)
	}

	registry := prometheus.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())

	manager := &MetricsManager{
		config:       metricsConfig,
		logger:       logger.With("component", "metrics"),
		registry:     registry,
		healthStatus: make(map[string]bool),
		readyStatus:  false,
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := manager.initializeMetrics(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return manager, nil
}

// initializeMetrics creates and registers all Prometheus metrics
func (m *MetricsManager) initializeMetrics() error {
	namespace := m.config.Namespace

	m.operationMetrics = &OperationMetrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of management operations by type and outcome",
		}, []string{"operation", "outcome"}),
		OperationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing management operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		WalkResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "walk_results",
			Help:      "Number of results returned per walk",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
		}),
		WalksTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walks_truncated_total",
			Help:      "Total number of walks truncated at the result cap",
		}),
		TreeNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tree_nodes",
			Help:      "Number of nodes in the loaded object tree",
		}),
		DefinitionLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "definition_loads_total",
			Help:      "Total number of object definition loads",
		}),
		DefinitionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "definition_errors_total",
			Help:      "Total number of failed object definition loads",
		}),
	}

	m.trapMetrics = &TrapMetrics{
		TrapsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_published_total",
			Help:      "Total number of trap events published",
		}),
		TrapsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_delivered_total",
			Help:      "Total number of trap deliveries to subscribers",
		}),
		TrapsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_dropped_total",
			Help:      "Total number of trap deliveries dropped on full subscriber buffers",
		}),
		TrapsBySource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_by_source_total",
			Help:      "Total number of traps by source device",
		}, []string{"device_id"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trap_subscribers",
			Help:      "Current number of trap subscribers",
		}),
		RetainedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "traps_retained",
			Help:      "Number of trap events retained in history",
		}),
	}

	m.sessionMetrics = &SessionMetrics{
		DevicesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_registered",
			Help:      "Number of registered devices",
		}),
		DevicesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_by_state",
			Help:      "Number of devices by liveness state",
		}, []string{"state"}),
		ProbesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Total number of connectivity probes",
		}),
		ProbeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Total number of failed connectivity probes",
		}),
	}

	m.webhookMetrics = &WebhookMetrics{
		WebhooksDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_delivered_total",
			Help:      "Total number of webhooks successfully delivered",
		}),
		WebhooksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_failed_total",
			Help:      "Total number of webhook delivery failures",
		}),
		DeliveryTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_duration_seconds",
			Help:      "Time spent delivering webhooks",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_queue_length",
			Help:      "Current length of the webhook delivery queue",
		}),
	}

	m.systemMetrics = &SystemMetrics{
		MemoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Current memory usage in bytes",
		}),
		GoroutineCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		}),
		Uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		}),
	}

	collectors := []prometheus.Collector{
		m.operationMetrics.OperationsTotal,
		m.operationMetrics.OperationTime,
		m.operationMetrics.WalkResults,
		m.operationMetrics.WalksTruncated,
		m.operationMetrics.TreeNodes,
		m.operationMetrics.DefinitionLoads,
		m.operationMetrics.DefinitionErrors,

		m.trapMetrics.TrapsPublished,
		m.trapMetrics.TrapsDelivered,
		m.trapMetrics.TrapsDropped,
		m.trapMetrics.TrapsBySource,
		m.trapMetrics.Subscribers,
		m.trapMetrics.RetainedEvents,

		m.sessionMetrics.DevicesRegistered,
		m.sessionMetrics.DevicesByState,
		m.sessionMetrics.ProbesTotal,
		m.sessionMetrics.ProbeFailures,

		m.webhookMetrics.WebhooksDelivered,
		m.webhookMetrics.WebhooksFailed,
		m.webhookMetrics.DeliveryTime,
		m.webhookMetrics.QueueLength,

		m.systemMetrics.MemoryUsage,
		m.systemMetrics.GoroutineCount,
		m.systemMetrics.Uptime,
	}

	for _, collector := range collectors {
		if err := m.registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

// Start starts the metrics server and background monitoring
func (m *MetricsManager) Start() error {
	if !m.config.Enabled {
		m.logger.Info("Metrics collection is disabled")
		return nil
	}

	m.logger.Info("Starting metrics server",
		"listen_address", m.config.ListenAddress,
		"metrics_path", m.config.MetricsPath)

	mux := http.NewServeMux()

	mux.Handle(m.config.MetricsPath, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	mux.HandleFunc(m.config.HealthPath, m.healthHandler)
	mux.HandleFunc(m.config.ReadyPath, m.readyHandler)

	m.server = &http.Server{
		Addr:    m.config.ListenAddress,
		Handler: mux,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server error", "error", err.Error())
		}
	}()

	m.wg.Add(1)
	go m.collectSystemMetrics()

	m.logger.Info("Metrics server started successfully")
	return nil
}

// Stop stops the metrics server and background monitoring
func (m *MetricsManager) Stop() error {
	if !m.config.Enabled {
		return nil
	}

	m.logger.Info("Stopping metrics server")

	m.cancel()

	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Error("Error shutting down metrics server", "error", err.Error())
		}
	}

	m.wg.Wait()

	m.logger.Info("Metrics server stopped")
	return nil
}

// collectSystemMetrics collects system resource metrics periodically
func (m *MetricsManager) collectSystemMetrics() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.UpdateInterval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.updateSystemMetrics(startTime)
		}
	}
}

// updateSystemMetrics updates system resource metrics
func (m *MetricsManager) updateSystemMetrics(startTime time.Time) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.systemMetrics.MemoryUsage.Set(float64(memStats.Alloc))
	m.systemMetrics.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.systemMetrics.Uptime.Set(time.Since(startTime).Seconds())
}

// healthHandler handles health check requests
func (m *MetricsManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allHealthy := true
	for component, healthy := range m.healthStatus {
		if !healthy {
			allHealthy = false
			m.logger.Debug("Component unhealthy", "component", component)
		}
	}

	if allHealthy {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("UNHEALTHY"))
	}
}

// readyHandler handles readiness check requests
func (m *MetricsManager) readyHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	ready := m.readyStatus
	m.mu.RUnlock()

	if ready {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
	}
}

// SetComponentHealth sets the health status for a component
func (m *MetricsManager) SetComponentHealth(component string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.healthStatus[component] = healthy
	m.logger.Debug("Component health updated",
		"component", component,
		"healthy", healthy)
}

// SetReady sets the overall readiness status
func (m *MetricsManager) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readyStatus = ready
	m.logger.Info("Readiness status updated", "ready", ready)
}

// GetOperationMetrics returns the operation metrics instance
func (m *MetricsManager) GetOperationMetrics() *OperationMetrics {
	return m.operationMetrics
}

// GetTrapMetrics returns the trap metrics instance
func (m *MetricsManager) GetTrapMetrics() *TrapMetrics {
	return m.trapMetrics
}

// GetSessionMetrics returns the session metrics instance
func (m *MetricsManager) GetSessionMetrics() *SessionMetrics {
	return m.sessionMetrics
}

// GetWebhookMetrics returns the webhook metrics instance
func (m *MetricsManager) GetWebhookMetrics() *WebhookMetrics {
	return m.webhookMetrics
}

// GetSystemMetrics returns the system metrics instance
func (m *MetricsManager) GetSystemMetrics() *SystemMetrics {
	return m.systemMetrics
}

// loadMetricsConfig loads metrics configuration from the config provider
func loadMetricsConfig(cfg config.Provider) (*MetricsConfig, error) {
	metricsConfig := DefaultMetricsConfig()

	if enabled, err := cfg.GetBool("metrics.enabled", metricsConfig.Enabled); err == nil {
		metricsConfig.Enabled = enabled
	}

	if listenAddress, err := cfg.GetString("metrics.listen_address", metricsConfig.ListenAddress); err == nil {
		metricsConfig.ListenAddress = listenAddress
	}

	if metricsPath, err := cfg.GetString("metrics.metrics_path", metricsConfig.MetricsPath); err == nil {
		metricsConfig.MetricsPath = metricsPath
	}

	if healthPath, err := cfg.GetString("metrics.health_path", metricsConfig.HealthPath); err == nil {
		metricsConfig.HealthPath = healthPath
	}

	if readyPath, err := cfg.GetString("metrics.ready_path", metricsConfig.ReadyPath); err == nil {
		metricsConfig.ReadyPath = readyPath
	}

	if updateInterval, err := cfg.GetDuration("metrics.update_interval", metricsConfig.UpdateInterval); err == nil {
		metricsConfig.UpdateInterval = updateInterval
	}

	if namespace, err := cfg.GetString("metrics.namespace", metricsConfig.Namespace); err == nil {
		metricsConfig.Namespace = namespace
	}

	return metricsConfig, nil
}
