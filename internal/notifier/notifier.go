// Package notifier delivers trap events to webhook endpoints in
// Alertmanager format. It subscribes to the trap dispatcher and fans
// deliveries out over a bounded worker pool with per-webhook retries.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"

	"github.com/geekxflood/proteus/internal/alerts"
	"github.com/geekxflood/proteus/internal/client"
	"github.com/geekxflood/proteus/internal/dispatch"
)

// NotifierConfig defines the configuration for the notification system
type NotifierConfig struct {
	EnableNotifications bool            `json:"enable_notifications"`
	MaxConcurrent       int             `json:"max_concurrent"`
	QueueSize           int             `json:"queue_size"`
	RetryAttempts       int             `json:"retry_attempts"`
	RetryDelay          time.Duration   `json:"retry_delay"`
	Webhooks            []WebhookConfig `json:"webhooks"`
}

// WebhookConfig defines a webhook endpoint configuration
type WebhookConfig struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Enabled     bool              `json:"enabled"`
	Timeout     time.Duration     `json:"timeout"`
	MinSeverity string            `json:"min_severity"`
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers"`
}

// deliveryTask is a single queued webhook delivery
type deliveryTask struct {
	event   dispatch.TrapEvent
	webhook WebhookConfig
	attempt int
}

// NotifierStats tracks notification statistics
type NotifierStats struct {
	NotificationsSent      int64 `json:"notifications_sent"`
	NotificationsSucceeded int64 `json:"notifications_succeeded"`
	NotificationsFailed    int64 `json:"notifications_failed"`
	QueueLength            int   `json:"queue_length"`
	QueueFull              int64 `json:"queue_full"`
}

// Notifier manages webhook notifications for dispatched traps
type Notifier struct {
	config     *NotifierConfig
	client     *client.HTTPClient
	converter  *alerts.AlertConverter
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger

	taskQueue chan deliveryTask
	sub       *dispatch.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stats     NotifierStats
	mu        sync.RWMutex
}

// NewNotifier creates a new notification service over the trap dispatcher
func NewNotifier(cfg config.Provider, httpClient *client.HTTPClient, dispatcher *dispatch.Dispatcher, logger logging.Logger) (*Notifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("trap dispatcher cannot be nil")
	}

	notifierConfig, err := loadNotifierConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifier configuration: %w", err)
	}

	return &Notifier{
		config:     notifierConfig,
		client:     httpClient,
		converter:  alerts.NewAlertConverter(),
		dispatcher: dispatcher,
		logger:     logger.With("component", "notifier"),
		taskQueue:  make(chan deliveryTask, notifierConfig.QueueSize),
	}, nil
}

// loadNotifierConfig loads the notifier configuration from the config provider
func loadNotifierConfig(cfg config.Provider) (*NotifierConfig, error) {
	notifierConfig := &NotifierConfig{
		EnableNotifications: true,
		MaxConcurrent:       5,
		QueueSize:           1000,
		RetryAttempts:       3,
		RetryDelay:          5 * time.Second,
	}

	if enabled, err := cfg.GetBool("notifier.enable_notifications", notifierConfig.EnableNotifications); err == nil {
		notifierConfig.EnableNotifications = enabled
	}

	if maxConcurrent, err := cfg.GetInt("notifier.max_concurrent", notifierConfig.MaxConcurrent); err == nil {
		notifierConfig.MaxConcurrent = maxConcurrent
	}

	if queueSize, err := cfg.GetInt("notifier.queue_size", notifierConfig.QueueSize); err == nil {
		notifierConfig.QueueSize = queueSize
	}

	if retryAttempts, err := cfg.GetInt("notifier.retry_attempts", notifierConfig.RetryAttempts); err == nil {
		notifierConfig.RetryAttempts = retryAttempts
	}

	if retryDelay, err := cfg.GetDuration("notifier.retry_delay", notifierConfig.RetryDelay); err == nil {
		notifierConfig.RetryDelay = retryDelay
	}

	if webhooks, err := loadWebhookConfigs(cfg); err == nil {
		notifierConfig.Webhooks = webhooks
	}

	return notifierConfig, nil
}

// loadWebhookConfigs loads webhook configurations from the config provider
func loadWebhookConfigs(cfg config.Provider) ([]WebhookConfig, error) {
	webhookMap, err := cfg.GetMap("notifier.webhooks")
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(webhookMap)
	if err != nil {
		return nil, err
	}

	var webhooks []WebhookConfig
	if err := json.Unmarshal(jsonData, &webhooks); err != nil {
		return nil, err
	}

	for i := range webhooks {
		if webhooks[i].Method == "" {
			webhooks[i].Method = "POST"
		}
		if webhooks[i].ContentType == "" {
			webhooks[i].ContentType = "application/json"
		}
		if webhooks[i].Timeout == 0 {
			webhooks[i].Timeout = 10 * time.Second
		}
		if webhooks[i].MinSeverity == "" {
			webhooks[i].MinSeverity = string(dispatch.SeverityInfo)
		}
	}

	return webhooks, nil
}

// Start subscribes to the dispatcher and starts the delivery workers
func (n *Notifier) Start(ctx context.Context) error {
	if !n.config.EnableNotifications {
		n.logger.Info("Notifications are disabled")
		return nil
	}

	sub, err := n.dispatcher.Subscribe()
	if err != nil {
		return fmt.Errorf("failed to subscribe to trap dispatcher: %w", err)
	}
	n.sub = sub

	ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(1)
	go n.consumeLoop(ctx)

	for i := 0; i < n.config.MaxConcurrent; i++ {
		n.wg.Add(1)
		go n.worker(ctx, i)
	}

	n.logger.Info("Notification service started",
		"max_concurrent", n.config.MaxConcurrent,
		"queue_size", n.config.QueueSize,
		"webhooks", len(n.config.Webhooks))

	return nil
}

// Stop stops the notification service gracefully
func (n *Notifier) Stop() error {
	if n.cancel == nil {
		return nil
	}

	n.dispatcher.Unsubscribe(n.sub)
	n.cancel()
	n.wg.Wait()

	n.logger.Info("Notification service stopped")
	return nil
}

// consumeLoop receives dispatched traps and queues webhook deliveries
func (n *Notifier) consumeLoop(ctx context.Context) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-n.sub.C:
			if !ok {
				return
			}
			n.enqueue(event)
		}
	}
}

// enqueue queues one delivery task per matching webhook
func (n *Notifier) enqueue(event dispatch.TrapEvent) {
	for _, webhook := range n.config.Webhooks {
		if !webhook.Enabled {
			continue
		}

		if !severityAtLeast(event.Severity, dispatch.Severity(webhook.MinSeverity)) {
			continue
		}

		task := deliveryTask{event: event, webhook: webhook}

		select {
		case n.taskQueue <- task:
		default:
			n.mu.Lock()
			n.stats.QueueFull++
			n.mu.Unlock()
			n.logger.Warn("Notification queue full, dropping delivery",
				"webhook", webhook.Name,
				"trap_oid", event.TrapOID)
		}
	}
}

// severityRank orders severities for webhook threshold filtering
var severityRank = map[dispatch.Severity]int{
	dispatch.SeverityInfo:     0,
	dispatch.SeverityWarning:  1,
	dispatch.SeverityError:    2,
	dispatch.SeverityCritical: 3,
}

func severityAtLeast(severity, threshold dispatch.Severity) bool {
	return severityRank[severity] >= severityRank[threshold]
}

// worker processes delivery tasks from the queue
func (n *Notifier) worker(ctx context.Context, id int) {
	defer n.wg.Done()

	n.logger.Debug("Notification worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-n.taskQueue:
			n.deliver(ctx, task)
		}
	}
}

// deliver sends one webhook delivery and schedules a retry on failure
func (n *Notifier) deliver(ctx context.Context, task deliveryTask) {
	payload, err := n.converter.ConvertEventToAlertmanagerPayload(task.event)
	if err != nil {
		n.recordResult(false)
		n.logger.Warn("Failed to build notification payload",
			"webhook", task.webhook.Name,
			"trap_oid", task.event.TrapOID,
			"error", err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, task.webhook.Timeout)
	defer cancel()

	req := &client.WebhookRequest{
		Method:      task.webhook.Method,
		URL:         task.webhook.URL,
		Body:        payload,
		Headers:     task.webhook.Headers,
		ContentType: task.webhook.ContentType,
	}

	resp, err := n.client.SendWebhook(reqCtx, req)
	if err == nil && resp.Success {
		n.recordResult(true)
		n.logger.Debug("Notification delivered",
			"webhook", task.webhook.Name,
			"trap_oid", task.event.TrapOID,
			"attempt", task.attempt)
		return
	}

	n.recordResult(false)

	errText := "delivery failed"
	if err != nil {
		errText = err.Error()
	} else if resp != nil {
		errText = resp.Error
	}

	n.logger.Warn("Notification delivery failed",
		"webhook", task.webhook.Name,
		"trap_oid", task.event.TrapOID,
		"attempt", task.attempt,
		"error", errText)

	if task.attempt < n.config.RetryAttempts {
		task.attempt++

		n.wg.Add(1)
		go func(task deliveryTask) {
			defer n.wg.Done()
			select {
			case <-ctx.Done():
			case <-time.After(n.config.RetryDelay):
				select {
				case n.taskQueue <- task:
				default:
					n.mu.Lock()
					n.stats.QueueFull++
					n.mu.Unlock()
				}
			}
		}(task)
	}
}

func (n *Notifier) recordResult(success bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stats.NotificationsSent++
	if success {
		n.stats.NotificationsSucceeded++
	} else {
		n.stats.NotificationsFailed++
	}
}

// GetStats returns current notification statistics
func (n *Notifier) GetStats() NotifierStats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	stats := n.stats
	stats.QueueLength = len(n.taskQueue)
	return stats
}
