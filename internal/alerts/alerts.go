// Package alerts provides Prometheus alert model integration for trap notifications.
package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/common/model"

	"github.com/geekxflood/proteus/internal/dispatch"
)

// AlertConverter converts dispatched trap events to Prometheus alert format
type AlertConverter struct {
	defaultLabels model.LabelSet
}

// NewAlertConverter creates a new alert converter with default labels
func NewAlertConverter() *AlertConverter {
	return &AlertConverter{
		defaultLabels: model.LabelSet{
			"alertname": "SNMPTrap",
			"service":   "proteus-snmp-engine",
		},
	}
}

// ConvertEvent converts a trap event to a Prometheus alert
func (ac *AlertConverter) ConvertEvent(event dispatch.TrapEvent) (*model.Alert, error) {
	if event.TrapOID == "" {
		return nil, fmt.Errorf("trap OID cannot be empty")
	}

	labels := model.LabelSet{
		"job":       "snmp-trap",
		"device_id": model.LabelValue(event.DeviceID),
		"instance":  model.LabelValue(event.DeviceID),
		"trap_oid":  model.LabelValue(event.TrapOID),
		"severity":  model.LabelValue(MapSeverity(string(event.Severity))),
	}

	for name, value := range ac.defaultLabels {
		if _, exists := labels[name]; !exists {
			labels[name] = value
		}
	}

	annotations := model.LabelSet{
		"summary": model.LabelValue(fmt.Sprintf("SNMP trap %s from %s", event.TrapOID, event.DeviceID)),
		"description": model.LabelValue(fmt.Sprintf(
			"SNMP trap received from device %s (OID: %s, severity: %s)",
			event.DeviceID, event.TrapOID, event.Severity,
		)),
	}

	if event.Message != "" {
		annotations["message"] = model.LabelValue(event.Message)
	}

	if len(event.Varbinds) > 0 {
		if varbindsJSON, err := json.Marshal(event.Varbinds); err == nil {
			annotations["varbinds"] = model.LabelValue(varbindsJSON)
		}
	}

	startsAt := event.Timestamp
	if startsAt.IsZero() {
		startsAt = time.Now()
	}

	return &model.Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    startsAt,
	}, nil
}

// ConvertEvents converts multiple trap events to Prometheus alerts
func (ac *AlertConverter) ConvertEvents(events []dispatch.TrapEvent) ([]*model.Alert, error) {
	if len(events) == 0 {
		return nil, nil
	}

	converted := make([]*model.Alert, 0, len(events))
	for _, event := range events {
		alert, err := ac.ConvertEvent(event)
		if err != nil {
			return nil, fmt.Errorf("failed to convert trap %s: %w", event.TrapOID, err)
		}
		converted = append(converted, alert)
	}

	return converted, nil
}

// SeverityMapping maps trap severities to Prometheus alert severities
var SeverityMapping = map[string]string{
	"critical": "critical",
	"error":    "major",
	"warning":  "minor",
	"info":     "info",
}

// MapSeverity maps a trap severity to a Prometheus severity
func MapSeverity(trapSeverity string) string {
	if promSeverity, exists := SeverityMapping[trapSeverity]; exists {
		return promSeverity
	}
	return "info" // default
}

// AlertmanagerPayload represents the payload format expected by Alertmanager
type AlertmanagerPayload struct {
	Alerts []AlertmanagerAlert `json:"alerts"`
}

// AlertmanagerAlert represents a single alert in Alertmanager format
type AlertmanagerAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
}

// ConvertToAlertmanagerPayload converts Prometheus alerts to Alertmanager payload format
func (ac *AlertConverter) ConvertToAlertmanagerPayload(converted []*model.Alert) *AlertmanagerPayload {
	payload := &AlertmanagerPayload{
		Alerts: make([]AlertmanagerAlert, len(converted)),
	}

	for i, alert := range converted {
		labels := make(map[string]string)
		for k, v := range alert.Labels {
			labels[string(k)] = string(v)
		}

		annotations := make(map[string]string)
		for k, v := range alert.Annotations {
			annotations[string(k)] = string(v)
		}

		payload.Alerts[i] = AlertmanagerAlert{
			Labels:       labels,
			Annotations:  annotations,
			StartsAt:     alert.StartsAt,
			EndsAt:       alert.EndsAt,
			GeneratorURL: alert.GeneratorURL,
		}
	}

	return payload
}

// ConvertEventToAlertmanagerPayload converts a single trap event directly to Alertmanager payload
func (ac *AlertConverter) ConvertEventToAlertmanagerPayload(event dispatch.TrapEvent) (*AlertmanagerPayload, error) {
	alert, err := ac.ConvertEvent(event)
	if err != nil {
		return nil, err
	}

	return ac.ConvertToAlertmanagerPayload([]*model.Alert{alert}), nil
}

// AddDefaultLabel adds a default label applied to every alert
func (ac *AlertConverter) AddDefaultLabel(key, value string) {
	if ac.defaultLabels == nil {
		ac.defaultLabels = make(model.LabelSet)
	}
	ac.defaultLabels[model.LabelName(key)] = model.LabelValue(value)
}
