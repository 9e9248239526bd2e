package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/garage-relay/internal/audit"
	"github.com/nerrad567/garage-relay/internal/infrastructure/influxdb"
)

// EventPublisher is the part of the MQTT client the MQTT sink needs.
type EventPublisher interface {
	PublishEvent(eventType string, payload []byte) error
}

// MQTTSink publishes each event as JSON on {prefix}/event/{type}.
type MQTTSink struct {
	client EventPublisher
}

// NewMQTTSink creates a sink publishing through client.
func NewMQTTSink(client EventPublisher) *MQTTSink {
	return &MQTTSink{client: client}
}

// Name implements Sink.
func (*MQTTSink) Name() string { return "mqtt" }

// Handle implements Sink.
func (s *MQTTSink) Handle(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	return s.client.PublishEvent(string(e.Type), payload)
}

// PulseWriter is the part of the InfluxDB client the InfluxDB sink needs.
type PulseWriter interface {
	WriteDoorPulse(pin int, result string, hold, took time.Duration, at time.Time)
	WriteRegistration(at time.Time)
}

// InfluxSink records door pulses and registrations as time series.
type InfluxSink struct {
	writer PulseWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w PulseWriter) *InfluxSink {
	return &InfluxSink{writer: w}
}

// Name implements Sink.
func (*InfluxSink) Name() string { return "influxdb" }

// Handle implements Sink.
func (s *InfluxSink) Handle(_ context.Context, e Event) error {
	switch e.Type {
	case DoorToggled:
		s.writer.WriteDoorPulse(e.Pin, influxdb.ResultOK, e.Hold(), e.Duration(), e.Timestamp)
	case DoorFailed:
		s.writer.WriteDoorPulse(e.Pin, influxdb.ResultFailed, e.Hold(), e.Duration(), e.Timestamp)
	case UserRegistered:
		s.writer.WriteRegistration(e.Timestamp)
	}
	return nil
}

// AuditSink writes every event to the audit log.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates a sink writing to repo.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// Name implements Sink.
func (*AuditSink) Name() string { return "audit" }

// Handle implements Sink.
func (s *AuditSink) Handle(ctx context.Context, e Event) error {
	entry := &audit.AuditLog{
		Source:    e.Source,
		CreatedAt: e.Timestamp,
	}

	switch e.Type {
	case DoorToggled, DoorFailed:
		entry.Action = audit.ActionToggle
		if e.Type == DoorFailed {
			entry.Action = audit.ActionFailed
		}
		entry.EntityType = audit.EntityDoor
		entry.EntityID = strconv.Itoa(e.Pin)
		entry.Details = map[string]any{
			"key_id":      e.KeyID,
			"hold_ms":     e.HoldMS,
			"duration_ms": e.DurationMS,
		}
		if e.Error != "" {
			entry.Details["error"] = e.Error
		}
	case UserRegistered:
		entry.Action = audit.ActionRegister
		entry.EntityType = audit.EntityUser
		entry.EntityID = e.KeyID
		entry.Details = map[string]any{"name": e.Name}
	default:
		return nil
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("recording %s: %w", e.Type, err)
	}
	return nil
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, e Event) error
}

// Name implements Sink.
func (f SinkFunc) Name() string { return f.SinkName }

// Handle implements Sink.
func (f SinkFunc) Handle(ctx context.Context, e Event) error { return f.Fn(ctx, e) }
