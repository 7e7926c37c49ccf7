// Package audit records state-changing actions as structured audit events.
package audit

import (
	"time"

	"go.uber.org/zap"
)

// Event is one audited action.
type Event struct {
	Action     string            // e.g. "run.finalize", "alert.suppress"
	EntityType string            // e.g. "run", "signal", "alert", "judgment"
	EntityID   string
	TenantID   string            // empty for payer-scoped entities
	Metadata   map[string]string
	Timestamp  time.Time
}

// Recorder records audit events. Implementations must not block the caller
// on downstream sinks.
type Recorder interface {
	Record(ev Event)
}

// LogRecorder writes audit events to the structured log under a dedicated
// "audit" logger name, which log shippers route to the audit stream.
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder creates a log-backed audit recorder.
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.Named("audit")}
}

// Record writes the event.
func (r *LogRecorder) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	fields := []zap.Field{
		zap.String("action", ev.Action),
		zap.String("entity_type", ev.EntityType),
		zap.String("entity_id", ev.EntityID),
		zap.Time("timestamp", ev.Timestamp),
	}
	if ev.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", ev.TenantID))
	}
	for k, v := range ev.Metadata {
		fields = append(fields, zap.String("meta_"+k, v))
	}
	r.logger.Info(ev.Action, fields...)
}

// NopRecorder discards all events.
type NopRecorder struct{}

// Record discards the event.
func (NopRecorder) Record(Event) {}
