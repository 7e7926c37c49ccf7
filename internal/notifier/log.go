package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/models"
)

// LogNotifier writes alerts as structured log lines. It is the default
// channel when no external transport is wired up.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name returns the notifier name.
func (n *LogNotifier) Name() string {
	return "log"
}

// Send logs the alert payload.
func (n *LogNotifier) Send(ctx context.Context, alert *models.CandidateAlert) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("tenant_id", alert.TenantID),
		zap.String("fingerprint", alert.Fingerprint),
	}
	for k, v := range alert.Payload.Flatten() {
		fields = append(fields, zap.String(k, v))
	}
	n.logger.Info("alert", fields...)
	return nil
}

// Close is a no-op.
func (n *LogNotifier) Close() error {
	return nil
}
