// internal/notify/notify.go
package notify

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Severity classifies a notification
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notifier is the external incident/notification collaborator
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string, evidence map[string]string) error
}

// LogNotifier writes notifications to the log, the default sink when no
// incident system is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs the notification at a level matching its severity
func (n *LogNotifier) Notify(_ context.Context, severity Severity, message string, evidence map[string]string) error {
	fields := make([]zap.Field, 0, len(evidence)+1)
	fields = append(fields, zap.String("severity", string(severity)))
	for k, v := range evidence {
		fields = append(fields, zap.String(k, v))
	}

	switch severity {
	case SeverityCritical:
		n.logger.Error(message, fields...)
	case SeverityWarning:
		n.logger.Warn(message, fields...)
	default:
		n.logger.Info(message, fields...)
	}
	return nil
}

// Dispatcher rate-limits notifications so a flapping node cannot flood the
// incident system. Critical notifications bypass the limiter.
type Dispatcher struct {
	notifier Notifier
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher allowing ratePerMinute notifications
// with the given burst.
func NewDispatcher(notifier Notifier, ratePerMinute, burst int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60), burst),
		logger:   logger.Named("notify"),
	}
}

// Dispatch forwards the notification, dropping non-critical ones over rate
func (d *Dispatcher) Dispatch(ctx context.Context, severity Severity, message string, evidence map[string]string) {
	if severity != SeverityCritical && !d.limiter.Allow() {
		d.logger.Warn("notification dropped by rate limit", zap.String("message", message))
		return
	}
	if err := d.notifier.Notify(ctx, severity, message, evidence); err != nil {
		d.logger.Error("notification delivery failed", zap.Error(err))
	}
}
