package audit

import (
	"context"
	"errors"
	"log/slog"
)

//go:generate mockgen -source=sink.go -destination=mocks/mocks.go -package=mocks

// Sink delivers batches of audit events to one destination. Delivery is best
// effort: the worker logs and counts failures but does not retry, and a
// failing sink never blocks the others.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Publish delivers a batch. Implementations must honor ctx cancellation.
	Publish(ctx context.Context, events []Event) error
}

// LogSink writes audit events to the structured log. It is the always-on
// sink: with no broker or archive configured, the trail still lands in the
// process log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) (*LogSink, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &LogSink{logger: logger}, nil
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Publish implements Sink. It never fails.
func (s *LogSink) Publish(ctx context.Context, events []Event) error {
	for _, e := range events {
		args := []any{
			"audit_id", e.ID,
			"severity", string(e.Severity),
			"occurred_at", e.Timestamp,
			"correlation_id", e.CorrelationID,
			"instance_id", e.InstanceID,
			"log_type", "audit_trail",
		}
		if e.Subject != "" {
			args = append(args, "subject", e.Subject)
		}
		if e.UserType != "" {
			args = append(args, "user_type", e.UserType)
		}
		if e.Method != "" {
			args = append(args, "method", e.Method, "path", e.Path)
		}
		if e.ClientAddr != "" {
			args = append(args, "client_addr", e.ClientAddr)
		}
		if e.ClientDevice != "" {
			args = append(args, "client_device", e.ClientDevice)
		}
		for k, v := range e.Attrs {
			args = append(args, k, v)
		}
		s.logger.Log(ctx, levelFor(e.Severity), string(e.Type), args...)
	}
	return nil
}
