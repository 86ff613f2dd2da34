package audit

import (
	"context"
	"log/slog"

	"perimeter/pkg/attrs"
	"perimeter/pkg/requestcontext"
)

// Log writes a gateway decision to both the structured logger and the audit
// trail. It enriches the log line with the correlation ID and extracts the
// subject and user type from attrList; all remaining pairs travel with the
// event as attributes.
func Log(ctx context.Context, logger *slog.Logger, rec *Recorder, event EventType, attrList ...any) {
	extra := attrs.StringMap(attrList)
	delete(extra, "subject")
	delete(extra, "user_type")

	logArgs := attrList
	if corrID := requestcontext.CorrelationID(ctx); corrID != "" {
		logArgs = append(logArgs, "correlation_id", corrID)
	}
	logArgs = append(logArgs, "event", string(event), "log_type", "audit")

	if logger != nil {
		logger.Log(ctx, levelFor(event.Severity()), string(event), logArgs...)
	}

	if rec == nil {
		return
	}
	rec.Record(ctx, Event{
		Type:     event,
		Subject:  extractSubject(attrList),
		UserType: attrs.ExtractString(attrList, "user_type"),
		Attrs:    extra,
	})
}

func extractSubject(attrList []any) string {
	for _, key := range []string{"subject", "identifier", "client_addr"} {
		if val := attrs.ExtractString(attrList, key); val != "" {
			return val
		}
	}
	return ""
}

func levelFor(sev Severity) slog.Level {
	switch sev {
	case SeverityCritical:
		return slog.LevelError
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
