package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ArchiveSink persists audit events to PostgreSQL for long-term retention.
// Inserts are keyed by event ID with ON CONFLICT DO NOTHING, so redelivering
// a batch after a partial failure cannot duplicate rows.
type ArchiveSink struct {
	db *sql.DB
}

// NewArchiveSink creates an ArchiveSink over an open database handle.
func NewArchiveSink(db *sql.DB) (*ArchiveSink, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	return &ArchiveSink{db: db}, nil
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id             UUID PRIMARY KEY,
	event_type     TEXT NOT NULL,
	severity       TEXT NOT NULL,
	occurred_at    TIMESTAMPTZ NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	instance_id    TEXT NOT NULL DEFAULT '',
	subject        TEXT NOT NULL DEFAULT '',
	user_type      TEXT NOT NULL DEFAULT '',
	method         TEXT NOT NULL DEFAULT '',
	path           TEXT NOT NULL DEFAULT '',
	client_addr    TEXT NOT NULL DEFAULT '',
	client_device  TEXT NOT NULL DEFAULT '',
	attrs          JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_audit_events_correlation ON audit_events (correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events (occurred_at);
`

// EnsureSchema creates the audit table and indexes if they do not exist.
func (s *ArchiveSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, archiveSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Name implements Sink.
func (s *ArchiveSink) Name() string { return "archive" }

// Publish implements Sink.
func (s *ArchiveSink) Publish(ctx context.Context, events []Event) error {
	const insert = `
		INSERT INTO audit_events (
			id, event_type, severity, occurred_at, correlation_id, instance_id,
			subject, user_type, method, path, client_addr, client_device, attrs
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	for _, e := range events {
		attrsJSON, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("marshal attrs for audit event %s: %w", e.ID, err)
		}
		if e.Attrs == nil {
			attrsJSON = []byte("{}")
		}

		_, err = s.db.ExecContext(ctx, insert,
			e.ID,
			string(e.Type),
			string(e.Severity),
			e.Timestamp.UTC(),
			e.CorrelationID,
			e.InstanceID,
			e.Subject,
			e.UserType,
			e.Method,
			e.Path,
			e.ClientAddr,
			e.ClientDevice,
			attrsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert audit event %s: %w", e.ID, err)
		}
	}
	return nil
}
