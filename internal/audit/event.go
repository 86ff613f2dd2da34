// Package audit captures the security decisions the gateway makes about each
// request. Emission never blocks request handling: events are enqueued into a
// bounded ring buffer and drained by a background worker that fans them out
// to the configured sinks.
package audit

import "time"

// EventType identifies the gateway decision an event records.
type EventType string

const (
	EventAuthSucceeded       EventType = "auth_succeeded"
	EventAuthFailed          EventType = "auth_failed"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventRateLimitDegraded   EventType = "rate_limit_degraded"
	EventAuthzAllowed        EventType = "authz_allowed"
	EventAuthzDenied         EventType = "authz_denied"
	EventPublicBypass        EventType = "public_bypass"
	EventRequestForwarded    EventType = "request_forwarded"
	EventUpstreamUnreachable EventType = "upstream_unreachable"
)

// Severity levels for SIEM routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// eventSeverities maps each event type to its severity.
// Warning: a caller was turned away (expected under attack, worth alerting on in volume).
// Critical: the gateway itself is degraded and decisions may be weaker than configured.
var eventSeverities = map[EventType]Severity{
	EventAuthSucceeded:       SeverityInfo,
	EventAuthFailed:          SeverityWarning,
	EventRateLimitExceeded:   SeverityWarning,
	EventRateLimitDegraded:   SeverityCritical,
	EventAuthzAllowed:        SeverityInfo,
	EventAuthzDenied:         SeverityWarning,
	EventPublicBypass:        SeverityInfo,
	EventRequestForwarded:    SeverityInfo,
	EventUpstreamUnreachable: SeverityCritical,
}

// Severity returns the severity for this event type.
// Unknown types default to SeverityInfo.
func (t EventType) Severity() Severity {
	if sev, ok := eventSeverities[t]; ok {
		return sev
	}
	return SeverityInfo
}

// Event is one recorded gateway decision. The recorder enriches zero-valued
// fields from the request context before enqueueing, so emitters only fill
// what the decision itself produced. Events never carry token material.
type Event struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	Severity      Severity          `json:"severity"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	InstanceID    string            `json:"instance_id,omitempty"`
	Subject       string            `json:"subject,omitempty"`
	UserType      string            `json:"user_type,omitempty"`
	Method        string            `json:"method,omitempty"`
	Path          string            `json:"path,omitempty"`
	ClientAddr    string            `json:"client_addr,omitempty"`
	ClientDevice  string            `json:"client_device,omitempty"`
	Attrs         map[string]string `json:"attrs,omitempty"`
}
