//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"perimeter/internal/audit"
	"perimeter/pkg/testutil/containers"
)

type ArchiveSinkSuite struct {
	suite.Suite
	pg   *containers.PostgresContainer
	sink *audit.ArchiveSink
}

func TestArchiveSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ArchiveSinkSuite))
}

func (s *ArchiveSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.pg = mgr.GetPostgres(s.T())

	var err error
	s.sink, err = audit.NewArchiveSink(s.pg.DB)
	s.Require().NoError(err)
	s.Require().NoError(s.sink.EnsureSchema(context.Background()))
}

func (s *ArchiveSinkSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "audit_events"))
}

func makeArchivedEvent(eventType audit.EventType) audit.Event {
	return audit.Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Severity:      eventType.Severity(),
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		CorrelationID: uuid.NewString(),
		InstanceID:    "gw-itest-1",
		Subject:       "user-42",
		UserType:      "U",
		Method:        "GET",
		Path:          "/api/accounts",
		ClientAddr:    "203.0.113.7",
		ClientDevice:  "Firefox 121 on Linux",
		Attrs:         map[string]string{"scope": "identity", "limit": "100"},
	}
}

func (s *ArchiveSinkSuite) countRows() int {
	var n int
	err := s.pg.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM audit_events").Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *ArchiveSinkSuite) TestPublish_PersistsAllColumns() {
	ctx := context.Background()
	event := makeArchivedEvent(audit.EventRateLimitExceeded)

	s.Require().NoError(s.sink.Publish(ctx, []audit.Event{event}))

	var (
		eventType, severity, corrID, subject, userType, method, path string
		occurredAt                                                   time.Time
		attrsJSON                                                    []byte
	)
	err := s.pg.DB.QueryRowContext(ctx, `
		SELECT event_type, severity, occurred_at, correlation_id, subject, user_type, method, path, attrs
		FROM audit_events WHERE id = $1`, event.ID,
	).Scan(&eventType, &severity, &occurredAt, &corrID, &subject, &userType, &method, &path, &attrsJSON)
	s.Require().NoError(err)

	s.Equal("rate_limit_exceeded", eventType)
	s.Equal("warning", severity)
	s.WithinDuration(event.Timestamp, occurredAt, time.Millisecond)
	s.Equal(event.CorrelationID, corrID)
	s.Equal("user-42", subject)
	s.Equal("U", userType)
	s.Equal("GET", method)
	s.Equal("/api/accounts", path)

	var attrs map[string]string
	s.Require().NoError(json.Unmarshal(attrsJSON, &attrs))
	s.Equal("identity", attrs["scope"])
}

func (s *ArchiveSinkSuite) TestPublish_RedeliveryIsIdempotent() {
	ctx := context.Background()
	batch := []audit.Event{
		makeArchivedEvent(audit.EventAuthFailed),
		makeArchivedEvent(audit.EventRequestForwarded),
	}

	s.Require().NoError(s.sink.Publish(ctx, batch))
	s.Equal(2, s.countRows())

	// A redelivered batch must not duplicate rows.
	s.Require().NoError(s.sink.Publish(ctx, batch))
	s.Equal(2, s.countRows())
}

func (s *ArchiveSinkSuite) TestPublish_EmptyAttrs() {
	ctx := context.Background()
	event := makeArchivedEvent(audit.EventPublicBypass)
	event.Attrs = nil

	s.Require().NoError(s.sink.Publish(ctx, []audit.Event{event}))
	s.Equal(1, s.countRows())
}
