package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tablestack/tablestack-backend/pkg/database"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
)

// Incident severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Incident is something an operator has to look at.
type Incident struct {
	Source   string
	Severity string
	Message  string
	Details  map[string]string
}

// IncidentSink records incidents.
type IncidentSink interface {
	Raise(ctx context.Context, incident Incident) (string, error)
}

// PostgresIncidentSink stores incidents in ops_incidents and announces them on
// the ops exchange.
type PostgresIncidentSink struct {
	db        *database.DB
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewPostgresIncidentSink creates a sink. A nil publisher only stores.
func NewPostgresIncidentSink(db *database.DB, publisher messaging.EventPublisher, log *logger.Logger) *PostgresIncidentSink {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	return &PostgresIncidentSink{db: db, publisher: publisher, logger: log.WithComponent("incidents")}
}

// Raise stores the incident and publishes it. A publish failure is logged; the
// stored row is the record of truth.
func (s *PostgresIncidentSink) Raise(ctx context.Context, incident Incident) (string, error) {
	details := incident.Details
	if details == nil {
		details = map[string]string{}
	}
	body, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to encode incident details: %w", err)
	}

	var id string
	err = s.db.Conn(ctx).GetContext(ctx, &id, `
		INSERT INTO ops_incidents (source, severity, message, details)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		incident.Source, incident.Severity, incident.Message, string(body),
	)
	if err != nil {
		return "", fmt.Errorf("failed to store incident: %w", err)
	}

	err = s.publisher.Publish(ctx, messaging.EventIncidentRaised, messaging.IncidentRaisedEvent{
		IncidentID: id,
		Source:     incident.Source,
		Severity:   incident.Severity,
		Message:    incident.Message,
		Details:    incident.Details,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("incident_id", id).Msg("failed to publish incident")
	}
	return id, nil
}
