package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"onboarding-gateway/internal/audit"
	id "onboarding-gateway/pkg/domain"
)

// PostgresStore appends to onboarding_audit_events. Appends are idempotent
// on the event ID.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, ev audit.Event) error {
	eventID, err := uuid.Parse(ev.ID)
	if err != nil {
		return fmt.Errorf("audit event id: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO onboarding_audit_events
			(id, provider_id, action, step, from_status, to_status, outcome, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, eventID, uuid.UUID(ev.ProviderID), string(ev.Action),
		nullString(ev.Step), nullString(ev.From), nullString(ev.To), nullString(ev.Outcome),
		nullString(ev.RequestID), ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByProvider returns up to limit events, newest first. limit <= 0 means all.
func (s *PostgresStore) ListByProvider(ctx context.Context, providerID id.ProviderID, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, action, step, from_status, to_status, outcome, request_id, created_at
		FROM onboarding_audit_events
		WHERE provider_id = $1
		ORDER BY created_at DESC, id
	`
	args := []any{uuid.UUID(providerID)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev      audit.Event
			eventID uuid.UUID
			action  string
		)
		var step, from, to, outcome, requestID sql.NullString
		if err := rows.Scan(&eventID, &action, &step, &from, &to, &outcome, &requestID, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.ID = eventID.String()
		ev.ProviderID = providerID
		ev.Action = audit.Action(action)
		ev.Step, ev.From, ev.To = step.String, from.String, to.String
		ev.Outcome, ev.RequestID = outcome.String, requestID.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
