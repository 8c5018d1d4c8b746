package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JoelVR17/Trustless-Work-Test/contracts/mq"
)

// EventLogRepository keeps the audit trail of observed escrow events.
type EventLogRepository struct {
	db *pgxpool.Pool
}

func NewEventLogRepository(db *pgxpool.Pool) *EventLogRepository {
	return &EventLogRepository{db: db}
}

// Insert stores p once per event id and reports whether a row was written.
func (r *EventLogRepository) Insert(ctx context.Context, p *mq.EscrowEventPayload) (bool, error) {
	projectID, err := toInt64(p.ProjectID)
	if err != nil {
		return false, fmt.Errorf("event %s: %w", p.EventID, err)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to encode event %s: %w", p.EventID, err)
	}

	query := `
		INSERT INTO escrow_event_log (event_id, event_type, project_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, p.EventID, p.EventType, projectID, payload, p.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", p.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByProject returns the logged events of a project, oldest first.
func (r *EventLogRepository) ListByProject(ctx context.Context, projectID uint64) ([]mq.EscrowEventPayload, error) {
	id, err := toInt64(projectID)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT payload FROM escrow_event_log
		WHERE project_id = $1
		ORDER BY occurred_at ASC, received_at ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var events []mq.EscrowEventPayload
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var p mq.EscrowEventPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, p)
	}
	return events, rows.Err()
}
