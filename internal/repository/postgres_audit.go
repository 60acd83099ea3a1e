package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresAuditRepository audit_logs table access. Append-only; nothing
// ever updates or deletes a row.
type PostgresAuditRepository struct {
	db DBTX
}

// NewPostgresAuditRepository creates the audit repository
func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresAuditRepository) WithTx(tx *sql.Tx) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: tx}
}

// Append writes one audit entry
func (r *PostgresAuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	logID := uuid.New().String()
	query := `
		INSERT INTO audit_logs (log_id, actor_id, action, target_entity, target_id, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, now())`
	_, err := r.db.ExecContext(ctx, query,
		logID, e.ActorID, e.Action, e.TargetEntity, e.TargetID, e.Details)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// List pages through audit entries, newest first, optionally filtered by
// action and/or target entity
func (r *PostgresAuditRepository) List(ctx context.Context, action, targetEntity string, limit, offset int) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT
			log_id::text,
			actor_id,
			action,
			target_entity,
			target_id,
			COALESCE(details, '{}'::jsonb)::text,
			timestamp
		FROM audit_logs
		WHERE ($1 = '' OR action = $1)
		  AND ($2 = '' OR target_entity = $2)
		ORDER BY timestamp DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, action, targetEntity, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		var details string
		err := rows.Scan(
			&e.LogID,
			&e.ActorID,
			&e.Action,
			&e.TargetEntity,
			&e.TargetID,
			&details,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.Details = sql.NullString{String: details, Valid: true}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit rows: %w", err)
	}
	return entries, nil
}
