package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresShiftsRepository shifts and shift_reports table access
type PostgresShiftsRepository struct {
	db DBTX
}

// NewPostgresShiftsRepository creates the shifts repository
func NewPostgresShiftsRepository(db *sql.DB) *PostgresShiftsRepository {
	return &PostgresShiftsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresShiftsRepository) WithTx(tx *sql.Tx) *PostgresShiftsRepository {
	return &PostgresShiftsRepository{db: tx}
}

const shiftColumns = `
	shift_id::text,
	status,
	opened_at,
	closed_at,
	opened_by,
	closed_by
`

func scanShiftRow(scan func(dest ...interface{}) error) (*domain.Shift, error) {
	var s domain.Shift
	err := scan(
		&s.ShiftID,
		&s.Status,
		&s.OpenedAt,
		&s.ClosedAt,
		&s.OpenedBy,
		&s.ClosedBy,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOpen returns the single open shift, or sql.ErrNoRows when the bar is
// closed
func (r *PostgresShiftsRepository) GetOpen(ctx context.Context) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + `FROM shifts WHERE status = 'open'`
	s, err := scanShiftRow(r.db.QueryRowContext(ctx, query).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get open shift: %w", err)
	}
	return s, nil
}

// GetByID fetches one shift; returns sql.ErrNoRows if absent
func (r *PostgresShiftsRepository) GetByID(ctx context.Context, shiftID string) (*domain.Shift, error) {
	query := `SELECT ` + shiftColumns + `FROM shifts WHERE shift_id = $1`
	s, err := scanShiftRow(r.db.QueryRowContext(ctx, query, shiftID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return s, nil
}

// Insert opens a shift. The partial unique index on status='open' lets the
// database arbitrate concurrent opens; the loser gets pq 23505.
func (r *PostgresShiftsRepository) Insert(ctx context.Context, openedBy sql.NullString) (*domain.Shift, error) {
	shiftID := uuid.New().String()
	query := `
		INSERT INTO shifts (shift_id, status, opened_at, opened_by)
		VALUES ($1, 'open', now(), $2)
		RETURNING ` + shiftColumns
	s, err := scanShiftRow(r.db.QueryRowContext(ctx, query, shiftID, openedBy).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert shift: %w", err)
	}
	return s, nil
}

// Close finalizes an open shift
func (r *PostgresShiftsRepository) Close(ctx context.Context, shiftID string, closedBy sql.NullString) error {
	query := `
		UPDATE shifts SET status = 'closed', closed_at = now(), closed_by = $2
		WHERE shift_id = $1 AND status = 'open'`
	result, err := r.db.ExecContext(ctx, query, shiftID, closedBy)
	if err != nil {
		return fmt.Errorf("failed to close shift: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns shifts, newest first
func (r *PostgresShiftsRepository) List(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + shiftColumns + `FROM shifts ORDER BY opened_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0)
	for rows.Next() {
		s, err := scanShiftRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift row: %w", err)
		}
		shifts = append(shifts, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shift rows: %w", err)
	}
	return shifts, nil
}

// InsertReport stores a generated X/Z report snapshot
func (r *PostgresShiftsRepository) InsertReport(ctx context.Context, shiftID, reportType string, payload json.RawMessage) (*domain.ShiftReport, error) {
	reportID := uuid.New().String()
	query := `
		INSERT INTO shift_reports (report_id, shift_id, report_type, generated_at, payload)
		VALUES ($1, $2, $3, now(), $4::jsonb)
		RETURNING report_id::text, shift_id::text, report_type, generated_at, payload::text`
	var report domain.ShiftReport
	var payloadRaw string
	err := r.db.QueryRowContext(ctx, query, reportID, shiftID, reportType, string(payload)).Scan(
		&report.ReportID,
		&report.ShiftID,
		&report.ReportType,
		&report.GeneratedAt,
		&payloadRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert shift report: %w", err)
	}
	report.Payload = json.RawMessage(payloadRaw)
	return &report, nil
}

// ListReports returns the stored reports of one shift, newest first
func (r *PostgresShiftsRepository) ListReports(ctx context.Context, shiftID string) ([]domain.ShiftReport, error) {
	query := `
		SELECT report_id::text, shift_id::text, report_type, generated_at, payload::text
		FROM shift_reports
		WHERE shift_id = $1
		ORDER BY generated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shift reports: %w", err)
	}
	defer rows.Close()

	reports := make([]domain.ShiftReport, 0)
	for rows.Next() {
		var report domain.ShiftReport
		var payloadRaw string
		err := rows.Scan(
			&report.ReportID,
			&report.ShiftID,
			&report.ReportType,
			&report.GeneratedAt,
			&payloadRaw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift report row: %w", err)
		}
		report.Payload = json.RawMessage(payloadRaw)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shift report rows: %w", err)
	}
	return reports, nil
}
