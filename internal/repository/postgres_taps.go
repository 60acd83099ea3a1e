package repository

import (
	"context"
	"database/sql"
	"fmt"

	"taphouse-backend/internal/domain"
)

// PostgresTapsRepository taps table access
type PostgresTapsRepository struct {
	db DBTX
}

// NewPostgresTapsRepository creates the taps repository
func NewPostgresTapsRepository(db *sql.DB) *PostgresTapsRepository {
	return &PostgresTapsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresTapsRepository) WithTx(tx *sql.Tx) *PostgresTapsRepository {
	return &PostgresTapsRepository{db: tx}
}

const tapColumns = `
	tap_id,
	keg_id::text,
	display_name,
	status,
	last_cleaned_at
`

func scanTapRow(scan func(dest ...interface{}) error) (*domain.Tap, error) {
	var t domain.Tap
	err := scan(
		&t.TapID,
		&t.KegID,
		&t.DisplayName,
		&t.Status,
		&t.LastCleanedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID fetches one tap; returns sql.ErrNoRows if absent
func (r *PostgresTapsRepository) GetByID(ctx context.Context, tapID int) (*domain.Tap, error) {
	query := `SELECT ` + tapColumns + `FROM taps WHERE tap_id = $1`
	t, err := scanTapRow(r.db.QueryRowContext(ctx, query, tapID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get tap: %w", err)
	}
	return t, nil
}

// GetPourContext loads everything authorize/settle needs about a tap in one
// joined read: the tap state, its keg level, and the beverage price.
// Returns sql.ErrNoRows when the tap has no keg attached.
func (r *PostgresTapsRepository) GetPourContext(ctx context.Context, tapID int) (*domain.PourContext, error) {
	query := `
		SELECT
			t.tap_id,
			t.status,
			k.keg_id::text,
			k.current_volume_ml,
			k.status,
			b.beverage_id::text,
			b.name,
			b.sell_price_cents_per_liter
		FROM taps t
		JOIN kegs k ON k.keg_id = t.keg_id
		JOIN beverages b ON b.beverage_id = k.beverage_id
		WHERE t.tap_id = $1`
	var pc domain.PourContext
	err := r.db.QueryRowContext(ctx, query, tapID).Scan(
		&pc.TapID,
		&pc.TapStatus,
		&pc.KegID,
		&pc.KegVolumeML,
		&pc.KegStatus,
		&pc.BeverageID,
		&pc.BeverageName,
		&pc.PriceCentsPerLiter,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get pour context: %w", err)
	}
	return &pc, nil
}

// SetStatus moves a tap between locked/active/processing_sync/empty
func (r *PostgresTapsRepository) SetStatus(ctx context.Context, tapID int, status string) error {
	query := `UPDATE taps SET status = $2 WHERE tap_id = $1`
	result, err := r.db.ExecContext(ctx, query, tapID, status)
	if err != nil {
		return fmt.Errorf("failed to set tap status: %w", err)
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

// AssignKeg attaches a keg to a tap and brings the tap into service. The
// unique constraint on taps.keg_id keeps one keg from serving two taps.
func (r *PostgresTapsRepository) AssignKeg(ctx context.Context, tapID int, kegID string) error {
	query := `UPDATE taps SET keg_id = $2, status = 'active' WHERE tap_id = $1 AND keg_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, tapID, kegID)
	if err != nil {
		return fmt.Errorf("failed to assign keg: %w", err)
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

// UnassignKeg detaches the keg and takes the tap out of service
func (r *PostgresTapsRepository) UnassignKeg(ctx context.Context, tapID int) error {
	query := `UPDATE taps SET keg_id = NULL, status = 'locked' WHERE tap_id = $1`
	result, err := r.db.ExecContext(ctx, query, tapID)
	if err != nil {
		return fmt.Errorf("failed to unassign keg: %w", err)
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

// Insert registers a new tap position. A fresh tap starts locked until a
// keg is assigned.
func (r *PostgresTapsRepository) Insert(ctx context.Context, tapID int, displayName string) (*domain.Tap, error) {
	query := `
		INSERT INTO taps (tap_id, display_name, status)
		VALUES ($1, $2, 'locked')
		RETURNING ` + tapColumns
	t, err := scanTapRow(r.db.QueryRowContext(ctx, query, tapID, displayName).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tap: %w", err)
	}
	return t, nil
}

// List returns all taps ordered by position
func (r *PostgresTapsRepository) List(ctx context.Context) ([]domain.Tap, error) {
	query := `SELECT ` + tapColumns + `FROM taps ORDER BY tap_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list taps: %w", err)
	}
	defer rows.Close()

	taps := make([]domain.Tap, 0)
	for rows.Next() {
		t, err := scanTapRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tap row: %w", err)
		}
		taps = append(taps, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tap rows: %w", err)
	}
	return taps, nil
}
