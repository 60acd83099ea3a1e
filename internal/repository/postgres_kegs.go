package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresKegsRepository kegs table access
type PostgresKegsRepository struct {
	db DBTX
}

// NewPostgresKegsRepository creates the kegs repository
func NewPostgresKegsRepository(db *sql.DB) *PostgresKegsRepository {
	return &PostgresKegsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresKegsRepository) WithTx(tx *sql.Tx) *PostgresKegsRepository {
	return &PostgresKegsRepository{db: tx}
}

const kegColumns = `
	keg_id::text,
	beverage_id::text,
	initial_volume_ml,
	current_volume_ml,
	purchase_price_cents,
	status,
	tapped_at,
	finished_at,
	created_at
`

func scanKegRow(scan func(dest ...interface{}) error) (*domain.Keg, error) {
	var k domain.Keg
	err := scan(
		&k.KegID,
		&k.BeverageID,
		&k.InitialVolumeML,
		&k.CurrentVolumeML,
		&k.PurchasePriceCents,
		&k.Status,
		&k.TappedAt,
		&k.FinishedAt,
		&k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// GetByID fetches one keg; returns sql.ErrNoRows if absent
func (r *PostgresKegsRepository) GetByID(ctx context.Context, kegID string) (*domain.Keg, error) {
	query := `SELECT ` + kegColumns + `FROM kegs WHERE keg_id = $1`
	k, err := scanKegRow(r.db.QueryRowContext(ctx, query, kegID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get keg: %w", err)
	}
	return k, nil
}

// Insert registers a delivered keg
func (r *PostgresKegsRepository) Insert(ctx context.Context, beverageID string, initialVolumeML int, purchasePriceCents int64) (*domain.Keg, error) {
	kegID := uuid.New().String()
	query := `
		INSERT INTO kegs (keg_id, beverage_id, initial_volume_ml, current_volume_ml,
		                  purchase_price_cents, status, created_at)
		VALUES ($1, $2, $3, $3, $4, 'full', now())
		RETURNING ` + kegColumns
	k, err := scanKegRow(r.db.QueryRowContext(ctx, query,
		kegID, beverageID, initialVolumeML, purchasePriceCents).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert keg: %w", err)
	}
	return k, nil
}

// DecrementVolume subtracts a poured volume and returns the remaining
// level. The GREATEST clamp keeps over-reported pours from driving the
// level negative.
func (r *PostgresKegsRepository) DecrementVolume(ctx context.Context, kegID string, volumeML int) (int, error) {
	query := `
		UPDATE kegs
		SET current_volume_ml = GREATEST(current_volume_ml - $2, 0)
		WHERE keg_id = $1
		RETURNING current_volume_ml`
	var remaining int
	if err := r.db.QueryRowContext(ctx, query, kegID, volumeML).Scan(&remaining); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("failed to decrement keg volume: %w", err)
	}
	return remaining, nil
}

// SetStatus moves a keg between full/in_use/empty, stamping the lifecycle
// timestamps as it goes
func (r *PostgresKegsRepository) SetStatus(ctx context.Context, kegID, status string) error {
	query := `
		UPDATE kegs
		SET status = $2,
		    tapped_at = CASE WHEN $2 = 'in_use' AND tapped_at IS NULL THEN now() ELSE tapped_at END,
		    finished_at = CASE WHEN $2 = 'empty' THEN now() ELSE finished_at END
		WHERE keg_id = $1`
	result, err := r.db.ExecContext(ctx, query, kegID, status)
	if err != nil {
		return fmt.Errorf("failed to set keg status: %w", err)
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

// List returns kegs, optionally filtered by status, newest first
func (r *PostgresKegsRepository) List(ctx context.Context, status string) ([]domain.Keg, error) {
	query := `SELECT ` + kegColumns + `
		FROM kegs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list kegs: %w", err)
	}
	defer rows.Close()

	kegs := make([]domain.Keg, 0)
	for rows.Next() {
		k, err := scanKegRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keg row: %w", err)
		}
		kegs = append(kegs, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keg rows: %w", err)
	}
	return kegs, nil
}
