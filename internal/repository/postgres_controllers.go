package repository

import (
	"context"
	"database/sql"
	"fmt"

	"taphouse-backend/internal/domain"
)

// PostgresControllersRepository controllers table access
type PostgresControllersRepository struct {
	db DBTX
}

// NewPostgresControllersRepository creates the controllers repository
func NewPostgresControllersRepository(db *sql.DB) *PostgresControllersRepository {
	return &PostgresControllersRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresControllersRepository) WithTx(tx *sql.Tx) *PostgresControllersRepository {
	return &PostgresControllersRepository{db: tx}
}

// Upsert registers a controller or refreshes its address and last_seen on a
// repeat check-in
func (r *PostgresControllersRepository) Upsert(ctx context.Context, controllerID, ipAddress string, firmwareVersion sql.NullString) (*domain.Controller, error) {
	query := `
		INSERT INTO controllers (controller_id, ip_address, firmware_version, created_at, last_seen)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (controller_id) DO UPDATE
		SET ip_address = EXCLUDED.ip_address,
		    firmware_version = COALESCE(EXCLUDED.firmware_version, controllers.firmware_version),
		    last_seen = now()
		RETURNING controller_id, ip_address, firmware_version, created_at, last_seen`
	var c domain.Controller
	err := r.db.QueryRowContext(ctx, query, controllerID, ipAddress, firmwareVersion).Scan(
		&c.ControllerID,
		&c.IPAddress,
		&c.FirmwareVersion,
		&c.CreatedAt,
		&c.LastSeen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert controller: %w", err)
	}
	return &c, nil
}

// TouchLastSeen stamps a successful health probe
func (r *PostgresControllersRepository) TouchLastSeen(ctx context.Context, controllerID string) error {
	query := `UPDATE controllers SET last_seen = now() WHERE controller_id = $1`
	if _, err := r.db.ExecContext(ctx, query, controllerID); err != nil {
		return fmt.Errorf("failed to touch controller: %w", err)
	}
	return nil
}

// List returns all registered controllers
func (r *PostgresControllersRepository) List(ctx context.Context) ([]domain.Controller, error) {
	query := `
		SELECT controller_id, ip_address, firmware_version, created_at, last_seen
		FROM controllers
		ORDER BY controller_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list controllers: %w", err)
	}
	defer rows.Close()

	controllers := make([]domain.Controller, 0)
	for rows.Next() {
		var c domain.Controller
		err := rows.Scan(
			&c.ControllerID,
			&c.IPAddress,
			&c.FirmwareVersion,
			&c.CreatedAt,
			&c.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan controller row: %w", err)
		}
		controllers = append(controllers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate controller rows: %w", err)
	}
	return controllers, nil
}
