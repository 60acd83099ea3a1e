package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/policy"
)

// PostgresSystemStateRepository system_states key-value table access.
// Policy knobs and the emergency stop switch live here so operators can
// change them without a restart.
type PostgresSystemStateRepository struct {
	db DBTX
}

// NewPostgresSystemStateRepository creates the system state repository
func NewPostgresSystemStateRepository(db *sql.DB) *PostgresSystemStateRepository {
	return &PostgresSystemStateRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresSystemStateRepository) WithTx(tx *sql.Tx) *PostgresSystemStateRepository {
	return &PostgresSystemStateRepository{db: tx}
}

// Get returns the stored value for key, or sql.ErrNoRows
func (r *PostgresSystemStateRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := `SELECT value FROM system_states WHERE key = $1`
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("failed to get system state: %w", err)
	}
	return value, nil
}

// Set upserts a key
func (r *PostgresSystemStateRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO system_states (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set system state: %w", err)
	}
	return nil
}

// GetInt reads an integer key, falling back to def when the key is absent
// or unparsable
func (r *PostgresSystemStateRepository) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	value, err := r.Get(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return def, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// GetBool reads a boolean key, falling back to def when absent
func (r *PostgresSystemStateRepository) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	value, err := r.Get(ctx, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return def, nil
		}
		return false, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def, nil
	}
	return b, nil
}

// PourPolicyKnobs assembles the current pour policy knobs from stored keys,
// using the shipped defaults for anything not set
func (r *PostgresSystemStateRepository) PourPolicyKnobs(ctx context.Context) (policy.Knobs, error) {
	minStart, err := r.GetInt(ctx, domain.StateMinStartML, domain.DefaultMinStartML)
	if err != nil {
		return policy.Knobs{}, err
	}
	safety, err := r.GetInt(ctx, domain.StateSafetyML, domain.DefaultSafetyML)
	if err != nil {
		return policy.Knobs{}, err
	}
	overdraft, err := r.GetInt(ctx, domain.StateAllowedOverdraftCents, domain.DefaultAllowedOverdraftCents)
	if err != nil {
		return policy.Knobs{}, err
	}
	return policy.Knobs{
		MinStartML:            int(minStart),
		SafetyML:              int(safety),
		AllowedOverdraftCents: overdraft,
	}, nil
}

// EmergencyStopEnabled reports whether the emergency stop switch is on
func (r *PostgresSystemStateRepository) EmergencyStopEnabled(ctx context.Context) (bool, error) {
	return r.GetBool(ctx, domain.StateEmergencyStop, false)
}

// ListAll returns every stored key for the admin view
func (r *PostgresSystemStateRepository) ListAll(ctx context.Context) ([]domain.SystemState, error) {
	query := `SELECT key, value FROM system_states ORDER BY key`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list system states: %w", err)
	}
	defer rows.Close()

	states := make([]domain.SystemState, 0)
	for rows.Next() {
		var s domain.SystemState
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan system state row: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate system state rows: %w", err)
	}
	return states, nil
}
