package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresPoursRepository pours table access. Pending placeholders, settled
// pours and manual reconciliations all live in the same table and differ by
// sync_status and is_manual_reconcile.
type PostgresPoursRepository struct {
	db DBTX
}

// NewPostgresPoursRepository creates the pours repository
func NewPostgresPoursRepository(db *sql.DB) *PostgresPoursRepository {
	return &PostgresPoursRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresPoursRepository) WithTx(tx *sql.Tx) *PostgresPoursRepository {
	return &PostgresPoursRepository{db: tx}
}

const pourColumns = `
	pour_id::text,
	client_tx_id,
	guest_id::text,
	card_uid,
	visit_id::text,
	tap_id,
	keg_id::text,
	volume_ml,
	amount_cents,
	price_per_ml_cents,
	duration_ms,
	sync_status,
	short_id,
	is_manual_reconcile,
	poured_at,
	authorized_at,
	synced_at,
	reconciled_at,
	created_at
`

func scanPourRow(scan func(dest ...interface{}) error) (*domain.Pour, error) {
	var p domain.Pour
	err := scan(
		&p.PourID,
		&p.ClientTxID,
		&p.GuestID,
		&p.CardUID,
		&p.VisitID,
		&p.TapID,
		&p.KegID,
		&p.VolumeML,
		&p.AmountCents,
		&p.PricePerMlCents,
		&p.DurationMs,
		&p.SyncStatus,
		&p.ShortID,
		&p.IsManualReconcile,
		&p.PouredAt,
		&p.AuthorizedAt,
		&p.SyncedAt,
		&p.ReconciledAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByClientTxID looks up a pour by its idempotency key
func (r *PostgresPoursRepository) GetByClientTxID(ctx context.Context, clientTxID string) (*domain.Pour, error) {
	query := `SELECT ` + pourColumns + `FROM pours WHERE client_tx_id = $1`
	p, err := scanPourRow(r.db.QueryRowContext(ctx, query, clientTxID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get pour by client_tx_id: %w", err)
	}
	return p, nil
}

// GetPendingForVisitTap finds the outstanding pending placeholder for a
// visit's lock on a tap. At most one exists per lock cycle.
func (r *PostgresPoursRepository) GetPendingForVisitTap(ctx context.Context, visitID string, tapID int) (*domain.Pour, error) {
	query := `SELECT ` + pourColumns + `
		FROM pours
		WHERE visit_id = $1 AND tap_id = $2 AND sync_status = 'pending_sync'
		ORDER BY created_at DESC
		LIMIT 1`
	p, err := scanPourRow(r.db.QueryRowContext(ctx, query, visitID, tapID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get pending pour: %w", err)
	}
	return p, nil
}

// InsertPending creates the pending placeholder at lock-grant time. Volume
// and amount are zero until the controller reports the real figures.
func (r *PostgresPoursRepository) InsertPending(ctx context.Context, clientTxID, guestID, cardUID, visitID string, tapID int, kegID string, pricePerMlCents int64) (*domain.Pour, error) {
	pourID := uuid.New().String()
	query := `
		INSERT INTO pours (pour_id, client_tx_id, guest_id, card_uid, visit_id, tap_id, keg_id,
		                   volume_ml, amount_cents, price_per_ml_cents, sync_status,
		                   is_manual_reconcile, poured_at, authorized_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, 'pending_sync', false, now(), now(), now())
		RETURNING ` + pourColumns
	p, err := scanPourRow(r.db.QueryRowContext(ctx, query,
		pourID, clientTxID, guestID, cardUID, visitID, tapID, kegID, pricePerMlCents).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pending pour: %w", err)
	}
	return p, nil
}

// SettleSynced mutates a pending placeholder in place into a synced pour,
// replacing its synthetic client_tx_id with the controller's real one
func (r *PostgresPoursRepository) SettleSynced(ctx context.Context, pourID, clientTxID string, volumeML int, amountCents int64, durationMs sql.NullInt64) error {
	query := `
		UPDATE pours
		SET client_tx_id = $2, volume_ml = $3, amount_cents = $4, duration_ms = $5,
		    sync_status = 'synced', synced_at = now()
		WHERE pour_id = $1 AND sync_status = 'pending_sync'`
	result, err := r.db.ExecContext(ctx, query, pourID, clientTxID, volumeML, amountCents, durationMs)
	if err != nil {
		return fmt.Errorf("failed to settle pour: %w", err)
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

// MarkRejected flips a pending placeholder to the terminal rejected state,
// keeping the reported figures for the audit trail
func (r *PostgresPoursRepository) MarkRejected(ctx context.Context, pourID, clientTxID string, volumeML int, amountCents int64) error {
	query := `
		UPDATE pours
		SET client_tx_id = $2, volume_ml = $3, amount_cents = $4,
		    sync_status = 'rejected', synced_at = now()
		WHERE pour_id = $1 AND sync_status = 'pending_sync'`
	result, err := r.db.ExecContext(ctx, query, pourID, clientTxID, volumeML, amountCents)
	if err != nil {
		return fmt.Errorf("failed to reject pour: %w", err)
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

// SettleReconciled mutates a pending placeholder into a manual
// reconciliation with the operator-entered figures
func (r *PostgresPoursRepository) SettleReconciled(ctx context.Context, pourID, shortID string, volumeML int, amountCents int64) error {
	query := `
		UPDATE pours
		SET volume_ml = $3, amount_cents = $4, short_id = $2,
		    sync_status = 'reconciled', is_manual_reconcile = true, reconciled_at = now()
		WHERE pour_id = $1 AND sync_status = 'pending_sync'`
	result, err := r.db.ExecContext(ctx, query, pourID, shortID, volumeML, amountCents)
	if err != nil {
		return fmt.Errorf("failed to reconcile pour: %w", err)
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

// InsertManual records a manual reconciliation when no pending placeholder
// exists for the visit/tap pair
func (r *PostgresPoursRepository) InsertManual(ctx context.Context, clientTxID, guestID, cardUID, visitID string, tapID int, kegID string, volumeML int, amountCents, pricePerMlCents int64, shortID string) (*domain.Pour, error) {
	pourID := uuid.New().String()
	query := `
		INSERT INTO pours (pour_id, client_tx_id, guest_id, card_uid, visit_id, tap_id, keg_id,
		                   volume_ml, amount_cents, price_per_ml_cents, sync_status, short_id,
		                   is_manual_reconcile, poured_at, reconciled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'reconciled', $11, true, now(), now(), now())
		RETURNING ` + pourColumns
	p, err := scanPourRow(r.db.QueryRowContext(ctx, query,
		pourID, clientTxID, guestID, cardUID, visitID, tapID, kegID,
		volumeML, amountCents, pricePerMlCents, shortID).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert manual pour: %w", err)
	}
	return p, nil
}

// FindManualByVisitShortID looks up a manual reconciliation on a visit by
// its short code, used to match a late controller report
func (r *PostgresPoursRepository) FindManualByVisitShortID(ctx context.Context, visitID, shortID string) (*domain.Pour, error) {
	query := `SELECT ` + pourColumns + `
		FROM pours
		WHERE visit_id = $1 AND short_id = $2 AND is_manual_reconcile = true`
	p, err := scanPourRow(r.db.QueryRowContext(ctx, query, visitID, shortID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find manual pour: %w", err)
	}
	return p, nil
}

// FindManualByShortIDTap matches a late report against manual
// reconciliations when the visit is already gone, by short code and tap
func (r *PostgresPoursRepository) FindManualByShortIDTap(ctx context.Context, shortID string, tapID int) (*domain.Pour, error) {
	query := `SELECT ` + pourColumns + `
		FROM pours
		WHERE short_id = $1 AND tap_id = $2 AND is_manual_reconcile = true
		ORDER BY created_at DESC
		LIMIT 1`
	p, err := scanPourRow(r.db.QueryRowContext(ctx, query, shortID, tapID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find manual pour: %w", err)
	}
	return p, nil
}

// AnyPendingForVisit reports whether the visit still has unsettled pours
func (r *PostgresPoursRepository) AnyPendingForVisit(ctx context.Context, visitID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pours WHERE visit_id = $1 AND sync_status = 'pending_sync')`
	if err := r.db.QueryRowContext(ctx, query, visitID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending pours: %w", err)
	}
	return exists, nil
}

// AnyPending reports whether any pour in the system is unsettled (used by
// shift close)
func (r *PostgresPoursRepository) AnyPending(ctx context.Context) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pours WHERE sync_status = 'pending_sync')`
	if err := r.db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending pours: %w", err)
	}
	return exists, nil
}

// ListByVisit returns all pours of one visit, oldest first
func (r *PostgresPoursRepository) ListByVisit(ctx context.Context, visitID string) ([]domain.Pour, error) {
	query := `SELECT ` + pourColumns + `FROM pours WHERE visit_id = $1 ORDER BY created_at`
	return r.list(ctx, query, visitID)
}

// ListByGuest returns a guest's pour history, newest first
func (r *PostgresPoursRepository) ListByGuest(ctx context.Context, guestID string, limit int) ([]domain.Pour, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + pourColumns + `FROM pours WHERE guest_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, guestID, limit)
}

// ListRecent returns the newest pours across all visits
func (r *PostgresPoursRepository) ListRecent(ctx context.Context, limit int) ([]domain.Pour, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + pourColumns + `FROM pours ORDER BY created_at DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

// ListForShift returns the pours poured inside a time window, oldest first.
// An invalid to means the window is still open.
func (r *PostgresPoursRepository) ListForShift(ctx context.Context, from time.Time, to sql.NullTime) ([]domain.Pour, error) {
	query := `SELECT ` + pourColumns + `
		FROM pours
		WHERE poured_at >= $1 AND ($2::timestamptz IS NULL OR poured_at <= $2)
		ORDER BY poured_at`
	return r.list(ctx, query, from, to)
}

func (r *PostgresPoursRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Pour, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pours: %w", err)
	}
	defer rows.Close()

	pours := make([]domain.Pour, 0)
	for rows.Next() {
		p, err := scanPourRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pour row: %w", err)
		}
		pours = append(pours, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pour rows: %w", err)
	}
	return pours, nil
}
