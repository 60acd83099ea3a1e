package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresVisitsRepository visits table access, including the tap lock
type PostgresVisitsRepository struct {
	db DBTX
}

// NewPostgresVisitsRepository creates the visits repository
func NewPostgresVisitsRepository(db *sql.DB) *PostgresVisitsRepository {
	return &PostgresVisitsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresVisitsRepository) WithTx(tx *sql.Tx) *PostgresVisitsRepository {
	return &PostgresVisitsRepository{db: tx}
}

const visitColumns = `
	visit_id::text,
	guest_id::text,
	card_uid,
	status,
	opened_at,
	closed_at,
	closed_reason,
	active_tap_id,
	lock_set_at,
	card_returned
`

func scanVisit(row *sql.Row) (*domain.Visit, error) {
	var v domain.Visit
	err := row.Scan(
		&v.VisitID,
		&v.GuestID,
		&v.CardUID,
		&v.Status,
		&v.OpenedAt,
		&v.ClosedAt,
		&v.ClosedReason,
		&v.ActiveTapID,
		&v.LockSetAt,
		&v.CardReturned,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByID fetches one visit; returns sql.ErrNoRows if absent
func (r *PostgresVisitsRepository) GetByID(ctx context.Context, visitID string) (*domain.Visit, error) {
	query := `SELECT ` + visitColumns + `FROM visits WHERE visit_id = $1`
	v, err := scanVisit(r.db.QueryRowContext(ctx, query, visitID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return v, nil
}

// GetActiveByCard finds the single active visit holding the card, if any
func (r *PostgresVisitsRepository) GetActiveByCard(ctx context.Context, cardUID string) (*domain.Visit, error) {
	query := `SELECT ` + visitColumns + `FROM visits WHERE card_uid = $1 AND status = 'active'`
	v, err := scanVisit(r.db.QueryRowContext(ctx, query, cardUID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get active visit by card: %w", err)
	}
	return v, nil
}

// GetActiveByGuest finds the guest's active visit, if any
func (r *PostgresVisitsRepository) GetActiveByGuest(ctx context.Context, guestID string) (*domain.Visit, error) {
	query := `SELECT ` + visitColumns + `FROM visits WHERE guest_id = $1 AND status = 'active'`
	v, err := scanVisit(r.db.QueryRowContext(ctx, query, guestID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get active visit by guest: %w", err)
	}
	return v, nil
}

// Insert opens a new visit. The partial unique indexes on (guest_id) and
// (card_uid) WHERE status='active' enforce one active visit per guest/card;
// violations surface as pq error 23505.
func (r *PostgresVisitsRepository) Insert(ctx context.Context, guestID string, cardUID sql.NullString) (*domain.Visit, error) {
	visitID := uuid.New().String()
	query := `
		INSERT INTO visits (visit_id, guest_id, card_uid, status, opened_at, card_returned)
		VALUES ($1, $2, $3, 'active', now(), false)
		RETURNING ` + visitColumns
	v, err := scanVisit(r.db.QueryRowContext(ctx, query, visitID, guestID, cardUID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert visit: %w", err)
	}
	return v, nil
}

// AssignCard binds a card to an active visit
func (r *PostgresVisitsRepository) AssignCard(ctx context.Context, visitID, cardUID string) error {
	query := `UPDATE visits SET card_uid = $2 WHERE visit_id = $1 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, visitID, cardUID)
	if err != nil {
		return fmt.Errorf("failed to assign card: %w", err)
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

// Close finalizes a visit. The card binding stays on the row for history.
func (r *PostgresVisitsRepository) Close(ctx context.Context, visitID, reason string, cardReturned bool) error {
	query := `
		UPDATE visits
		SET status = 'closed', closed_at = now(), closed_reason = $2,
		    card_returned = $3, active_tap_id = NULL, lock_set_at = NULL
		WHERE visit_id = $1 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, visitID, reason, cardReturned)
	if err != nil {
		return fmt.Errorf("failed to close visit: %w", err)
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

// AcquireTapLock takes the visit's exclusive tap lock with a single
// compare-and-set. The WHERE clause only matches when the visit is active
// and either unlocked or already locked on the same tap, so a concurrent
// lock on a different tap makes RowsAffected come back 0.
func (r *PostgresVisitsRepository) AcquireTapLock(ctx context.Context, visitID string, tapID int) (bool, error) {
	query := `
		UPDATE visits
		SET active_tap_id = $2, lock_set_at = now()
		WHERE visit_id = $1 AND status = 'active'
		  AND (active_tap_id IS NULL OR active_tap_id = $2)`
	result, err := r.db.ExecContext(ctx, query, visitID, tapID)
	if err != nil {
		return false, fmt.Errorf("failed to acquire tap lock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ReleaseTapLock clears the lock unconditionally; releasing an already
// released lock is a no-op
func (r *PostgresVisitsRepository) ReleaseTapLock(ctx context.Context, visitID string) error {
	query := `UPDATE visits SET active_tap_id = NULL, lock_set_at = NULL WHERE visit_id = $1`
	if _, err := r.db.ExecContext(ctx, query, visitID); err != nil {
		return fmt.Errorf("failed to release tap lock: %w", err)
	}
	return nil
}

// AnyActive reports whether any visit is still open (used by shift close)
func (r *PostgresVisitsRepository) AnyActive(ctx context.Context) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM visits WHERE status = 'active')`
	if err := r.db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active visits: %w", err)
	}
	return exists, nil
}

// ListActive returns active visits joined with guest data for the operator
// dashboard, newest first
func (r *PostgresVisitsRepository) ListActive(ctx context.Context) ([]domain.VisitListItem, error) {
	query := `
		SELECT
			v.visit_id::text,
			v.guest_id::text,
			g.last_name,
			g.first_name,
			COALESCE(g.patronymic, '') as patronymic,
			g.phone_number,
			g.balance_cents,
			v.status,
			v.card_uid,
			v.active_tap_id,
			v.lock_set_at,
			v.opened_at
		FROM visits v
		JOIN guests g ON g.guest_id = v.guest_id
		WHERE v.status = 'active'
		ORDER BY v.opened_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active visits: %w", err)
	}
	defer rows.Close()

	items := make([]domain.VisitListItem, 0)
	for rows.Next() {
		var item domain.VisitListItem
		var lastName, firstName, patronymic string
		var cardUID sql.NullString
		var activeTapID sql.NullInt64
		var lockSetAt sql.NullTime
		err := rows.Scan(
			&item.VisitID,
			&item.GuestID,
			&lastName,
			&firstName,
			&patronymic,
			&item.PhoneNumber,
			&item.BalanceCents,
			&item.Status,
			&cardUID,
			&activeTapID,
			&lockSetAt,
			&item.OpenedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}
		item.GuestFullName = joinName(lastName, firstName, patronymic)
		if cardUID.Valid {
			item.CardUID = &cardUID.String
		}
		if activeTapID.Valid {
			tapID := int(activeTapID.Int64)
			item.ActiveTapID = &tapID
		}
		if lockSetAt.Valid {
			t := lockSetAt.Time
			item.LockSetAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visit rows: %w", err)
	}
	return items, nil
}

// ListByGuest returns all visits of one guest, newest first
func (r *PostgresVisitsRepository) ListByGuest(ctx context.Context, guestID string) ([]domain.Visit, error) {
	query := `SELECT ` + visitColumns + `FROM visits WHERE guest_id = $1 ORDER BY opened_at DESC`
	rows, err := r.db.QueryContext(ctx, query, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits by guest: %w", err)
	}
	defer rows.Close()

	visits := make([]domain.Visit, 0)
	for rows.Next() {
		var v domain.Visit
		err := rows.Scan(
			&v.VisitID,
			&v.GuestID,
			&v.CardUID,
			&v.Status,
			&v.OpenedAt,
			&v.ClosedAt,
			&v.ClosedReason,
			&v.ActiveTapID,
			&v.LockSetAt,
			&v.CardReturned,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate visit rows: %w", err)
	}
	return visits, nil
}

func joinName(lastName, firstName, patronymic string) string {
	name := lastName + " " + firstName
	if patronymic != "" {
		name += " " + patronymic
	}
	return name
}
