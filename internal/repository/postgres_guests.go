package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresGuestsRepository guests table access
type PostgresGuestsRepository struct {
	db DBTX
}

// NewPostgresGuestsRepository creates the guests repository
func NewPostgresGuestsRepository(db *sql.DB) *PostgresGuestsRepository {
	return &PostgresGuestsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresGuestsRepository) WithTx(tx *sql.Tx) *PostgresGuestsRepository {
	return &PostgresGuestsRepository{db: tx}
}

const guestColumns = `
	guest_id::text,
	last_name,
	first_name,
	patronymic,
	phone_number,
	date_of_birth,
	id_document,
	balance_cents,
	is_active,
	created_at,
	updated_at
`

func scanGuest(row *sql.Row) (*domain.Guest, error) {
	var g domain.Guest
	err := row.Scan(
		&g.GuestID,
		&g.LastName,
		&g.FirstName,
		&g.Patronymic,
		&g.PhoneNumber,
		&g.DateOfBirth,
		&g.IDDocument,
		&g.BalanceCents,
		&g.IsActive,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetByID fetches one guest; returns sql.ErrNoRows if absent
func (r *PostgresGuestsRepository) GetByID(ctx context.Context, guestID string) (*domain.Guest, error) {
	query := `SELECT ` + guestColumns + `FROM guests WHERE guest_id = $1`
	g, err := scanGuest(r.db.QueryRowContext(ctx, query, guestID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	return g, nil
}

// GetByPhone fetches a guest by the unique phone number
func (r *PostgresGuestsRepository) GetByPhone(ctx context.Context, phoneNumber string) (*domain.Guest, error) {
	query := `SELECT ` + guestColumns + `FROM guests WHERE phone_number = $1`
	g, err := scanGuest(r.db.QueryRowContext(ctx, query, phoneNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get guest by phone: %w", err)
	}
	return g, nil
}

// Insert registers a new guest with a zero balance
func (r *PostgresGuestsRepository) Insert(ctx context.Context, g *domain.Guest) (*domain.Guest, error) {
	guestID := uuid.New().String()
	query := `
		INSERT INTO guests (guest_id, last_name, first_name, patronymic, phone_number,
		                    date_of_birth, id_document, balance_cents, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, true, now(), now())
		RETURNING ` + guestColumns
	created, err := scanGuest(r.db.QueryRowContext(ctx, query,
		guestID, g.LastName, g.FirstName, g.Patronymic, g.PhoneNumber, g.DateOfBirth, g.IDDocument))
	if err != nil {
		return nil, fmt.Errorf("failed to insert guest: %w", err)
	}
	return created, nil
}

// Update rewrites the editable profile fields
func (r *PostgresGuestsRepository) Update(ctx context.Context, g *domain.Guest) error {
	query := `
		UPDATE guests
		SET last_name = $2, first_name = $3, patronymic = $4, phone_number = $5,
		    date_of_birth = $6, id_document = $7, is_active = $8, updated_at = now()
		WHERE guest_id = $1`
	result, err := r.db.ExecContext(ctx, query,
		g.GuestID, g.LastName, g.FirstName, g.Patronymic, g.PhoneNumber,
		g.DateOfBirth, g.IDDocument, g.IsActive)
	if err != nil {
		return fmt.Errorf("failed to update guest: %w", err)
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

// DebitBalance subtracts amountCents from the guest's balance. The caller
// has already validated the budget inside the same transaction; the balance
// may legitimately go negative up to the allowed overdraft.
func (r *PostgresGuestsRepository) DebitBalance(ctx context.Context, guestID string, amountCents int64) error {
	query := `UPDATE guests SET balance_cents = balance_cents - $2, updated_at = now() WHERE guest_id = $1`
	result, err := r.db.ExecContext(ctx, query, guestID, amountCents)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
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

// CreditBalance adds amountCents to the guest's balance
func (r *PostgresGuestsRepository) CreditBalance(ctx context.Context, guestID string, amountCents int64) error {
	query := `UPDATE guests SET balance_cents = balance_cents + $2, updated_at = now() WHERE guest_id = $1`
	result, err := r.db.ExecContext(ctx, query, guestID, amountCents)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
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

// List pages through guests, optionally filtering by a name/phone substring
func (r *PostgresGuestsRepository) List(ctx context.Context, search string, limit, offset int) ([]domain.Guest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + guestColumns + `
		FROM guests
		WHERE ($1 = '' OR last_name ILIKE '%' || $1 || '%'
		       OR first_name ILIKE '%' || $1 || '%'
		       OR phone_number ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	defer rows.Close()

	guests := make([]domain.Guest, 0)
	for rows.Next() {
		var g domain.Guest
		err := rows.Scan(
			&g.GuestID,
			&g.LastName,
			&g.FirstName,
			&g.Patronymic,
			&g.PhoneNumber,
			&g.DateOfBirth,
			&g.IDDocument,
			&g.BalanceCents,
			&g.IsActive,
			&g.CreatedAt,
			&g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guest row: %w", err)
		}
		guests = append(guests, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guest rows: %w", err)
	}
	return guests, nil
}
