package repository

import (
	"context"
	"database/sql"
	"fmt"

	"taphouse-backend/internal/domain"
)

// PostgresCardsRepository cards table access. Cards are keyed by the UID
// read off the hardware; rows are created lazily on first assignment.
type PostgresCardsRepository struct {
	db DBTX
}

// NewPostgresCardsRepository creates the cards repository
func NewPostgresCardsRepository(db *sql.DB) *PostgresCardsRepository {
	return &PostgresCardsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresCardsRepository) WithTx(tx *sql.Tx) *PostgresCardsRepository {
	return &PostgresCardsRepository{db: tx}
}

// GetByUID fetches one card; returns sql.ErrNoRows if absent
func (r *PostgresCardsRepository) GetByUID(ctx context.Context, cardUID string) (*domain.Card, error) {
	query := `SELECT card_uid, guest_id::text, status, created_at FROM cards WHERE card_uid = $1`
	var c domain.Card
	err := r.db.QueryRowContext(ctx, query, cardUID).Scan(&c.CardUID, &c.GuestID, &c.Status, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &c, nil
}

// Assign binds a card to a guest and activates it, creating the row on
// first sight of the card
func (r *PostgresCardsRepository) Assign(ctx context.Context, cardUID, guestID string) error {
	query := `
		INSERT INTO cards (card_uid, guest_id, status, created_at)
		VALUES ($1, $2, 'active', now())
		ON CONFLICT (card_uid) DO UPDATE
		SET guest_id = EXCLUDED.guest_id, status = 'active'`
	if _, err := r.db.ExecContext(ctx, query, cardUID, guestID); err != nil {
		return fmt.Errorf("failed to assign card: %w", err)
	}
	return nil
}

// Release unbinds the card and deactivates it, typically on visit close
func (r *PostgresCardsRepository) Release(ctx context.Context, cardUID string) error {
	query := `UPDATE cards SET guest_id = NULL, status = 'inactive' WHERE card_uid = $1`
	if _, err := r.db.ExecContext(ctx, query, cardUID); err != nil {
		return fmt.Errorf("failed to release card: %w", err)
	}
	return nil
}
