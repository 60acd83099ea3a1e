package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresLostCardsRepository lost_cards table access. The table is the
// blocklist itself: a row present means the card is blocked.
type PostgresLostCardsRepository struct {
	db DBTX
}

// NewPostgresLostCardsRepository creates the lost cards repository
func NewPostgresLostCardsRepository(db *sql.DB) *PostgresLostCardsRepository {
	return &PostgresLostCardsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresLostCardsRepository) WithTx(tx *sql.Tx) *PostgresLostCardsRepository {
	return &PostgresLostCardsRepository{db: tx}
}

const lostCardColumns = `
	lost_card_id::text,
	card_uid,
	reported_by,
	reason,
	comment,
	visit_id::text,
	guest_id::text,
	reported_at
`

func scanLostCardRow(scan func(dest ...interface{}) error) (*domain.LostCard, error) {
	var lc domain.LostCard
	err := scan(
		&lc.LostCardID,
		&lc.CardUID,
		&lc.ReportedBy,
		&lc.Reason,
		&lc.Comment,
		&lc.VisitID,
		&lc.GuestID,
		&lc.ReportedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lc, nil
}

// Exists reports whether the normalized card UID is on the blocklist
func (r *PostgresLostCardsRepository) Exists(ctx context.Context, cardUID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM lost_cards WHERE card_uid = $1)`
	if err := r.db.QueryRowContext(ctx, query, domain.NormalizeCardUID(cardUID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check lost card: %w", err)
	}
	return exists, nil
}

// GetByUID fetches the report for a normalized card UID, or sql.ErrNoRows
func (r *PostgresLostCardsRepository) GetByUID(ctx context.Context, cardUID string) (*domain.LostCard, error) {
	query := `SELECT ` + lostCardColumns + `FROM lost_cards WHERE card_uid = $1`
	lc, err := scanLostCardRow(r.db.QueryRowContext(ctx, query, domain.NormalizeCardUID(cardUID)).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get lost card: %w", err)
	}
	return lc, nil
}

// Insert puts a card on the blocklist. The card UID is stored normalized;
// a duplicate report surfaces as pq 23505 on the unique card_uid.
func (r *PostgresLostCardsRepository) Insert(ctx context.Context, lc *domain.LostCard) (*domain.LostCard, error) {
	lostCardID := uuid.New().String()
	query := `
		INSERT INTO lost_cards (lost_card_id, card_uid, reported_by, reason, comment,
		                        visit_id, guest_id, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING ` + lostCardColumns
	created, err := scanLostCardRow(r.db.QueryRowContext(ctx, query,
		lostCardID, domain.NormalizeCardUID(lc.CardUID),
		lc.ReportedBy, lc.Reason, lc.Comment, lc.VisitID, lc.GuestID).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert lost card: %w", err)
	}
	return created, nil
}

// Delete takes a card off the blocklist; returns sql.ErrNoRows when the
// card was not on it
func (r *PostgresLostCardsRepository) Delete(ctx context.Context, cardUID string) error {
	query := `DELETE FROM lost_cards WHERE card_uid = $1`
	result, err := r.db.ExecContext(ctx, query, domain.NormalizeCardUID(cardUID))
	if err != nil {
		return fmt.Errorf("failed to delete lost card: %w", err)
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

// List returns the blocklist, newest reports first
func (r *PostgresLostCardsRepository) List(ctx context.Context) ([]domain.LostCard, error) {
	query := `SELECT ` + lostCardColumns + `FROM lost_cards ORDER BY reported_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list lost cards: %w", err)
	}
	defer rows.Close()

	cards := make([]domain.LostCard, 0)
	for rows.Next() {
		lc, err := scanLostCardRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lost card row: %w", err)
		}
		cards = append(cards, *lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lost card rows: %w", err)
	}
	return cards, nil
}
