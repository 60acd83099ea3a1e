package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// Transaction types
const (
	TxTopUp      = "top_up"
	TxRefund     = "refund"
	TxCorrection = "correction"
)

// PostgresTransactionsRepository transactions table access. Rows are
// immutable balance movements; the guest balance itself is updated in the
// same database transaction by the guests repository.
type PostgresTransactionsRepository struct {
	db DBTX
}

// NewPostgresTransactionsRepository creates the transactions repository
func NewPostgresTransactionsRepository(db *sql.DB) *PostgresTransactionsRepository {
	return &PostgresTransactionsRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresTransactionsRepository) WithTx(tx *sql.Tx) *PostgresTransactionsRepository {
	return &PostgresTransactionsRepository{db: tx}
}

const transactionColumns = `
	transaction_id::text,
	guest_id::text,
	visit_id::text,
	amount_cents,
	type,
	payment_method,
	created_at
`

func scanTransactionRow(scan func(dest ...interface{}) error) (*domain.Transaction, error) {
	var t domain.Transaction
	err := scan(
		&t.TransactionID,
		&t.GuestID,
		&t.VisitID,
		&t.AmountCents,
		&t.Type,
		&t.PaymentMethod,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Insert records one balance movement
func (r *PostgresTransactionsRepository) Insert(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	transactionID := uuid.New().String()
	query := `
		INSERT INTO transactions (transaction_id, guest_id, visit_id, amount_cents, type, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING ` + transactionColumns
	created, err := scanTransactionRow(r.db.QueryRowContext(ctx, query,
		transactionID, t.GuestID, t.VisitID, t.AmountCents, t.Type, t.PaymentMethod).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return created, nil
}

// ListByGuest returns a guest's balance movements, newest first
func (r *PostgresTransactionsRepository) ListByGuest(ctx context.Context, guestID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE guest_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, guestID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransactionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction rows: %w", err)
	}
	return transactions, nil
}
