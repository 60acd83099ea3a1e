package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"taphouse-backend/internal/domain"
)

// PostgresBeveragesRepository beverages catalog access
type PostgresBeveragesRepository struct {
	db DBTX
}

// NewPostgresBeveragesRepository creates the beverages repository
func NewPostgresBeveragesRepository(db *sql.DB) *PostgresBeveragesRepository {
	return &PostgresBeveragesRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresBeveragesRepository) WithTx(tx *sql.Tx) *PostgresBeveragesRepository {
	return &PostgresBeveragesRepository{db: tx}
}

const beverageColumns = `
	beverage_id::text,
	name,
	brewery,
	style,
	abv::text,
	sell_price_cents_per_liter
`

func scanBeverageRow(scan func(dest ...interface{}) error) (*domain.Beverage, error) {
	var b domain.Beverage
	err := scan(
		&b.BeverageID,
		&b.Name,
		&b.Brewery,
		&b.Style,
		&b.ABV,
		&b.SellPriceCentsPerLiter,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByID fetches one beverage; returns sql.ErrNoRows if absent
func (r *PostgresBeveragesRepository) GetByID(ctx context.Context, beverageID string) (*domain.Beverage, error) {
	query := `SELECT ` + beverageColumns + `FROM beverages WHERE beverage_id = $1`
	b, err := scanBeverageRow(r.db.QueryRowContext(ctx, query, beverageID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get beverage: %w", err)
	}
	return b, nil
}

// Insert adds a catalog entry. The unique name surfaces as pq 23505.
func (r *PostgresBeveragesRepository) Insert(ctx context.Context, b *domain.Beverage) (*domain.Beverage, error) {
	beverageID := uuid.New().String()
	query := `
		INSERT INTO beverages (beverage_id, name, brewery, style, abv, sell_price_cents_per_liter)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING ` + beverageColumns
	created, err := scanBeverageRow(r.db.QueryRowContext(ctx, query,
		beverageID, b.Name, b.Brewery, b.Style, b.ABV, b.SellPriceCentsPerLiter).Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to insert beverage: %w", err)
	}
	return created, nil
}

// UpdatePrice repoints the sell price; pours already settled keep the price
// they were charged at
func (r *PostgresBeveragesRepository) UpdatePrice(ctx context.Context, beverageID string, sellPriceCentsPerLiter int64) error {
	query := `UPDATE beverages SET sell_price_cents_per_liter = $2 WHERE beverage_id = $1`
	result, err := r.db.ExecContext(ctx, query, beverageID, sellPriceCentsPerLiter)
	if err != nil {
		return fmt.Errorf("failed to update beverage price: %w", err)
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

// List returns the full catalog sorted by name
func (r *PostgresBeveragesRepository) List(ctx context.Context) ([]domain.Beverage, error) {
	query := `SELECT ` + beverageColumns + `FROM beverages ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list beverages: %w", err)
	}
	defer rows.Close()

	beverages := make([]domain.Beverage, 0)
	for rows.Next() {
		b, err := scanBeverageRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan beverage row: %w", err)
		}
		beverages = append(beverages, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beverage rows: %w", err)
	}
	return beverages, nil
}
