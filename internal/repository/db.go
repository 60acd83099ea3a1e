package repository

import (
	"context"
	"database/sql"
)

// DBTX is the querier every repository runs against. Both *sql.DB and
// *sql.Tx satisfy it, so a repository can be re-bound to a transaction
// with WithTx and used unchanged inside a service-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)
