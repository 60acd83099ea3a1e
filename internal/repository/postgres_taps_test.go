package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTapsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresTapsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresTapsRepository(db)
}

func tapRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"tap_id", "keg_id", "display_name", "status", "last_cleaned_at",
	})
}

func TestTapInsert_StartsLocked(t *testing.T) {
	db, mock, repo := setupTapsRepo(t)
	defer db.Close()

	mock.ExpectQuery(`VALUES \(\$1, \$2, 'locked'\)`).
		WithArgs(3, "Tap 3").
		WillReturnRows(tapRows().AddRow(3, nil, "Tap 3", "locked", nil))

	tap, err := repo.Insert(context.Background(), 3, "Tap 3")
	require.NoError(t, err)
	assert.Equal(t, "locked", tap.Status)
	assert.False(t, tap.KegID.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTapAssignKeg_BringsTapIntoService(t *testing.T) {
	db, mock, repo := setupTapsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE taps SET keg_id = \$2, status = 'active'`).
		WithArgs(3, "keg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AssignKeg(context.Background(), 3, "keg-1")
	assert.NoError(t, err)
}

func TestTapAssignKeg_OccupiedTap(t *testing.T) {
	db, mock, repo := setupTapsRepo(t)
	defer db.Close()

	// WHERE keg_id IS NULL matches nothing on an occupied tap
	mock.ExpectExec(`UPDATE taps SET keg_id`).
		WithArgs(3, "keg-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AssignKeg(context.Background(), 3, "keg-2")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestTapUnassignKeg_TakesTapOutOfService(t *testing.T) {
	db, mock, repo := setupTapsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE taps SET keg_id = NULL, status = 'locked'`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UnassignKeg(context.Background(), 3)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
