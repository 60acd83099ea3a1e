package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupVisitsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresVisitsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresVisitsRepository(db)
}

func visitRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"visit_id", "guest_id", "card_uid", "status", "opened_at",
		"closed_at", "closed_reason", "active_tap_id", "lock_set_at", "card_returned",
	})
}

func TestAcquireTapLock_Acquired(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE visits`).
		WithArgs("visit-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.AcquireTapLock(context.Background(), "visit-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireTapLock_HeldByOtherTap(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	// CAS misses when active_tap_id is already set to a different tap
	mock.ExpectExec(`UPDATE visits`).
		WithArgs("visit-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.AcquireTapLock(context.Background(), "visit-1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireTapLock_ReentrantOnSameTap(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	mock.ExpectExec(`active_tap_id IS NULL OR active_tap_id`).
		WithArgs("visit-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.AcquireTapLock(context.Background(), "visit-1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseTapLock_NoOpWhenUnlocked(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE visits SET active_tap_id = NULL`).
		WithArgs("visit-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReleaseTapLock(context.Background(), "visit-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveByCard_NotFound(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3:b2:c1").
		WillReturnError(sql.ErrNoRows)

	v, err := repo.GetActiveByCard(context.Background(), "04:a3:b2:c1")
	assert.Nil(t, v)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetByID_WithLock(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	opened := time.Now()
	locked := opened.Add(time.Minute)
	mock.ExpectQuery(`FROM visits WHERE visit_id`).
		WithArgs("visit-1").
		WillReturnRows(visitRows().AddRow(
			"visit-1", "guest-1", "04:a3", "active", opened,
			nil, nil, 3, locked, false,
		))

	v, err := repo.GetByID(context.Background(), "visit-1")
	require.NoError(t, err)
	assert.Equal(t, "visit-1", v.VisitID)
	assert.True(t, v.LockedOn(3))
	assert.False(t, v.LockedOn(4))
	assert.Equal(t, "04:a3", v.CardUID.String)
}

func TestCloseVisit_ClearsLock(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE visits`).
		WithArgs("visit-1", "normal", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Close(context.Background(), "visit-1", "normal", true)
	assert.NoError(t, err)
}

func TestCloseVisit_AlreadyClosed(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE visits`).
		WithArgs("visit-1", "normal", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Close(context.Background(), "visit-1", "normal", true)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListActive_JoinsGuestName(t *testing.T) {
	db, mock, repo := setupVisitsRepo(t)
	defer db.Close()

	opened := time.Now()
	rows := sqlmock.NewRows([]string{
		"visit_id", "guest_id", "last_name", "first_name", "patronymic",
		"phone_number", "balance_cents", "status", "card_uid",
		"active_tap_id", "lock_set_at", "opened_at",
	}).
		AddRow("visit-1", "guest-1", "Ivanov", "Petr", "Sergeevich",
			"+79990001122", int64(120000), "active", "04:a3", 2, opened, opened).
		AddRow("visit-2", "guest-2", "Smith", "Anna", "",
			"+79990003344", int64(5000), "active", nil, nil, nil, opened)

	mock.ExpectQuery(`FROM visits v`).WillReturnRows(rows)

	items, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Ivanov Petr Sergeevich", items[0].GuestFullName)
	require.NotNil(t, items[0].ActiveTapID)
	assert.Equal(t, 2, *items[0].ActiveTapID)
	assert.Equal(t, "Smith Anna", items[1].GuestFullName)
	assert.Nil(t, items[1].CardUID)
	assert.Nil(t, items[1].ActiveTapID)
}
