package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taphouse-backend/internal/repository"
)

func newShiftsForTest(t *testing.T) (*sql.DB, sqlmock.Sqlmock, ShiftService) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	svc := NewShiftService(db,
		repository.NewPostgresShiftsRepository(db),
		repository.NewPostgresVisitsRepository(db),
		repository.NewPostgresPoursRepository(db),
		NewAuditor(repository.NewPostgresAuditRepository(db), logger),
		logger)
	return db, mock, svc
}

func TestShiftOpen_SecondOpenConflicts(t *testing.T) {
	db, mock, svc := newShiftsForTest(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO shifts`).
		WithArgs(sqlmock.AnyArg(), sql.NullString{String: "admin", Valid: true}).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_shifts_one_open"})

	_, err := svc.Open(context.Background(), "admin")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonShiftOpen, conflict.Reason)
}

func TestShiftClose_BlockedByActiveVisits(t *testing.T) {
	db, mock, svc := newShiftsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	expectOpenShift(mock)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM visits`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.Close(context.Background(), "admin")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonActiveVisits, conflict.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftClose_BlockedByPendingPours(t *testing.T) {
	db, mock, svc := newShiftsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	expectOpenShift(mock)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM visits`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM pours`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.Close(context.Background(), "admin")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonPendingPours, conflict.Reason)
}

func TestShiftClose_Succeeds(t *testing.T) {
	db, mock, svc := newShiftsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	expectOpenShift(mock)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM visits`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM pours`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`UPDATE shifts SET status = 'closed'`).
		WithArgs("shift-1", sql.NullString{String: "admin", Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM shifts WHERE shift_id`).
		WithArgs("shift-1").
		WillReturnRows(shiftRows().AddRow(
			"shift-1", "closed", time.Now(), time.Now(), "admin", "admin"))

	shift, err := svc.Close(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, "closed", shift.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestShiftClose_NoOpenShift(t *testing.T) {
	db, mock, svc := newShiftsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM shifts WHERE status = 'open'`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.Close(context.Background(), "admin")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonShiftClosed, conflict.Reason)
}

func TestShiftCurrent_NotFound(t *testing.T) {
	db, mock, svc := newShiftsForTest(t)
	defer db.Close()

	mock.ExpectQuery(`FROM shifts WHERE status = 'open'`).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Current(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}
