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

func newLostCardsForTest(t *testing.T) (*sql.DB, sqlmock.Sqlmock, LostCardService) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	svc := NewLostCardService(db,
		repository.NewPostgresLostCardsRepository(db),
		NewAuditor(repository.NewPostgresAuditRepository(db), logger),
		logger)
	return db, mock, svc
}

func lostCardRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"lost_card_id", "card_uid", "reported_by", "reason", "comment",
		"visit_id", "guest_id", "reported_at",
	})
}

func TestReportLostCard_BlocksAndAudits(t *testing.T) {
	db, mock, svc := newLostCardsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO lost_cards`).
		WillReturnRows(lostCardRows().AddRow(
			"lc-1", "04:a3", "admin", "lost", nil, nil, nil, time.Now()))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := svc.Report(context.Background(), ReportLostCardRequest{
		CardUID: "04:A3", Reason: "lost", Actor: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "04:a3", record.CardUID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportLostCard_DuplicateReturnsExisting(t *testing.T) {
	db, mock, svc := newLostCardsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO lost_cards`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "lost_cards_card_uid_key"})
	mock.ExpectRollback()
	mock.ExpectQuery(`FROM lost_cards WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnRows(lostCardRows().AddRow(
			"lc-1", "04:a3", "admin", "lost", nil, nil, nil, time.Now()))

	record, err := svc.Report(context.Background(), ReportLostCardRequest{
		CardUID: "04:a3", Reason: "lost", Actor: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "lc-1", record.LostCardID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportLostCard_EmptyUID(t *testing.T) {
	db, _, svc := newLostCardsForTest(t)
	defer db.Close()

	_, err := svc.Report(context.Background(), ReportLostCardRequest{CardUID: "   "})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestRestoreLostCard_RemovesFromBlocklist(t *testing.T) {
	db, mock, svc := newLostCardsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM lost_cards`).
		WithArgs("04:a3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.Restore(context.Background(), "04:A3", "admin")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreLostCard_NotOnBlocklist(t *testing.T) {
	db, mock, svc := newLostCardsForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM lost_cards`).
		WithArgs("04:a3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := svc.Restore(context.Background(), "04:a3", "admin")
	assert.ErrorIs(t, err, ErrNotFound)
}
