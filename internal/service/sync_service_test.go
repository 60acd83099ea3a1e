package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taphouse-backend/internal/config"
	"taphouse-backend/internal/events"
	"taphouse-backend/internal/repository"
)

func newSyncForTest(t *testing.T) (*sql.DB, sqlmock.Sqlmock, SyncService) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	publisher, err := events.NewPublisher(&config.MQTTConfig{Enabled: false}, logger)
	require.NoError(t, err)

	svc := NewSyncService(db,
		repository.NewPostgresVisitsRepository(db),
		repository.NewPostgresGuestsRepository(db),
		repository.NewPostgresPoursRepository(db),
		repository.NewPostgresTapsRepository(db),
		repository.NewPostgresKegsRepository(db),
		repository.NewPostgresSystemStateRepository(db),
		NewAuditor(repository.NewPostgresAuditRepository(db), logger),
		publisher, logger)
	return db, mock, svc
}

func syncVisitRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"visit_id", "guest_id", "card_uid", "status", "opened_at",
		"closed_at", "closed_reason", "active_tap_id", "lock_set_at", "card_returned",
	})
}

func syncPourRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"pour_id", "client_tx_id", "guest_id", "card_uid", "visit_id", "tap_id",
		"keg_id", "volume_ml", "amount_cents", "price_per_ml_cents", "duration_ms",
		"sync_status", "short_id", "is_manual_reconcile",
		"poured_at", "authorized_at", "synced_at", "reconciled_at", "created_at",
	})
}

func syncGuestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"guest_id", "last_name", "first_name", "patronymic", "phone_number",
		"date_of_birth", "id_document", "balance_cents", "is_active",
		"created_at", "updated_at",
	})
}

func pourContextRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"tap_id", "t_status", "keg_id", "current_volume_ml", "k_status",
		"beverage_id", "name", "sell_price_cents_per_liter",
	})
}

// Three knob reads per settlement; absent keys fall back to defaults.
func expectDefaultKnobs(mock sqlmock.Sqlmock) {
	for i := 0; i < 3; i++ {
		mock.ExpectQuery(`SELECT value FROM system_states`).
			WillReturnError(sql.ErrNoRows)
	}
}

func TestSettleBatch_MalformedReport(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "", CardUID: "04:a3", TapID: 1, VolumeML: 100},
		{ClientTxID: "tx-1", CardUID: "", TapID: 1, VolumeML: 100},
		{ClientTxID: "tx-2", CardUID: "04:a3", TapID: 0, VolumeML: 100},
	})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, SettleRejected, r.Status)
		assert.Equal(t, SyncReasonMissingPending, r.Reason)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleOne_ReplayAnswersFromRecordedState(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnRows(syncPourRows().AddRow(
			"pour-1", "tx-1", "guest-1", "04:a3", "visit-1", 2,
			"keg-1", 400, int64(2000), int64(5), nil,
			"synced", nil, false, now, now, now, nil, now))
	mock.ExpectRollback()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:A3", TapID: 2, VolumeML: 400},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleAccepted, results[0].Status)
	assert.Equal(t, OutcomeDuplicateExisting, results[0].Outcome)
	assert.Equal(t, SyncReasonDuplicate, results[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleOne_ReplayOfRejectedPour(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnRows(syncPourRows().AddRow(
			"pour-1", "tx-1", "guest-1", "04:a3", "visit-1", 2,
			"keg-1", 400, int64(2000), int64(5), nil,
			"rejected", nil, false, now, now, now, nil, now))
	mock.ExpectRollback()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:a3", TapID: 2, VolumeML: 400},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleRejected, results[0].Status)
	assert.Equal(t, OutcomeDuplicateExisting, results[0].Outcome)
}

func TestSettleOne_NoActiveVisitRecordedAuditOnly(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:A3", TapID: 2, VolumeML: 400},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleAuditOnly, results[0].Status)
	assert.Equal(t, OutcomeAuditLateRecorded, results[0].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleOne_LateReportMatchesManualReconcile(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`is_manual_reconcile = true`).
		WithArgs("A3F9K2", 2).
		WillReturnRows(syncPourRows().AddRow(
			"pour-9", "manual-reconcile:visit-1:x", "guest-1", "04:a3", "visit-1", 2,
			"keg-1", 400, int64(2000), int64(5), nil,
			"reconciled", "A3F9K2", true, now, nil, nil, now, now))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", ShortID: "A3F9K2", CardUID: "04:a3", TapID: 2, VolumeML: 400},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleAuditOnly, results[0].Status)
	assert.Equal(t, OutcomeAuditLateMatched, results[0].Outcome)
	assert.Equal(t, SyncReasonLateSyncMatched, results[0].Reason)
}

func TestSettleOne_TapMismatchConflict(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnRows(syncVisitRows().AddRow(
			"visit-1", "guest-1", "04:a3", "active", time.Now(),
			nil, nil, 5, time.Now(), false))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:a3", TapID: 3, VolumeML: 400},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleConflict, results[0].Status)
	assert.Equal(t, SyncReasonTapMismatch, results[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleOne_NoLockNoPendingRejected(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnRows(syncVisitRows().AddRow(
			"visit-1", "guest-1", "04:a3", "active", time.Now(),
			nil, nil, nil, nil, false))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:a3", TapID: 3, VolumeML: 400},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleRejected, results[0].Status)
	assert.Equal(t, SyncReasonMissingPending, results[0].Reason)
}

func TestSettleOne_InsufficientFundsAtSettle(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnRows(syncVisitRows().AddRow(
			"visit-1", "guest-1", "04:a3", "active", now,
			nil, nil, 2, now, false))
	mock.ExpectQuery(`sync_status = 'pending_sync'`).
		WithArgs("visit-1", 2).
		WillReturnRows(syncPourRows().AddRow(
			"pour-1", "pending-sync:visit-1:2:ab12cd34", "guest-1", "04:a3", "visit-1", 2,
			"keg-1", 0, int64(0), int64(50), nil,
			"pending_sync", nil, false, now, now, nil, nil, now))
	mock.ExpectQuery(`FROM taps t`).
		WithArgs(2).
		WillReturnRows(pourContextRows().AddRow(
			2, "processing_sync", "keg-1", 5000, "in_use",
			"bev-1", "Pale Ale", int64(50000)))
	mock.ExpectQuery(`FROM guests WHERE guest_id`).
		WithArgs("guest-1").
		WillReturnRows(syncGuestRows().AddRow(
			"guest-1", "Ivanov", "Petr", nil, "+79990001122",
			now.AddDate(-30, 0, 0), "", int64(100), true, now, now))
	expectDefaultKnobs(mock)

	// 500ml at 50 cents/ml = 25000, balance 100, overdraft 0: rejected
	mock.ExpectExec(`sync_status = 'rejected'`).
		WithArgs("pour-1", "tx-1", 500, int64(25000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE visits SET active_tap_id = NULL`).
		WithArgs("visit-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM taps t`).
		WithArgs(2).
		WillReturnRows(pourContextRows().AddRow(
			2, "processing_sync", "keg-1", 5000, "in_use",
			"bev-1", "Pale Ale", int64(50000)))
	mock.ExpectExec(`UPDATE taps SET status`).
		WithArgs(2, "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:a3", TapID: 2, VolumeML: 500},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleRejected, results[0].Status)
	assert.Equal(t, OutcomeRejectedFunds, results[0].Outcome)
	assert.Equal(t, SyncReasonFunds, results[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleOne_AcceptedHappyPath(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnRows(syncVisitRows().AddRow(
			"visit-1", "guest-1", "04:a3", "active", now,
			nil, nil, 2, now, false))
	mock.ExpectQuery(`sync_status = 'pending_sync'`).
		WithArgs("visit-1", 2).
		WillReturnRows(syncPourRows().AddRow(
			"pour-1", "pending-sync:visit-1:2:ab12cd34", "guest-1", "04:a3", "visit-1", 2,
			"keg-1", 0, int64(0), int64(50), nil,
			"pending_sync", nil, false, now, now, nil, nil, now))
	mock.ExpectQuery(`FROM taps t`).
		WithArgs(2).
		WillReturnRows(pourContextRows().AddRow(
			2, "processing_sync", "keg-1", 5000, "in_use",
			"bev-1", "Pale Ale", int64(50000)))
	mock.ExpectQuery(`FROM guests WHERE guest_id`).
		WithArgs("guest-1").
		WillReturnRows(syncGuestRows().AddRow(
			"guest-1", "Ivanov", "Petr", nil, "+79990001122",
			now.AddDate(-30, 0, 0), "", int64(100000), true, now, now))
	expectDefaultKnobs(mock)

	// 400ml at 50 cents/ml = 20000 against a 100000 balance
	mock.ExpectExec(`sync_status = 'synced'`).
		WithArgs("pour-1", "tx-1", 400, int64(20000),
			sql.NullInt64{Int64: 9800, Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE guests SET balance_cents = balance_cents -`).
		WithArgs("guest-1", int64(20000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`GREATEST\(current_volume_ml`).
		WithArgs("keg-1", 400).
		WillReturnRows(sqlmock.NewRows([]string{"current_volume_ml"}).AddRow(4600))
	mock.ExpectExec(`UPDATE taps SET status`).
		WithArgs(2, "active").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE visits SET active_tap_id = NULL`).
		WithArgs("visit-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:A3", TapID: 2, VolumeML: 400, DurationMs: 9800},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleAccepted, results[0].Status)
	assert.Equal(t, OutcomeSynced, results[0].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleOne_KegDrainsToEmptyOnAccept(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM visits WHERE card_uid`).
		WithArgs("04:a3").
		WillReturnRows(syncVisitRows().AddRow(
			"visit-1", "guest-1", "04:a3", "active", now,
			nil, nil, 2, now, false))
	mock.ExpectQuery(`sync_status = 'pending_sync'`).
		WithArgs("visit-1", 2).
		WillReturnRows(syncPourRows().AddRow(
			"pour-1", "pending-sync:visit-1:2:ab12cd34", "guest-1", "04:a3", "visit-1", 2,
			"keg-1", 0, int64(0), int64(50), nil,
			"pending_sync", nil, false, now, now, nil, nil, now))
	mock.ExpectQuery(`FROM taps t`).
		WithArgs(2).
		WillReturnRows(pourContextRows().AddRow(
			2, "processing_sync", "keg-1", 400, "in_use",
			"bev-1", "Pale Ale", int64(50000)))
	mock.ExpectQuery(`FROM guests WHERE guest_id`).
		WithArgs("guest-1").
		WillReturnRows(syncGuestRows().AddRow(
			"guest-1", "Ivanov", "Petr", nil, "+79990001122",
			now.AddDate(-30, 0, 0), "", int64(100000), true, now, now))
	expectDefaultKnobs(mock)

	mock.ExpectExec(`sync_status = 'synced'`).
		WithArgs("pour-1", "tx-1", 400, int64(20000), sql.NullInt64{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE guests SET balance_cents = balance_cents -`).
		WithArgs("guest-1", int64(20000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// the pour empties the keg: keg flips to empty, tap goes out of service
	mock.ExpectQuery(`GREATEST\(current_volume_ml`).
		WithArgs("keg-1", 400).
		WillReturnRows(sqlmock.NewRows([]string{"current_volume_ml"}).AddRow(0))
	mock.ExpectExec(`UPDATE kegs`).
		WithArgs("keg-1", "empty").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE taps SET status`).
		WithArgs(2, "empty").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE visits SET active_tap_id = NULL`).
		WithArgs("visit-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:a3", TapID: 2, VolumeML: 400},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SettleAccepted, results[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleBatch_TransientFailureIsolatedPerItem(t *testing.T) {
	db, mock, svc := newSyncForTest(t)
	defer db.Close()

	now := time.Now()
	// first item dies on a storage error, second settles as a replay
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-1").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM pours WHERE client_tx_id`).
		WithArgs("tx-2").
		WillReturnRows(syncPourRows().AddRow(
			"pour-2", "tx-2", "guest-1", "04:a3", "visit-1", 2,
			"keg-1", 400, int64(2000), int64(5), nil,
			"synced", nil, false, now, now, now, nil, now))
	mock.ExpectRollback()

	results := svc.SettleBatch(context.Background(), []PourReport{
		{ClientTxID: "tx-1", CardUID: "04:a3", TapID: 2, VolumeML: 400},
		{ClientTxID: "tx-2", CardUID: "04:a3", TapID: 2, VolumeML: 400},
	})
	require.Len(t, results, 2)
	assert.Equal(t, SettleError, results[0].Status)
	assert.Equal(t, SyncReasonTransient, results[0].Reason)
	assert.Equal(t, SettleAccepted, results[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
