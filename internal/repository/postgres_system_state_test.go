package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taphouse-backend/internal/domain"
)

func setupStateRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresSystemStateRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresSystemStateRepository(db)
}

func TestGetInt_DefaultWhenAbsent(t *testing.T) {
	db, mock, repo := setupStateRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM system_states`).
		WithArgs("min_start_ml").
		WillReturnError(sql.ErrNoRows)

	v, err := repo.GetInt(context.Background(), "min_start_ml", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)
}

func TestGetInt_DefaultWhenUnparsable(t *testing.T) {
	db, mock, repo := setupStateRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM system_states`).
		WithArgs("safety_ml").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("not-a-number"))

	v, err := repo.GetInt(context.Background(), "safety_ml", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestPourPolicyKnobs_StoredValues(t *testing.T) {
	db, mock, repo := setupStateRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM system_states`).
		WithArgs(domain.StateMinStartML).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("30"))
	mock.ExpectQuery(`SELECT value FROM system_states`).
		WithArgs(domain.StateSafetyML).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("5"))
	mock.ExpectQuery(`SELECT value FROM system_states`).
		WithArgs(domain.StateAllowedOverdraftCents).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("10000"))

	knobs, err := repo.PourPolicyKnobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, knobs.MinStartML)
	assert.Equal(t, 5, knobs.SafetyML)
	assert.Equal(t, int64(10000), knobs.AllowedOverdraftCents)
}

func TestEmergencyStopEnabled_OffByDefault(t *testing.T) {
	db, mock, repo := setupStateRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM system_states`).
		WithArgs(domain.StateEmergencyStop).
		WillReturnError(sql.ErrNoRows)

	on, err := repo.EmergencyStopEnabled(context.Background())
	require.NoError(t, err)
	assert.False(t, on)
}
