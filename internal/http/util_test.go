package httpapi

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taphouse-backend/internal/service"
)

func TestWriteError_DenialMapsTo403(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, service.NewDenial(service.ReasonInsufficientFunds, map[string]interface{}{
		"balance_cents": int64(100),
		"max_volume_ml": 16,
	}))

	assert.Equal(t, 403, rec.Code)
	var out Result[Denied]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, ResultError, out.Code)
	assert.Equal(t, service.ReasonInsufficientFunds, out.Result.Reason)
	assert.EqualValues(t, 16, out.Result.Context["max_volume_ml"])
}

func TestWriteError_ConflictMapsTo409(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, service.NewConflict(service.ReasonTapMismatch, "visit is locked on tap 5"))

	assert.Equal(t, 409, rec.Code)
	var out Result[Denied]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, service.ReasonTapMismatch, out.Result.Reason)
}

func TestWriteError_ValidationMapsTo422(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, service.NewValidation("card_uid", "must not be empty"))
	assert.Equal(t, 422, rec.Code)
}

func TestWriteError_NotFoundMapsTo404(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, service.ErrNotFound)
	assert.Equal(t, 404, rec.Code)
}

func TestWriteError_UnknownMapsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("boom"))
	assert.Equal(t, 500, rec.Code)
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 7, parseInt("7", 0))
	assert.Equal(t, 42, parseInt("", 42))
	assert.Equal(t, 42, parseInt("abc", 42))
}
