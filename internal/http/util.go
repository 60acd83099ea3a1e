package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"taphouse-backend/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// writeError maps the service error taxonomy onto HTTP statuses: denial
// 403, conflict 409, not found 404, validation 422, anything else 500
// (retriable).
func writeError(w http.ResponseWriter, err error) {
	var denial *service.DenialError
	if errors.As(err, &denial) {
		writeJSON(w, http.StatusForbidden, FailDenied(denial.Error(), Denied{
			Reason:  denial.Reason,
			Context: denial.Context,
		}))
		return
	}
	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, FailDenied(conflict.Error(), Denied{
			Reason: conflict.Reason,
		}))
		return
	}
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusUnprocessableEntity, Fail(validation.Error()))
		return
	}
	if errors.Is(err, service.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, Fail("not found"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
}
