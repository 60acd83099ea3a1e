package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// ShiftHandler shift lifecycle and report export
type ShiftHandler struct {
	shifts  service.ShiftService
	reports service.ReportService
	logger  *zap.Logger
}

// NewShiftHandler creates the shift handler
func NewShiftHandler(shifts service.ShiftService, reports service.ReportService, logger *zap.Logger) *ShiftHandler {
	return &ShiftHandler{shifts: shifts, reports: reports, logger: logger}
}

// Open POST /api/shifts/open
func (h *ShiftHandler) Open(w http.ResponseWriter, r *http.Request) {
	shift, err := h.shifts.Open(r.Context(), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(shift))
}

// Close POST /api/shifts/close. A Z report snapshot is generated once the
// close commits.
func (h *ShiftHandler) Close(w http.ResponseWriter, r *http.Request) {
	shift, err := h.shifts.Close(r.Context(), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.reports.Generate(r.Context(), shift.ShiftID, "Z"); err != nil {
		h.logger.Error("failed to generate closing report",
			zap.String("shift_id", shift.ShiftID),
			zap.Error(err))
	}
	writeJSON(w, http.StatusOK, Ok(shift))
}

// Current GET /api/shifts/current
func (h *ShiftHandler) Current(w http.ResponseWriter, r *http.Request) {
	shift, err := h.shifts.Current(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(shift))
}

// ExportReport GET /api/shifts/{id}/report.xlsx
func (h *ShiftHandler) ExportReport(w http.ResponseWriter, r *http.Request, shiftID string) {
	data, err := h.reports.ExportXLSX(r.Context(), shiftID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="shift-%s.xlsx"`, shiftID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
