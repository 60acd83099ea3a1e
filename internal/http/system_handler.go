package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// SystemHandler runtime policy knobs and the audit query endpoint
type SystemHandler struct {
	system service.SystemService
	logger *zap.Logger
}

// NewSystemHandler creates the system handler
func NewSystemHandler(system service.SystemService, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{system: system, logger: logger}
}

// ListStates GET /api/system/state
func (h *SystemHandler) ListStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.system.ListStates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(states))
}

type setStateRequest struct {
	Value string `json:"value"`
}

// SetState PUT /api/system/state/{key}
func (h *SystemHandler) SetState(w http.ResponseWriter, r *http.Request, key string) {
	var req setStateRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.system.SetState(r.Context(), key, req.Value, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"key": key, "value": req.Value}))
}

// ListPours GET /api/pours?limit=
func (h *SystemHandler) ListPours(w http.ResponseWriter, r *http.Request) {
	pours, err := h.system.ListRecentPours(r.Context(), parseInt(r.URL.Query().Get("limit"), 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(pours))
}

// ListAudit GET /api/audit?action=&target=&limit=&offset=
func (h *SystemHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.system.ListAudit(r.Context(),
		q.Get("action"),
		q.Get("target"),
		parseInt(q.Get("limit"), 100),
		parseInt(q.Get("offset"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(entries))
}
