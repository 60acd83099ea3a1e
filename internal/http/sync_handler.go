package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// SyncHandler the controller-facing batch settlement endpoint. Bare JSON in
// and out; controllers resend any item that did not come back accepted,
// rejected or audit_only.
type SyncHandler struct {
	sync   service.SyncService
	logger *zap.Logger
}

// NewSyncHandler creates the sync handler
func NewSyncHandler(sync service.SyncService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, logger: logger}
}

type syncRequest struct {
	Pours []service.PourReport `json:"pours"`
}

type syncResponse struct {
	Results []service.SettleResult `json:"results"`
}

// SettleBatch POST /api/sync/pours
func (h *SyncHandler) SettleBatch(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Pours) == 0 {
		writeJSON(w, http.StatusOK, syncResponse{Results: []service.SettleResult{}})
		return
	}

	results := h.sync.SettleBatch(r.Context(), req.Pours)
	h.logger.Info("sync batch settled", zap.Int("items", len(results)))
	writeJSON(w, http.StatusOK, syncResponse{Results: results})
}
