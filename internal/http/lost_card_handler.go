package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// LostCardHandler the lost-card blocklist endpoints
type LostCardHandler struct {
	lostCards service.LostCardService
	logger    *zap.Logger
}

// NewLostCardHandler creates the lost card handler
func NewLostCardHandler(lostCards service.LostCardService, logger *zap.Logger) *LostCardHandler {
	return &LostCardHandler{lostCards: lostCards, logger: logger}
}

type lostCardRequest struct {
	CardUID string `json:"card_uid"`
	Reason  string `json:"reason"`
	Comment string `json:"comment"`
}

// Report POST /api/lost-cards
func (h *LostCardHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req lostCardRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	record, err := h.lostCards.Report(r.Context(), service.ReportLostCardRequest{
		CardUID: req.CardUID,
		Reason:  req.Reason,
		Comment: req.Comment,
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(record))
}

// List GET /api/lost-cards
func (h *LostCardHandler) List(w http.ResponseWriter, r *http.Request) {
	cards, err := h.lostCards.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(cards))
}

// Restore POST /api/lost-cards/{uid}/restore
func (h *LostCardHandler) Restore(w http.ResponseWriter, r *http.Request, cardUID string) {
	if err := h.lostCards.Restore(r.Context(), cardUID, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"card_uid": cardUID, "status": "restored"}))
}
