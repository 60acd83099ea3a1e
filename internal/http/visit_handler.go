package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// VisitHandler visit lifecycle, pour authorization and reconciliation
type VisitHandler struct {
	visits    service.VisitService
	lostCards service.LostCardService
	system    service.SystemService
	logger    *zap.Logger
}

// NewVisitHandler creates the visit handler
func NewVisitHandler(visits service.VisitService, lostCards service.LostCardService, system service.SystemService, logger *zap.Logger) *VisitHandler {
	return &VisitHandler{visits: visits, lostCards: lostCards, system: system, logger: logger}
}

type openVisitRequest struct {
	GuestID string `json:"guest_id"`
	CardUID string `json:"card_uid"`
}

// Open POST /api/visits/open
func (h *VisitHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openVisitRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	visit, err := h.visits.Open(r.Context(), service.OpenVisitRequest{
		GuestID: req.GuestID,
		CardUID: req.CardUID,
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(visit))
}

type closeVisitRequest struct {
	Reason       string `json:"reason"`
	CardReturned bool   `json:"card_returned"`
}

// Close POST /api/visits/{id}/close
func (h *VisitHandler) Close(w http.ResponseWriter, r *http.Request, visitID string) {
	var req closeVisitRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	visit, err := h.visits.Close(r.Context(), service.CloseVisitRequest{
		VisitID:      visitID,
		Reason:       req.Reason,
		CardReturned: req.CardReturned,
		Actor:        actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(visit))
}

type assignCardRequest struct {
	CardUID string `json:"card_uid"`
}

// AssignCard POST /api/visits/{id}/assign-card
func (h *VisitHandler) AssignCard(w http.ResponseWriter, r *http.Request, visitID string) {
	var req assignCardRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	visit, err := h.visits.AssignCard(r.Context(), visitID, req.CardUID, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(visit))
}

// ListActive GET /api/visits/active
func (h *VisitHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	items, err := h.visits.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

// GetActiveByCard GET /api/visits/active/by-card/{uid}
func (h *VisitHandler) GetActiveByCard(w http.ResponseWriter, r *http.Request, cardUID string) {
	visit, err := h.visits.GetActiveByCard(r.Context(), cardUID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(visit))
}

// GetActiveByGuest GET /api/visits/active/by-guest/{id}
func (h *VisitHandler) GetActiveByGuest(w http.ResponseWriter, r *http.Request, guestID string) {
	visit, err := h.visits.GetActiveByGuest(r.Context(), guestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(visit))
}

type authorizePourRequest struct {
	CardUID string `json:"card_uid"`
	TapID   int    `json:"tap_id"`
}

// AuthorizePour POST /api/visits/authorize-pour. Controller-facing: the
// success body is the bare clamp context, not the Result envelope.
func (h *VisitHandler) AuthorizePour(w http.ResponseWriter, r *http.Request) {
	var req authorizePourRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	resp, err := h.visits.AuthorizePour(r.Context(), service.AuthorizePourRequest{
		CardUID: req.CardUID,
		TapID:   req.TapID,
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type forceUnlockRequest struct {
	Reason  string `json:"reason"`
	Comment string `json:"comment"`
}

// ForceUnlock POST /api/visits/{id}/force-unlock
func (h *VisitHandler) ForceUnlock(w http.ResponseWriter, r *http.Request, visitID string) {
	var req forceUnlockRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	visit, err := h.visits.ForceUnlock(r.Context(), service.ForceUnlockRequest{
		VisitID: visitID,
		Reason:  req.Reason,
		Comment: req.Comment,
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(visit))
}

type reconcilePourRequest struct {
	TapID       int    `json:"tap_id"`
	ShortID     string `json:"short_id"`
	VolumeML    int    `json:"volume_ml"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	Comment     string `json:"comment"`
}

// ReconcilePour POST /api/visits/{id}/reconcile-pour
func (h *VisitHandler) ReconcilePour(w http.ResponseWriter, r *http.Request, visitID string) {
	var req reconcilePourRequest
	if err := readBodyJSON(r, 8192, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	visit, err := h.visits.ReconcilePour(r.Context(), service.ReconcilePourRequest{
		VisitID:     visitID,
		TapID:       req.TapID,
		ShortID:     req.ShortID,
		VolumeML:    req.VolumeML,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
		Comment:     req.Comment,
		Actor:       actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(visit))
}

type reportLostCardRequest struct {
	Reason  string `json:"reason"`
	Comment string `json:"comment"`
}

// ReportLostCard POST /api/visits/{id}/report-lost-card blocks the card
// bound to the visit
func (h *VisitHandler) ReportLostCard(w http.ResponseWriter, r *http.Request, visitID string) {
	var req reportLostCardRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	visit, err := h.visits.GetByID(r.Context(), visitID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !visit.CardUID.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, Fail("visit has no card bound"))
		return
	}
	record, err := h.lostCards.Report(r.Context(), service.ReportLostCardRequest{
		CardUID: visit.CardUID.String,
		Reason:  req.Reason,
		Comment: req.Comment,
		Actor:   actor(r),
		VisitID: visit.VisitID,
		GuestID: visit.GuestID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(record))
}

// ListPours GET /api/visits/{id}/pours
func (h *VisitHandler) ListPours(w http.ResponseWriter, r *http.Request, visitID string) {
	pours, err := h.system.ListPoursForVisit(r.Context(), visitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(pours))
}
