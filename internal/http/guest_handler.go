package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// GuestHandler guest records, top-ups and history
type GuestHandler struct {
	guests service.GuestService
	logger *zap.Logger
}

// NewGuestHandler creates the guest handler
func NewGuestHandler(guests service.GuestService, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{guests: guests, logger: logger}
}

// Create POST /api/guests
func (h *GuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGuestRequest
	if err := readBodyJSON(r, 8192, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	guest, err := h.guests.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(guest))
}

// Update PUT /api/guests/{id}
func (h *GuestHandler) Update(w http.ResponseWriter, r *http.Request, guestID string) {
	var req service.CreateGuestRequest
	if err := readBodyJSON(r, 8192, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	guest, err := h.guests.Update(r.Context(), guestID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(guest))
}

// Get GET /api/guests/{id}
func (h *GuestHandler) Get(w http.ResponseWriter, r *http.Request, guestID string) {
	guest, err := h.guests.GetByID(r.Context(), guestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(guest))
}

// List GET /api/guests?search=&limit=&offset=
func (h *GuestHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	guests, err := h.guests.List(r.Context(),
		q.Get("search"),
		parseInt(q.Get("limit"), 50),
		parseInt(q.Get("offset"), 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(guests))
}

type topUpRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	VisitID       string          `json:"visit_id"`
}

// TopUp POST /api/guests/{id}/topup
func (h *GuestHandler) TopUp(w http.ResponseWriter, r *http.Request, guestID string) {
	var req topUpRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	guest, err := h.guests.TopUp(r.Context(), service.TopUpRequest{
		GuestID:       guestID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		VisitID:       req.VisitID,
		Actor:         actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(guest))
}

// History GET /api/guests/{id}/history
func (h *GuestHandler) History(w http.ResponseWriter, r *http.Request, guestID string) {
	history, err := h.guests.History(r.Context(), guestID, parseInt(r.URL.Query().Get("limit"), 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(history))
}
