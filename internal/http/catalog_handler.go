package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// CatalogHandler beverages, kegs and taps
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates the catalog handler
func NewCatalogHandler(catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

type beverageRequest struct {
	Name    string          `json:"name"`
	Brewery string          `json:"brewery"`
	Style   string          `json:"style"`
	ABV     string          `json:"abv"`
	Price   decimal.Decimal `json:"sell_price_per_liter"`
}

// CreateBeverage POST /api/beverages
func (h *CatalogHandler) CreateBeverage(w http.ResponseWriter, r *http.Request) {
	var req beverageRequest
	if err := readBodyJSON(r, 8192, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	beverage, err := h.catalog.CreateBeverage(r.Context(), service.BeverageRequest{
		Name:    req.Name,
		Brewery: req.Brewery,
		Style:   req.Style,
		ABV:     req.ABV,
		Price:   req.Price,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(beverage))
}

type priceRequest struct {
	Price decimal.Decimal `json:"sell_price_per_liter"`
}

// UpdateBeveragePrice PUT /api/beverages/{id}/price
func (h *CatalogHandler) UpdateBeveragePrice(w http.ResponseWriter, r *http.Request, beverageID string) {
	var req priceRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	beverage, err := h.catalog.UpdateBeveragePrice(r.Context(), beverageID, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(beverage))
}

// ListBeverages GET /api/beverages
func (h *CatalogHandler) ListBeverages(w http.ResponseWriter, r *http.Request) {
	beverages, err := h.catalog.ListBeverages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(beverages))
}

type kegRequest struct {
	BeverageID      string          `json:"beverage_id"`
	InitialVolumeML int             `json:"initial_volume_ml"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
}

// CreateKeg POST /api/kegs
func (h *CatalogHandler) CreateKeg(w http.ResponseWriter, r *http.Request) {
	var req kegRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	keg, err := h.catalog.CreateKeg(r.Context(), service.KegRequest{
		BeverageID:      req.BeverageID,
		InitialVolumeML: req.InitialVolumeML,
		PurchasePrice:   req.PurchasePrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(keg))
}

// ListKegs GET /api/kegs?status=
func (h *CatalogHandler) ListKegs(w http.ResponseWriter, r *http.Request) {
	kegs, err := h.catalog.ListKegs(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(kegs))
}

type tapRequest struct {
	TapID       int    `json:"tap_id"`
	DisplayName string `json:"display_name"`
}

// CreateTap POST /api/taps
func (h *CatalogHandler) CreateTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	tap, err := h.catalog.CreateTap(r.Context(), req.TapID, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(tap))
}

// ListTaps GET /api/taps
func (h *CatalogHandler) ListTaps(w http.ResponseWriter, r *http.Request) {
	taps, err := h.catalog.ListTaps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(taps))
}

type attachKegRequest struct {
	KegID string `json:"keg_id"`
}

// AttachKeg PUT /api/taps/{id}/keg
func (h *CatalogHandler) AttachKeg(w http.ResponseWriter, r *http.Request, tapID int) {
	var req attachKegRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	tap, err := h.catalog.AttachKeg(r.Context(), tapID, req.KegID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tap))
}

// DetachKeg DELETE /api/taps/{id}/keg
func (h *CatalogHandler) DetachKeg(w http.ResponseWriter, r *http.Request, tapID int) {
	tap, err := h.catalog.DetachKeg(r.Context(), tapID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(tap))
}
