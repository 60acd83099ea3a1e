package httpapi

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"taphouse-backend/internal/service"
)

// ControllerHandler edge controller check-in and listing
type ControllerHandler struct {
	controllers service.ControllerService
	logger      *zap.Logger
}

// NewControllerHandler creates the controller handler
func NewControllerHandler(controllers service.ControllerService, logger *zap.Logger) *ControllerHandler {
	return &ControllerHandler{controllers: controllers, logger: logger}
}

// Register POST /api/controllers/register. Controller-facing: bare JSON,
// no auth, the caller's address fills in a missing ip_address.
func (h *ControllerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterControllerRequest
	if err := readBodyJSON(r, 4096, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.IPAddress == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			req.IPAddress = host
		}
	}
	controller, err := h.controllers.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, controller)
}

// List GET /api/controllers
func (h *ControllerHandler) List(w http.ResponseWriter, r *http.Request) {
	controllers, err := h.controllers.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(controllers))
}
