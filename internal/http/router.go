package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router standard-library ServeMux with method dispatch done in the route
// closures. Controller-facing routes are registered without auth; operator
// routes go through the bearer-token middleware.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewRouter creates the router
func NewRouter(logger *zap.Logger) *Router {
	return &Router{mux: http.NewServeMux(), logger: logger}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handlers everything the route table needs
type Handlers struct {
	Auth        *AuthHandler
	Visits      *VisitHandler
	Sync        *SyncHandler
	LostCards   *LostCardHandler
	Shifts      *ShiftHandler
	Guests      *GuestHandler
	Catalog     *CatalogHandler
	Controllers *ControllerHandler
	System      *SystemHandler
}

// RegisterRoutes wires the full API surface
func (r *Router) RegisterRoutes(h *Handlers) {
	auth := h.Auth.RequireAuth

	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/api/token", methodOnly(http.MethodPost, h.Auth.Login))

	// Controller-facing: card tap, batch settlement, check-in. No bearer
	// token; the tap hardware has no login flow.
	r.Handle("/api/visits/authorize-pour", methodOnly(http.MethodPost, h.Visits.AuthorizePour))
	r.Handle("/api/sync/pours", methodOnly(http.MethodPost, h.Sync.SettleBatch))
	r.Handle("/api/controllers/register", methodOnly(http.MethodPost, h.Controllers.Register))

	r.Handle("/api/controllers", methodOnly(http.MethodGet, auth(h.Controllers.List)))

	r.Handle("/api/visits/open", methodOnly(http.MethodPost, auth(h.Visits.Open)))
	r.Handle("/api/visits/active", methodOnly(http.MethodGet, auth(h.Visits.ListActive)))
	r.Handle("/api/visits/active/by-card/", auth(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		uid := strings.TrimPrefix(req.URL.Path, "/api/visits/active/by-card/")
		if uid == "" || strings.Contains(uid, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Visits.GetActiveByCard(w, req, uid)
	}))
	r.Handle("/api/visits/active/by-guest/", auth(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, "/api/visits/active/by-guest/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Visits.GetActiveByGuest(w, req, id)
	}))
	r.Handle("/api/visits/", auth(r.visitSubroutes(h)))

	r.Handle("/api/lost-cards", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			auth(h.LostCards.Report)(w, req)
		case http.MethodGet:
			auth(h.LostCards.List)(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/lost-cards/", auth(func(w http.ResponseWriter, req *http.Request) {
		uid, ok := suffixAction(req.URL.Path, "/api/lost-cards/", "restore")
		if !ok || req.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.LostCards.Restore(w, req, uid)
	}))

	r.Handle("/api/shifts/open", methodOnly(http.MethodPost, auth(h.Shifts.Open)))
	r.Handle("/api/shifts/close", methodOnly(http.MethodPost, auth(h.Shifts.Close)))
	r.Handle("/api/shifts/current", methodOnly(http.MethodGet, auth(h.Shifts.Current)))
	r.Handle("/api/shifts/", auth(func(w http.ResponseWriter, req *http.Request) {
		id, ok := suffixAction(req.URL.Path, "/api/shifts/", "report.xlsx")
		if !ok || req.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Shifts.ExportReport(w, req, id)
	}))

	r.Handle("/api/guests", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			auth(h.Guests.Create)(w, req)
		case http.MethodGet:
			auth(h.Guests.List)(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/guests/", auth(r.guestSubroutes(h)))

	r.Handle("/api/beverages", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			auth(h.Catalog.CreateBeverage)(w, req)
		case http.MethodGet:
			auth(h.Catalog.ListBeverages)(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/beverages/", auth(func(w http.ResponseWriter, req *http.Request) {
		id, ok := suffixAction(req.URL.Path, "/api/beverages/", "price")
		if !ok || req.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Catalog.UpdateBeveragePrice(w, req, id)
	}))

	r.Handle("/api/kegs", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			auth(h.Catalog.CreateKeg)(w, req)
		case http.MethodGet:
			auth(h.Catalog.ListKegs)(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/api/taps", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			auth(h.Catalog.CreateTap)(w, req)
		case http.MethodGet:
			auth(h.Catalog.ListTaps)(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/taps/", auth(func(w http.ResponseWriter, req *http.Request) {
		id, ok := suffixAction(req.URL.Path, "/api/taps/", "keg")
		tapID := parseInt(id, 0)
		if !ok || tapID <= 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodPut:
			h.Catalog.AttachKeg(w, req, tapID)
		case http.MethodDelete:
			h.Catalog.DetachKeg(w, req, tapID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	r.Handle("/api/system/state", methodOnly(http.MethodGet, auth(h.System.ListStates)))
	r.Handle("/api/system/state/", auth(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		key := strings.TrimPrefix(req.URL.Path, "/api/system/state/")
		if key == "" || strings.Contains(key, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.System.SetState(w, req, key)
	}))
	r.Handle("/api/pours", methodOnly(http.MethodGet, auth(h.System.ListPours)))
	r.Handle("/api/audit", methodOnly(http.MethodGet, auth(h.System.ListAudit)))
}

// visitSubroutes dispatches /api/visits/{id}/<action>
func (r *Router) visitSubroutes(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/visits/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		visitID, action := parts[0], parts[1]

		if req.Method == http.MethodGet && action == "pours" {
			h.Visits.ListPours(w, req, visitID)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch action {
		case "close":
			h.Visits.Close(w, req, visitID)
		case "assign-card":
			h.Visits.AssignCard(w, req, visitID)
		case "force-unlock":
			h.Visits.ForceUnlock(w, req, visitID)
		case "reconcile-pour":
			h.Visits.ReconcilePour(w, req, visitID)
		case "report-lost-card":
			h.Visits.ReportLostCard(w, req, visitID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

// guestSubroutes dispatches /api/guests/{id} and /api/guests/{id}/<action>
func (r *Router) guestSubroutes(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/guests/")
		parts := strings.Split(rest, "/")

		if len(parts) == 1 && parts[0] != "" {
			switch req.Method {
			case http.MethodGet:
				h.Guests.Get(w, req, parts[0])
			case http.MethodPut:
				h.Guests.Update(w, req, parts[0])
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
			return
		}
		if len(parts) == 2 && parts[0] != "" {
			switch {
			case req.Method == http.MethodPost && parts[1] == "topup":
				h.Guests.TopUp(w, req, parts[0])
			case req.Method == http.MethodGet && parts[1] == "history":
				h.Guests.History(w, req, parts[0])
			default:
				w.WriteHeader(http.StatusNotFound)
			}
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func methodOnly(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(w, req)
	}
}

// suffixAction splits "<prefix>{id}/<action>" and checks the action
func suffixAction(path, prefix, action string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != action {
		return "", false
	}
	return parts[0], true
}
