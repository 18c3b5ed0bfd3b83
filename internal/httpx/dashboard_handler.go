package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/dashboard"
	"github.com/go-chi/chi/v5"
)

type Reporter interface {
	Report(ctx context.Context) dashboard.Report
}

type DashboardHandler struct {
	Reports Reporter
	Auth    *Auth
}

func (h *DashboardHandler) Register(r chi.Router) {
	r.With(h.Auth.RequireAdmin).Get("/api/dashboard/stats", h.stats)
}

func (h *DashboardHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": h.Reports.Report(ctx)})
}
