package audit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianclinic/platform/internal/platform/apierror"
	"github.com/meridianclinic/platform/internal/platform/httpkit"
)

// Handler exposes the audit journal for operators and compliance
// reviewers. Read-only: entries are written exclusively by Consumer.
type Handler struct {
	store *Store
	pool  *pgxpool.Pool
}

func NewHandler(store *Store, pool *pgxpool.Pool) *Handler {
	return &Handler{store: store, pool: pool}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/audit", h.list)
	r.Get("/q/health/live", h.healthLive)
	r.Get("/q/health/ready", h.healthReady)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get("X-Tenant-Id")
	if tenantID == "" {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > 1000 {
		limit = 1000
	}

	entries, err := h.store.ListForTenant(r.Context(), tenantID, limit)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.Wrap(apierror.Unexpected, "audit_list_failed", "failed to list audit entries", err))
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, entries)
}

func (h *Handler) healthLive(w http.ResponseWriter, r *http.Request) {
	httpkit.RespondJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (h *Handler) healthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.Ping(r.Context()); err != nil {
		httpkit.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}
