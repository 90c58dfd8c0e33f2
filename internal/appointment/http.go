package appointment

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianclinic/platform/internal/platform/apierror"
	"github.com/meridianclinic/platform/internal/platform/httpkit"
)

// Handler exposes the Appointment Coordinator over HTTP. Every route
// trusts the X-Tenant-Id header the gateway injects after validating the
// caller's token; this service never re-validates a JWT itself.
type Handler struct {
	coord *Coordinator
	pool  *pgxpool.Pool
}

func NewHandler(coord *Coordinator, pool *pgxpool.Pool) *Handler {
	return &Handler{coord: coord, pool: pool}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/appointments", h.create)
	r.Get("/api/appointments/{id}", h.get)
	r.Get("/api/appointments", h.list)
	r.Patch("/api/appointments/{id}/status", h.updateStatus)
	r.Post("/api/appointments/{id}/cancel", h.cancel)
	r.Post("/api/appointments/{id}/reschedule", h.reschedule)
	r.Delete("/api/appointments/{id}", h.delete)
	r.Get("/q/health/live", h.healthLive)
	r.Get("/q/health/ready", h.healthReady)
}

func tenantIDFrom(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.Header.Get("X-Tenant-Id"))
}

// createRequest has no disease field: the specialty-match invariant is
// always checked against the patient's on-file snapshot, not anything
// the caller submits.
type createRequest struct {
	PatientID       uuid.UUID `json:"patientId"`
	DoctorID        uuid.UUID `json:"doctorId"`
	AppointmentDate time.Time `json:"appointmentDate"`
	Reason          string    `json:"reason"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDFrom(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}

	var req createRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_body", err.Error()))
		return
	}

	created, err := h.coord.Create(r.Context(), CreateInput{
		TenantID:        tenantID,
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: req.AppointmentDate,
		Reason:          req.Reason,
	})
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}

	httpkit.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDFrom(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_id", "invalid appointment id"))
		return
	}

	appt, err := h.coord.Get(r.Context(), tenantID, id)
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, appt)
}

// list dispatches on whichever filter query parameter is present:
// patientId, doctorId, status, or upcomingHours. Exactly one is expected.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDFrom(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}

	q := r.URL.Query()
	var (
		results []Appointment
		listErr error
	)

	switch {
	case q.Get("patientId") != "":
		patientID, perr := uuid.Parse(q.Get("patientId"))
		if perr != nil {
			apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_patient_id", "invalid patientId"))
			return
		}
		results, listErr = h.coord.ListByPatient(r.Context(), tenantID, patientID)
	case q.Get("doctorId") != "":
		doctorID, derr := uuid.Parse(q.Get("doctorId"))
		if derr != nil {
			apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_doctor_id", "invalid doctorId"))
			return
		}
		results, listErr = h.coord.ListByDoctor(r.Context(), tenantID, doctorID)
	case q.Get("status") != "":
		results, listErr = h.coord.ListByStatus(r.Context(), tenantID, Status(q.Get("status")))
	case q.Get("upcomingHours") != "":
		hours, herr := strconv.Atoi(q.Get("upcomingHours"))
		if herr != nil {
			apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_upcoming_hours", "upcomingHours must be an integer"))
			return
		}
		results, listErr = h.coord.ListUpcoming(r.Context(), tenantID, hours)
	default:
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "missing_filter", "one of patientId, doctorId, status, upcomingHours is required"))
		return
	}

	if listErr != nil {
		apierror.WriteJSON(w, r, apierror.Wrap(apierror.Unexpected, "list_failed", "failed to list appointments", listErr))
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, results)
}

type updateStatusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDFrom(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_id", "invalid appointment id"))
		return
	}

	var req updateStatusRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_body", err.Error()))
		return
	}

	updated, err := h.coord.UpdateStatus(r.Context(), tenantID, id, req.Status)
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDFrom(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_id", "invalid appointment id"))
		return
	}

	updated, err := h.coord.Cancel(r.Context(), tenantID, id)
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, updated)
}

type rescheduleRequest struct {
	AppointmentDate time.Time `json:"appointmentDate"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDFrom(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_id", "invalid appointment id"))
		return
	}

	var req rescheduleRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_body", err.Error()))
		return
	}

	updated, err := h.coord.Reschedule(r.Context(), tenantID, id, req.AppointmentDate)
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantIDFrom(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_tenant", "missing tenant context"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_id", "invalid appointment id"))
		return
	}

	if err := h.coord.Delete(r.Context(), tenantID, id); err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
