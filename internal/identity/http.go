package identity

import (
	"errors"
	"net/http"
	"net/mail"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianclinic/platform/internal/platform/apierror"
	"github.com/meridianclinic/platform/internal/platform/httpkit"
)

// Handler exposes the Identity service over HTTP.
type Handler struct {
	service *Service
	tokens  TokenProvider
	pool    *pgxpool.Pool
}

func NewHandler(service *Service, tokens TokenProvider, pool *pgxpool.Pool) *Handler {
	return &Handler{service: service, tokens: tokens, pool: pool}
}

// Routes mounts the identity endpoints onto r, per spec.md §4.1.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/auth/register", h.register)
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/mfa/verify", h.verifyMFA)
	r.Post("/api/auth/refresh", h.refresh)
	r.Post("/api/users/{id}/deactivate", h.deactivateUser)
	r.Post("/api/users/{id}/reactivate", h.reactivateUser)
	r.Get("/.well-known/jwks.json", h.jwks)
	r.Get("/q/health/live", h.healthLive)
	r.Get("/q/health/ready", h.healthReady)
}

// actorContext reads the tenant and caller identity the gateway stamps
// onto every request after validating the caller's token; this service
// never re-validates a JWT itself.
func actorContext(r *http.Request) (tenantID, actorID uuid.UUID, err error) {
	tenantID, err = uuid.Parse(r.Header.Get("X-Tenant-Id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("missing tenant context")
	}
	actorID, err = uuid.Parse(r.Header.Get("X-User-Id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, errors.New("missing user context")
	}
	return tenantID, actorID, nil
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	tenantID, actorID, err := actorContext(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_actor", err.Error()))
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_user_id", "invalid user id"))
		return
	}

	if err := h.service.DeactivateUser(r.Context(), tenantID, actorID, targetID); err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

func (h *Handler) reactivateUser(w http.ResponseWriter, r *http.Request) {
	tenantID, actorID, err := actorContext(r)
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "missing_actor", err.Error()))
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_user_id", "invalid user id"))
		return
	}

	if err := h.service.ReactivateUser(r.Context(), tenantID, actorID, targetID); err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, map[string]any{"status": "active"})
}

type registerRequest struct {
	TenantID uuid.UUID `json:"tenantId"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	FullName string    `json:"fullName"`
}

func (req registerRequest) validate() error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return errors.New("invalid email format")
	}
	if utf8.RuneCountInString(req.FullName) == 0 || utf8.RuneCountInString(req.FullName) > 120 {
		return errors.New("full name must be 1-120 characters")
	}
	return nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_body", err.Error()))
		return
	}
	if err := req.validate(); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_request", err.Error()))
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		TenantID: req.TenantID,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}

	httpkit.RespondJSON(w, http.StatusCreated, map[string]any{
		"id":    user.ID,
		"email": user.Email,
	})
}

type loginRequest struct {
	TenantID uuid.UUID `json:"tenantId"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_body", err.Error()))
		return
	}

	result, err := h.service.Login(r.Context(), LoginInput{
		TenantID:  req.TenantID,
		Email:     req.Email,
		Password:  req.Password,
		IP:        httpkit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}

	writeSession(w, result)
}

type verifyMFARequest struct {
	PreAuthToken string `json:"preAuthToken"`
	Code         string `json:"code"`
}

func (h *Handler) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req verifyMFARequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_body", err.Error()))
		return
	}

	result, err := h.service.VerifyMFA(r.Context(), req.PreAuthToken, req.Code)
	if err != nil {
		if errors.Is(err, ErrInvalidMFACode) {
			apierror.WriteJSON(w, r, apierror.New(apierror.Unauthorized, "invalid_mfa_code", "invalid authentication code"))
			return
		}
		apierror.WriteJSON(w, r, err)
		return
	}

	writeSession(w, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		apierror.WriteJSON(w, r, apierror.New(apierror.Validation, "invalid_body", err.Error()))
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		apierror.WriteJSON(w, r, err)
		return
	}

	writeSession(w, result)
}

func writeSession(w http.ResponseWriter, result *LoginResult) {
	if result.MFARequired {
		httpkit.RespondJSON(w, http.StatusOK, map[string]any{
			"mfaRequired":  true,
			"preAuthToken": result.PreAuthToken,
		})
		return
	}

	httpkit.RespondJSON(w, http.StatusOK, map[string]any{
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"user": map[string]any{
			"id":    result.User.ID,
			"email": result.User.Email,
			"name":  result.User.DisplayName,
		},
	})
}

func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	jwks, err := h.tokens.GetJWKS()
	if err != nil {
		apierror.WriteJSON(w, r, apierror.Wrap(apierror.Unexpected, "jwks_failed", "failed to build jwks", err))
		return
	}
	httpkit.RespondJSON(w, http.StatusOK, jwks)
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
