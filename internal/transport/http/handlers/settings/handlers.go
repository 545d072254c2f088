package settingshandler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"neon/internal/domain/audit"
	"neon/internal/domain/auth"
	"neon/internal/domain/leave"
	"neon/internal/transport/http/api"
	"neon/internal/transport/http/middleware"
	"neon/internal/transport/http/shared"
)

type Handler struct {
	Perms *auth.Service
	Audit *audit.Service
}

func NewHandler(perms *auth.Service, auditSvc *audit.Service) *Handler {
	return &Handler{Perms: perms, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings/permissions", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.ModuleSettings, auth.ActionView, h.Perms)).Get("/", h.handleGet)
		r.With(middleware.RequirePermission(auth.ModuleSettings, auth.ActionEdit, h.Perms)).Put("/", h.handlePut)
		r.Get("/effective", h.handleEffective)
	})
}

type permissionsResponse struct {
	Overrides auth.Overrides                 `json:"overrides"`
	Effective map[string]map[string][]string `json:"effective"`
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, tenantID string) (permissionsResponse, bool) {
	overrides, err := h.Perms.Overrides(r.Context(), tenantID)
	if err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return permissionsResponse{}, false
	}
	return permissionsResponse{Overrides: overrides, Effective: auth.Grid(overrides)}, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	resp, ok := h.load(w, r, user.TenantID)
	if !ok {
		return
	}
	api.Success(w, resp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	var payload auth.Overrides
	if err := shared.DecodeJSON(r, &payload); err != nil {
		if errors.Is(err, shared.ErrBadBody) {
			api.BadRequest(w, r)
			return
		}
		api.WriteError(w, r, err)
		return
	}
	if payload == nil {
		payload = auth.Overrides{}
	}
	if err := payload.Validate(); err != nil {
		api.WriteError(w, r, &leave.ValidationError{Fields: []leave.FieldIssue{{Field: "overrides", Reason: err.Error()}}})
		return
	}
	before, err := h.Perms.Overrides(r.Context(), user.TenantID)
	if err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}
	if err := h.Perms.SaveOverrides(r.Context(), user.TenantID, payload); err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}
	if h.Audit != nil {
		if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, "settings.permissions.update", "permission_overrides", user.TenantID,
			middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, payload); err != nil {
			zap.L().Warn("audit settings.permissions.update failed", zap.Error(err))
		}
	}
	resp, ok := h.load(w, r, user.TenantID)
	if !ok {
		return
	}
	api.Success(w, resp, middleware.GetRequestID(r.Context()))
}

// handleEffective returns the caller's own grants; every authenticated user
// may read it.
func (h *Handler) handleEffective(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Unauthorized(w, r)
		return
	}
	grid, err := h.Perms.EffectiveGrid(r.Context(), user.TenantID)
	if err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}
	modules := grid[user.RoleName]
	if modules == nil {
		api.WriteError(w, r, &leave.AuthorizationError{Action: "settings.permissions.effective", Reason: "unknown role " + user.RoleName})
		return
	}
	api.Success(w, map[string]any{"role": user.RoleName, "modules": modules}, middleware.GetRequestID(r.Context()))
}
