package corehandler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"neon/internal/domain/auth"
	"neon/internal/domain/core"
	"neon/internal/domain/leave"
	"neon/internal/transport/http/api"
	"neon/internal/transport/http/middleware"
)

type Handler struct {
	Directory core.Directory
	Perms     *auth.Service
}

func NewHandler(dir core.Directory, perms *auth.Service) *Handler {
	return &Handler{Directory: dir, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.With(middleware.RequirePermission(auth.ModuleEmployees, auth.ActionView, h.Perms)).Get("/employees/{employeeID}", h.handleGetEmployee)
}

type meResponse struct {
	User        auth.UserContext    `json:"user"`
	Employee    *core.Employee      `json:"employee,omitempty"`
	Permissions map[string][]string `json:"permissions"`
}

// handleMe returns the caller, their employee record when linked, and the
// effective grants of their role.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Unauthorized(w, r)
		return
	}
	resp := meResponse{User: user}

	var emp core.Employee
	var err error
	if user.EmployeeID != "" {
		emp, err = h.Directory.GetEmployee(r.Context(), user.TenantID, user.EmployeeID)
	} else {
		emp, err = h.Directory.EmployeeByUserID(r.Context(), user.TenantID, user.UserID)
	}
	switch {
	case err == nil:
		resp.Employee = &emp
	case !errors.Is(err, core.ErrEmployeeNotFound):
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}

	grid, err := h.Perms.EffectiveGrid(r.Context(), user.TenantID)
	if err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}
	resp.Permissions = grid[user.RoleName]
	api.Success(w, resp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	emp, err := h.Directory.GetEmployee(r.Context(), user.TenantID, chi.URLParam(r, "employeeID"))
	if err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}
