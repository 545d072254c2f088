package audithandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"neon/internal/domain/audit"
	"neon/internal/domain/auth"
	"neon/internal/domain/leave"
	"neon/internal/transport/http/api"
	"neon/internal/transport/http/middleware"
	"neon/internal/transport/http/shared"
)

type Handler struct {
	Service *audit.Service
	Perms   middleware.PermissionChecker
}

func NewHandler(service *audit.Service, perms middleware.PermissionChecker) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.ModuleSettings, auth.ActionView, h.Perms)).Get("/audit/events", h.handleListEvents)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, shared.DefaultLimit, shared.MaxLimit)
	q := r.URL.Query()
	filter := audit.Filter{Action: q.Get("action"), EntityType: q.Get("entityType"), ActorUser: q.Get("actorUserId")}

	events, err := h.Service.List(r.Context(), user.TenantID, filter, page.Limit, page.Offset)
	if err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}
