package notificationshandler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"neon/internal/domain/leave"
	"neon/internal/domain/notifications"
	"neon/internal/transport/http/api"
	"neon/internal/transport/http/middleware"
	"neon/internal/transport/http/shared"
)

type Handler struct {
	Service *notifications.Service
}

func NewHandler(service *notifications.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/{notificationID}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Unauthorized(w, r)
		return
	}

	page := shared.ParsePagination(r, shared.DefaultLimit, shared.MaxLimit)
	total, err := h.Service.Count(r.Context(), user.TenantID, user.UserID)
	if err != nil {
		zap.L().Warn("notification count failed", zap.Error(err))
	}

	items, err := h.Service.List(r.Context(), user.TenantID, user.UserID, page.Limit, page.Offset)
	if err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, shared.Page[notifications.Notification]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Unauthorized(w, r)
		return
	}

	notificationID := chi.URLParam(r, "notificationID")
	if err := h.Service.MarkRead(r.Context(), user.TenantID, user.UserID, notificationID); err != nil {
		api.WriteError(w, r, leave.ClassifyStoreError(err))
		return
	}
	api.Success(w, map[string]string{"status": "read"}, middleware.GetRequestID(r.Context()))
}
