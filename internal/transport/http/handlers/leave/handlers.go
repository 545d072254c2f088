package leavehandler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"neon/internal/domain/audit"
	"neon/internal/domain/auth"
	"neon/internal/domain/leave"
	"neon/internal/domain/notifications"
	"neon/internal/platform/i18n"
	"neon/internal/platform/jobs"
	"neon/internal/transport/http/api"
	"neon/internal/transport/http/middleware"
	"neon/internal/transport/http/shared"
)

type Handler struct {
	Service *leave.Service
	Perms   middleware.PermissionChecker
	Notify  *notifications.Service
	Audit   *audit.Service
	Jobs    *jobs.Service
	Idem    middleware.IdempotencyStore
}

func NewHandler(service *leave.Service, perms middleware.PermissionChecker, notify *notifications.Service, auditSvc *audit.Service, jobsSvc *jobs.Service, idem middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Perms: perms, Notify: notify, Audit: auditSvc, Jobs: jobsSvc, Idem: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	perm := func(module, action string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(module, action, h.Perms)
	}
	r.Route("/leave", func(r chi.Router) {
		r.With(perm(auth.ModulePolicies, auth.ActionView)).Get("/types", h.handleListTypes)
		r.With(perm(auth.ModulePolicies, auth.ActionCreate)).Post("/types", h.handleCreateType)
		r.With(perm(auth.ModulePolicies, auth.ActionEdit)).Put("/types/{key}", h.handleUpdateType)
		r.With(perm(auth.ModulePolicies, auth.ActionDelete)).Delete("/types/{key}", h.handleDeleteType)
		r.With(perm(auth.ModuleLeave, auth.ActionView)).Get("/balances", h.handleGetBalance)
		r.With(perm(auth.ModuleLeave, auth.ActionEdit)).Post("/balances/adjust", h.handleAdjustBalance)
		r.With(perm(auth.ModulePolicies, auth.ActionEdit)).Post("/accrual/run", h.handleRunAccruals)
		r.With(perm(auth.ModuleLeave, auth.ActionCreate)).Post("/drafts/preview", h.handlePreview)
		r.With(perm(auth.ModuleLeave, auth.ActionView)).Get("/requests", h.handleListRequests)
		r.With(perm(auth.ModuleLeave, auth.ActionView)).Get("/requests/{requestID}", h.handleGetRequest)
		r.With(perm(auth.ModuleLeave, auth.ActionCreate), middleware.Idempotent("leave.submit", h.Idem)).Post("/requests", h.handleSubmit)
		r.With(perm(auth.ModuleApprovals, auth.ActionApprove)).Post("/requests/{requestID}/approve", h.handleApprove)
		r.With(perm(auth.ModuleApprovals, auth.ActionApprove)).Post("/requests/{requestID}/reject", h.handleReject)
		r.With(perm(auth.ModuleLeave, auth.ActionCreate)).Post("/requests/{requestID}/cancel", h.handleCancel)
		r.With(perm(auth.ModuleApprovals, auth.ActionView)).Get("/approvals", h.handlePendingApprovals)
		r.With(perm(auth.ModuleApprovals, auth.ActionView)).Get("/approvals/count", h.handlePendingCount)
		r.With(perm(auth.ModuleLeave, auth.ActionView)).Get("/status/today", h.handleTodayStatus)
		r.With(perm(auth.ModuleApprovals, auth.ActionView)).Get("/team/heatmap", h.handleHeatmap)
	})
}

// actor is only called behind RequirePermission, which guarantees a user.
func actor(r *http.Request) auth.UserContext {
	user, _ := middleware.GetUser(r.Context())
	return user
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := shared.DecodeJSON(r, dst)
	if err == nil {
		return true
	}
	if errors.Is(err, shared.ErrBadBody) {
		api.BadRequest(w, r)
		return false
	}
	api.WriteError(w, r, err)
	return false
}

func (h *Handler) record(r *http.Request, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	user := actor(r)
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, entityType, entityID,
		middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		zap.L().Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) notify(ctx context.Context, tenantID, userID, ntype, key string, data map[string]any) {
	if h.Notify == nil || userID == "" {
		return
	}
	title := i18n.T(ctx, "notify."+key+".title")
	body := i18n.T(ctx, "notify."+key+".body", data)
	if err := h.Notify.Create(ctx, tenantID, userID, ntype, title, body); err != nil {
		zap.L().Warn("leave notification failed", zap.String("type", ntype), zap.Error(err))
	}
}

func requestData(req leave.LeaveRequest) map[string]any {
	return map[string]any{
		"Name":  req.EmployeeName,
		"Days":  req.DaysCount.String(),
		"Type":  req.LeaveType,
		"Start": req.StartDate.Format(shared.DateLayout),
	}
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListTypes(r.Context(), actor(r).TenantID)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, types, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var payload leave.LeaveType
	if !h.decode(w, r, &payload) {
		return
	}
	created, err := h.Service.CreateType(r.Context(), actor(r).TenantID, payload)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.record(r, "leave.type.create", "leave_type", created.Key, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var payload leave.LeaveType
	if !h.decode(w, r, &payload) {
		return
	}
	before, err := h.Service.GetType(r.Context(), actor(r).TenantID, key)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	updated, err := h.Service.UpdateType(r.Context(), actor(r).TenantID, key, payload)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.record(r, "leave.type.update", "leave_type", key, before, updated)
	api.Success(w, updated, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.Service.DeleteType(r.Context(), actor(r).TenantID, key); err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.record(r, "leave.type.delete", "leave_type", key, nil, nil)
	api.Success(w, map[string]string{"key": key, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := shared.QueryInt(q, "year", 0)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	balance, err := h.Service.GetBalance(r.Context(), actor(r), q.Get("employeeId"), year)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, balance, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var payload leave.Adjustment
	if !h.decode(w, r, &payload) {
		return
	}
	balance, err := h.Service.AdjustBalance(r.Context(), actor(r), payload)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.record(r, "leave.balance.adjust", "leave_balance", payload.EmployeeID, nil, payload)
	api.Success(w, balance, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRunAccruals(w http.ResponseWriter, r *http.Request) {
	user := actor(r)
	var (
		summary any
		err     error
	)
	if h.Jobs != nil {
		summary, err = h.Jobs.RunAccrual(r.Context(), user.TenantID)
	} else {
		summary, err = h.Service.RunAccruals(r.Context(), user.TenantID)
	}
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.record(r, "leave.accrual.run", "leave_accrual", user.TenantID, nil, summary)
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var draft leave.Draft
	if !h.decode(w, r, &draft) {
		return
	}
	review, err := h.Service.Preview(r.Context(), actor(r), draft)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, review, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, shared.DefaultLimit, shared.MaxLimit)
	items, total, err := h.Service.ListMine(r.Context(), actor(r), page.Limit, page.Offset)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, shared.Page[leave.LeaveRequest]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.GetRequest(r.Context(), actor(r), chi.URLParam(r, "requestID"))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var draft leave.Draft
	if !h.decode(w, r, &draft) {
		return
	}
	user := actor(r)
	sub, err := h.Service.Submit(r.Context(), user, draft)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.record(r, "leave.request.submit", "leave_request", sub.Request.ID, nil, sub.Request)
	data := requestData(sub.Request)
	if data["Name"] == "" {
		data["Name"] = user.UserID
	}
	h.notify(r.Context(), user.TenantID, sub.ApproverUserID, notifications.TypeLeaveSubmitted, "submitted", data)
	api.Created(w, sub, middleware.GetRequestID(r.Context()))
}

type rejectPayload struct {
	RejectionReason string `json:"rejectionReason" validate:"max=500"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, leave.StatusApproved, "")
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var payload rejectPayload
	if r.ContentLength != 0 {
		if !h.decode(w, r, &payload) {
			return
		}
	}
	if err := shared.Struct(payload); err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.resolve(w, r, leave.StatusRejected, payload.RejectionReason)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, decision leave.Status, reason string) {
	user := actor(r)
	id := chi.URLParam(r, "requestID")
	req, err := h.Service.Resolve(r.Context(), user, id, decision, reason)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	action, ntype, key := "leave.request.approve", notifications.TypeLeaveApproved, "approved"
	if decision == leave.StatusRejected {
		action, ntype, key = "leave.request.reject", notifications.TypeLeaveRejected, "rejected"
	}
	h.record(r, action, "leave_request", id, map[string]any{"status": leave.StatusPending}, req)
	h.notify(r.Context(), user.TenantID, req.UserID, ntype, key, requestData(req))
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	user := actor(r)
	id := chi.URLParam(r, "requestID")
	req, err := h.Service.Cancel(r.Context(), user, id)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	h.record(r, "leave.request.cancel", "leave_request", id, map[string]any{"status": leave.StatusPending}, req)
	approver, err := h.Service.ApproverUserID(r.Context(), user.TenantID, req.EmployeeID)
	if err != nil {
		zap.L().Warn("cancel approver lookup failed", zap.String("request_id", id), zap.Error(err))
	}
	h.notify(r.Context(), user.TenantID, approver, notifications.TypeLeaveCancelled, "cancelled", requestData(req))
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.PendingApprovals(r.Context(), actor(r))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.PendingCount(r.Context(), actor(r))
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, map[string]int{"pendingCount": n}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTodayStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := shared.QueryDate(q, "date", time.Time{})
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	status, err := h.Service.TodayStatus(r.Context(), actor(r), q.Get("employeeId"), day)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, status, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := shared.QueryInt(q, "days", 7)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	from, err := shared.QueryDate(q, "from", time.Time{})
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	heatmap, err := h.Service.TeamHeatmap(r.Context(), actor(r), from, days)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.Success(w, heatmap, middleware.GetRequestID(r.Context()))
}
