package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"neon/internal/domain/core"
	"neon/internal/domain/leave"
	"neon/internal/domain/notifications"
	"neon/internal/platform/i18n"
	"neon/internal/requestctx"
)

// Error codes shared by handlers and the Go client.
const (
	CodeValidation   = "validation_error"
	CodeForbidden    = "forbidden"
	CodeConflict     = "conflict"
	CodeUnavailable  = "unavailable"
	CodeNotFound     = "not_found"
	CodeUnauthorized = "unauthorized"
	CodeBadRequest   = "invalid_payload"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

// WriteError maps a domain error onto the envelope with a localized message.
// Validation field details are returned verbatim.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	requestID := requestctx.GetRequestID(ctx)

	var validation *leave.ValidationError
	var authz *leave.AuthorizationError
	var conflict *leave.ConflictError
	switch {
	case errors.As(err, &validation):
		FailWithDetails(w, http.StatusBadRequest, CodeValidation, i18n.T(ctx, "error.validation"),
			map[string]any{"fields": validation.Fields}, requestID)
	case errors.As(err, &authz):
		FailWithDetails(w, http.StatusForbidden, CodeForbidden, i18n.T(ctx, "error.forbidden"),
			map[string]any{"action": authz.Action}, requestID)
	case errors.As(err, &conflict):
		details := map[string]any{}
		if conflict.Status != "" {
			details["status"] = conflict.Status
		}
		if conflict.Reason != "" {
			details["reason"] = conflict.Reason
		}
		FailWithDetails(w, http.StatusConflict, CodeConflict, i18n.T(ctx, "error.conflict"), details, requestID)
	case errors.Is(err, leave.ErrNetwork):
		zap.L().Warn("store unavailable", zap.String("request_id", requestID), zap.Error(err))
		w.Header().Set("Retry-After", "1")
		Fail(w, http.StatusServiceUnavailable, CodeUnavailable, i18n.T(ctx, "error.unavailable"), requestID)
	case errors.Is(err, leave.ErrNotFound), errors.Is(err, core.ErrEmployeeNotFound), errors.Is(err, notifications.ErrNotFound):
		Fail(w, http.StatusNotFound, CodeNotFound, i18n.T(ctx, "error.not_found"), requestID)
	default:
		zap.L().Error("request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		Fail(w, http.StatusInternalServerError, CodeInternal, i18n.T(ctx, "error.internal"), requestID)
	}
}

func Unauthorized(w http.ResponseWriter, r *http.Request) {
	Fail(w, http.StatusUnauthorized, CodeUnauthorized, i18n.T(r.Context(), "error.unauthorized"), requestctx.GetRequestID(r.Context()))
}

func BadRequest(w http.ResponseWriter, r *http.Request) {
	Fail(w, http.StatusBadRequest, CodeBadRequest, i18n.T(r.Context(), "error.bad_request"), requestctx.GetRequestID(r.Context()))
}
