package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"neon/internal/platform/i18n"
	"neon/internal/transport/http/api"
)

// Recoverer turns a handler panic into a 500 envelope.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zap.L().Error("handler panic",
				zap.Any("panic", rec),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.ByteString("stack", debug.Stack()),
			)
			api.Fail(w, http.StatusInternalServerError, api.CodeInternal, i18n.T(r.Context(), "error.internal"), GetRequestID(r.Context()))
		}()
		next.ServeHTTP(w, r)
	})
}
