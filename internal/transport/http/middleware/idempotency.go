package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"neon/internal/domain/leave"
	"neon/internal/platform/cache"
	"neon/internal/transport/http/api"
)

const IdempotencyHeader = "Idempotency-Key"

type IdempotencyStore interface {
	Check(ctx context.Context, scope, key, requestHash string) (*cache.StoredResponse, error)
	Save(ctx context.Context, scope, key string, resp cache.StoredResponse) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (b *bodyRecorder) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	b.buf.Write(p)
	return b.ResponseWriter.Write(p)
}

// Idempotent replays the first 2xx response for a repeated Idempotency-Key
// from the same user. Requests without the header are passed through.
func Idempotent(endpoint string, store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			user, ok := GetUser(r.Context())
			if key == "" || !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := io.ReadAll(r.Body)
			if err != nil {
				api.BadRequest(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(payload))
			hash := RequestHash(payload)
			scope := user.TenantID + ":" + user.UserID + ":" + endpoint

			stored, err := store.Check(r.Context(), scope, key, hash)
			if errors.Is(err, cache.ErrIdempotencyConflict) {
				api.WriteError(w, r, &leave.ConflictError{Reason: err.Error()})
				return
			}
			if err != nil {
				zap.L().Warn("idempotency lookup failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			rec := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status < 200 || rec.status >= 300 {
				return
			}
			if err := store.Save(r.Context(), scope, key, cache.StoredResponse{
				RequestHash: hash,
				Status:      rec.status,
				Body:        rec.buf.Bytes(),
			}); err != nil {
				zap.L().Warn("idempotency save failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
			}
		})
	}
}
