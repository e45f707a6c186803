package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/settlement-engine/internal/auth"
	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/handler"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
)

type replayRepository interface {
	Lookup(ctx context.Context, scope repository.ReplayScope, at time.Time) (*repository.StoredResponse, error)
	Remember(ctx context.Context, resp *repository.StoredResponse) (bool, error)
}

const IdempotencyTTL = 24 * time.Hour

// Idempotency replays the stored response for a repeated Idempotency-Key
// from the same operator on the same route. Server errors are not stored so
// the operation can be retried under the same key.
func Idempotency(repo replayRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			operatorID, ok := auth.OperatorIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			scope := repository.ReplayScope{OperatorID: operatorID, Route: route(r), Key: key}
			log := logging.FromContext(r.Context()).With("idempotency_key", key, "route", scope.Route)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := requestFingerprint(r, body)

			cached, err := repo.Lookup(r.Context(), scope, time.Now().UTC())
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				log.Error("idempotency cache lookup failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}

			if cached != nil {
				if cached.Fingerprint != fingerprint {
					handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replayed", "true")
				w.WriteHeader(cached.StatusCode)
				if _, err := w.Write(cached.Body); err != nil {
					log.Error("failed to write idempotent replay", "error", err)
				}
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}

			now := time.Now().UTC()
			stored, err := repo.Remember(r.Context(), &repository.StoredResponse{
				ReplayScope: scope,
				Fingerprint: fingerprint,
				StatusCode:  rec.statusCode,
				Body:        rec.body.Bytes(),
				StoredAt:    now,
				ExpiresAt:   now.Add(IdempotencyTTL),
			})
			if err != nil {
				log.Error("idempotency cache store failed", "error", err)
				return
			}
			if !stored {
				log.Warn("concurrent request already stored a response for this key")
			}
		})
	}
}

// route is the mux pattern the request matched, so path parameters stay part
// of the fingerprint rather than the scope.
func route(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}

func requestFingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.RequestURI()))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
