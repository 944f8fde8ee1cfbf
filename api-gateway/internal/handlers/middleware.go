package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronwang/agreeconnect/shared/logging"
	"github.com/aaronwang/agreeconnect/shared/models"
)

const (
	headerUserID    = "X-User-ID"
	headerUserRole  = "X-User-Role"
	headerRequestID = "X-Request-ID"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	requestIDKey
)

// identityMiddleware trusts the identity asserted by the upstream provider.
// Requests without a usable identity are rejected.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := models.Identity{
			UserID: strings.TrimSpace(r.Header.Get(headerUserID)),
			Role:   models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserRole)))),
		}
		// user ids become store key segments
		if id.UserID == "" || strings.Contains(id.UserID, "/") || !id.Role.Valid() {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid caller identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func identityFrom(r *http.Request) models.Identity {
	id, _ := r.Context().Value(identityKey).(models.Identity)
	return id
}

// requireRole limits a handler to the given roles
func requireRole(roles ...models.Role) func(http.HandlerFunc) http.Handler {
	return func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := identityFrom(r).Role
			for _, allowed := range roles {
				if role == allowed {
					next(w, r)
					return
				}
			}
			respondError(w, http.StatusForbidden, "forbidden", "role "+string(role)+" may not do this")
		})
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestIDFrom(r),
			)
		})
	}
}
