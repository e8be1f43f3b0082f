package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const actorContextKey contextKey = "actor"

// HeaderActorID names the header callers use to identify the acting user.
// Every state change is audited against this id.
const HeaderActorID = "X-Actor-ID"

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WithActor resolves the acting user from the X-Actor-ID header and adds it
// to the request context. A missing header is allowed (reads don't need an
// actor; writes fall back to the id in the request body), but a malformed
// one is rejected before the handler runs.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(HeaderActorID)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		actorID, err := uuid.Parse(header)
		if err != nil {
			respondError(w, "invalid actor id", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorID returns the acting user from the context, or uuid.Nil when the
// request carried no actor header.
func ActorID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(actorContextKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// WithLogging logs one line per request with method, path, status and
// duration.
func WithLogging(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Info("[API] request handled")
	})
}
