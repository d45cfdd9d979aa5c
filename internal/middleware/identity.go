package middleware

import (
	"context"
	"net/http"

	"server/internal/domain"
)

const (
	userIDKey    contextKey = "user_id"
	userEmailKey contextKey = "user_email"
	userTierKey  contextKey = "user_tier"
)

// Identity trusts the authenticating gateway in front of this service and
// reads the caller's identity from its headers. Requests without a user id
// are rejected.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing user identity"}`))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		if email := r.Header.Get("X-User-Email"); email != "" {
			ctx = context.WithValue(ctx, userEmailKey, email)
		}
		tier := r.Header.Get("X-User-Tier")
		if tier == "" {
			tier = string(domain.UserTierFree)
		}
		ctx = context.WithValue(ctx, userTierKey, tier)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated user's id, or "".
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UserTierFromContext returns the caller's subscription tier, or "".
func UserTierFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userTierKey).(string); ok {
		return v
	}
	return ""
}
