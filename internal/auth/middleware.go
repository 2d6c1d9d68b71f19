package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kuitang/notesmith/internal/logutil"
	"github.com/kuitang/notesmith/internal/obs"
)

// Context keys for auth data
type contextKey string

const (
	userIDKey contextKey = "userID"
)

// Middleware resolves the caller of each request through a SessionVerifier.
type Middleware struct {
	verifier SessionVerifier
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(verifier SessionVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// Authenticate returns the user id of the request's session, or "" when the
// request carries no valid session. It never fails the request itself.
func (m *Middleware) Authenticate(r *http.Request) string {
	token, err := GetFromRequest(r)
	if err != nil {
		return ""
	}
	userID, err := m.verifier.Validate(r.Context(), token)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
			obs.From(r.Context()).Warn("session_lookup_failed", "error", err)
		}
		obs.From(r.Context()).Debug("session_rejected",
			"reason", err.Error(),
			"headers", logutil.FormatHeadersForLog(r.Header),
		)
		return ""
	}
	return userID
}

// RequireAuth is middleware that requires a valid session.
// Returns 401 {"error":"Unauthorized"} if no valid session is present.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := m.Authenticate(r)
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = obs.WithCorrelation(ctx, obs.Correlation{UserID: userID})
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the request context.
// Returns empty string if no user is authenticated.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
