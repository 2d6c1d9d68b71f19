package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	stdtime "time"

	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/obs"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session configuration
const (
	DefaultSessionDuration = 30 * 24 * stdtime.Hour // 30 days
	SessionIDLength        = 32                     // 256 bits
	SessionCookieName      = "session_token"
)

// SessionStore persists sessions. *db.DB implements it.
type SessionStore interface {
	CreateSession(ctx context.Context, s db.Session) error
	GetSession(ctx context.Context, sessionID string) (db.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteSessionsByUser(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, now stdtime.Time) (int64, error)
}

// SessionVerifier resolves a session token to the id of its user.
// It is the only thing request authentication depends on.
type SessionVerifier interface {
	Validate(ctx context.Context, sessionID string) (string, error)
}

// SessionService handles session management.
type SessionService struct {
	store    SessionStore
	duration stdtime.Duration
	clock    Clock
}

// NewSessionService creates a new session service. A zero duration uses
// DefaultSessionDuration.
func NewSessionService(store SessionStore, duration stdtime.Duration) *SessionService {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionService{
		store:    store,
		duration: duration,
		clock:    realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *SessionService) SetClock(c Clock) {
	s.clock = c
}

// Duration returns the session lifetime.
func (s *SessionService) Duration() stdtime.Duration {
	return s.duration
}

// Create creates a new session for a user.
// Returns the session ID which should be stored in a cookie.
func (s *SessionService) Create(ctx context.Context, userID string) (string, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}

	now := s.clock.Now()
	err = s.store.CreateSession(ctx, db.Session{
		SessionID: sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(s.duration),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sessionID, nil
}

// Validate checks if a session is valid and returns the user ID.
// Expired sessions are removed as they are found.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrSessionNotFound
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if !s.clock.Now().Before(session.ExpiresAt) {
		_ = s.store.DeleteSession(ctx, sessionID)
		return "", ErrSessionExpired
	}
	return session.UserID, nil
}

// Delete removes a session (logout).
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUserID removes all sessions for a user.
func (s *SessionService) DeleteByUserID(ctx context.Context, userID string) error {
	if err := s.store.DeleteSessionsByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// Cleanup removes all expired sessions.
func (s *SessionService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return n, nil
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *SessionService) RunCleanup(ctx context.Context, interval stdtime.Duration) {
	ticker := stdtime.NewTicker(interval)
	defer ticker.Stop()
	logger := obs.Pkg("auth")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Cleanup(ctx)
			if err != nil {
				logger.Warn("session_cleanup_failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("session_cleanup", "removed", n)
			}
		}
	}
}

// Cookie helpers

// SetCookie sets the session cookie on the response.
func SetCookie(w http.ResponseWriter, sessionID string, maxAge stdtime.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true, // Requires HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// ClearCookie removes the session cookie.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1, // Delete immediately
	})
}

// GetFromRequest returns the session token carried by the request.
// An "Authorization: Bearer <token>" header takes precedence over the
// session cookie; both carry the same token.
func GetFromRequest(r *http.Request) (string, error) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, nil
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	if cookie.Value == "" {
		return "", ErrSessionNotFound
	}
	return cookie.Value, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Helper functions

func generateSessionID() (string, error) {
	bytes := make([]byte, SessionIDLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
