package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/obs"
)

// Handler serves the account endpoints under /auth.
type Handler struct {
	userService    *UserService
	sessionService *SessionService
	middleware     *Middleware
}

// NewHandler creates a new auth handler.
func NewHandler(userService *UserService, sessionService *SessionService, middleware *Middleware) *Handler {
	return &Handler{
		userService:    userService,
		sessionService: sessionService,
		middleware:     middleware,
	}
}

// RegisterRoutes registers auth routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.HandleRegister)
	mux.HandleFunc("POST /auth/login", h.HandleLogin)
	mux.HandleFunc("POST /auth/logout", h.HandleLogout)
	mux.HandleFunc("GET /auth/verify-email", h.HandleVerifyEmail)

	authed := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.middleware.RequireAuth(fn))
	}
	authed("GET /auth/session", h.HandleSession)
	authed("POST /auth/logout-all", h.HandleLogoutAll)
	authed("POST /auth/verify-email/resend", h.HandleResendVerification)
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by register and login. Token is the session
// token, usable as a cookie value or as a bearer token.
type SessionResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// HandleRegister handles email/password registration.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errs.New(errs.InvalidArgument, "Invalid request body"))
		return
	}

	user, err := h.userService.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, r, user, http.StatusCreated)
}

// HandleLogin handles email/password login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errs.New(errs.InvalidArgument, "Invalid request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, errs.New(errs.InvalidArgument, "Email and password are required"))
		return
	}

	user, err := h.userService.VerifyLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, r, user, http.StatusOK)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *User, status int) {
	sessionID, err := h.sessionService.Create(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, errs.Wrap(errs.Internal, "Failed to create session", err))
		return
	}
	SetCookie(w, sessionID, h.sessionService.Duration())
	writeJSON(w, status, SessionResponse{User: user, Token: sessionID})
}

// HandleLogout deletes the current session, if any, and clears the cookie.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sessionID, err := GetFromRequest(r); err == nil {
		if err := h.sessionService.Delete(r.Context(), sessionID); err != nil {
			obs.From(r.Context()).Warn("logout_delete_failed", "error", err)
		}
	}
	ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleLogoutAll ends every session of the current user.
func (h *Handler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.DeleteByUserID(r.Context(), GetUserID(r.Context())); err != nil {
		writeError(w, r, errs.Wrap(errs.Internal, "Failed to log out", err))
		return
	}
	ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleResendVerification mails a fresh verification link.
func (h *Handler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.ResendVerification(r.Context(), GetUserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleSession returns the user of the current session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*User{"user": user})
}

// HandleVerifyEmail consumes a verification token from the query string.
func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if _, err := h.userService.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		var coded *errs.Error
		cause := err
		if errors.As(err, &coded) && coded.Err != nil {
			cause = coded.Err
		}
		obs.From(r.Context()).Error("auth_request_failed", "code", code, "error", cause)
	}
	writeJSON(w, status, map[string]string{"error": errs.MessageOf(err)})
}
