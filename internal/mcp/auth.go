// Package mcp exposes the note service as Model Context Protocol tools over
// the streamable HTTP transport.
package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/notesmith/internal/auth"
	"github.com/kuitang/notesmith/internal/obs"
)

// Authenticator resolves the user id of a request, or "" when it carries no
// valid session. *auth.Middleware implements it.
type Authenticator interface {
	Authenticate(r *http.Request) string
}

// RequireAuth rejects requests without a session with 401 and a JSON-RPC
// error body, and otherwise stores the user id in the request context.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Preflight requests never carry credentials.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			userID := a.Authenticate(r)
			if userID == "" {
				obs.From(r.Context()).Info("mcp_unauthenticated", "method", r.Method, "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="notesmith", error="invalid_token"`)
				writeJSONRPC(w, http.StatusUnauthorized, MCPErrorResponse(nil, ErrorCodeInvalidRequest, "Unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}

// MCPErrorResponse returns a standard JSON-RPC error response.
func MCPErrorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// Standard JSON-RPC error codes.
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
)

func writeJSONRPC(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
