package mcp

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/kuitang/notesmith/internal/ai"
	"github.com/kuitang/notesmith/internal/auth"
	"github.com/kuitang/notesmith/internal/logutil"
	"github.com/kuitang/notesmith/internal/notes"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to clients in the initialize handshake.
const Version = "1.0.0"

const (
	maxMCPBodyBytes           = 1 << 20
	mcpDebugBodyLogLimitBytes = 8 * 1024
)

// Server serves the MCP endpoint for the notes service.
type Server struct {
	notes       *notes.Service
	assistant   *ai.Assistant
	toolset     Toolset
	handler     *Handler
	httpHandler http.Handler
}

// NewServer creates the MCP endpoint. note_assist is only offered when
// assistant is non-nil.
func NewServer(notesSvc *notes.Service, assistant *ai.Assistant) *Server {
	s := &Server{
		notes:     notesSvc,
		assistant: assistant,
		toolset:   ToolsetAll,
		handler:   NewHandler(),
	}
	if assistant == nil {
		s.toolset = ToolsetNotes
	}

	// Stateless with JSON responses: every request is authenticated on its
	// own and no session state outlives it.
	s.httpHandler = mcp.NewStreamableHTTPHandler(s.serverFor, &mcp.StreamableHTTPOptions{
		JSONResponse: true,
		Stateless:    true,
	})
	return s
}

// serverFor builds the MCP server for one request, with every tool bound to
// the request's user.
func (s *Server) serverFor(r *http.Request) *mcp.Server {
	bound := Services{
		UserID:    auth.GetUserID(r.Context()),
		Notes:     s.notes,
		Assistant: s.assistant,
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: "notesmith", Version: Version}, nil)
	for _, tool := range ToolDefinitions(s.toolset) {
		call := s.handler.createToolHandler(tool.Name)
		mcp.AddTool(mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			return call(ContextWithServices(ctx, bound), req, args)
		})
	}
	registerPrompts(mcpServer, s.toolset)
	return mcpServer
}

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        []byte
	truncated   bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           make([]byte, 0, 512),
	}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wroteHeader = true
	if remaining := mcpDebugBodyLogLimitBytes - len(w.body); remaining > 0 {
		if len(p) <= remaining {
			w.body = append(w.body, p...)
		} else {
			w.body = append(w.body, p[:remaining]...)
			w.truncated = true
		}
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func formatBodyForLog(b []byte, truncated bool) string {
	text := logutil.TruncateForLog(string(b), mcpDebugBodyLogLimitBytes)
	if truncated && text != "" {
		return text + " [truncated]"
	}
	return text
}

func formatMCPHeadersForLog(headers http.Header) string {
	return logutil.FormatHeadersForLog(headers)
}

// isASCII reports whether s is non-empty visible ASCII, the character set
// allowed in Mcp-Session-Id.
func isASCII(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// ServeHTTP implements the streamable HTTP transport. Only POST carries
// messages; the server never opens an SSE stream.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")

	log := obs.From(r.Context())

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost, http.MethodDelete:
	default:
		w.Header().Set("Allow", "POST, DELETE, OPTIONS")
		writeJSONRPC(w, http.StatusMethodNotAllowed, MCPErrorResponse(nil, ErrorCodeInvalidRequest, "Method not allowed"))
		return
	}

	if id := r.Header.Get("Mcp-Session-Id"); id != "" && !isASCII(id) {
		writeJSONRPC(w, http.StatusBadRequest, MCPErrorResponse(nil, ErrorCodeInvalidRequest, "Invalid Mcp-Session-Id header"))
		return
	}

	var reqBody []byte
	if r.Method == http.MethodPost && r.Body != nil {
		var err error
		reqBody, err = io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes+1))
		if err != nil {
			log.Warn("mcp_body_read_failed", "error", err)
			writeJSONRPC(w, http.StatusBadRequest, MCPErrorResponse(nil, ErrorCodeParseError, "Could not read request body"))
			return
		}
		if len(reqBody) > maxMCPBodyBytes {
			writeJSONRPC(w, http.StatusRequestEntityTooLarge, MCPErrorResponse(nil, ErrorCodeInvalidRequest, "Request body too large"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	log.Debug("mcp_request",
		"method", r.Method,
		"path", r.URL.Path,
		"headers", formatMCPHeadersForLog(r.Header),
		"body", formatBodyForLog(reqBody, false),
	)

	rec := newMCPResponseLogger(w)
	defer func() {
		if p := recover(); p != nil {
			log.Error("mcp_panic", "panic", p, "method", r.Method, "path", r.URL.Path)
			if !rec.wroteHeader {
				writeJSONRPC(rec, http.StatusInternalServerError, MCPErrorResponse(nil, ErrorCodeInternalError, "Internal server error"))
			}
		}
	}()

	s.httpHandler.ServeHTTP(rec, r)

	if !rec.wroteHeader {
		log.Error("mcp_no_response", "method", r.Method, "path", r.URL.Path)
		writeJSONRPC(rec, http.StatusInternalServerError, MCPErrorResponse(nil, ErrorCodeInternalError, "MCP handler returned without writing response"))
		return
	}

	log.Debug("mcp_response",
		"status", rec.statusCode,
		"body", formatBodyForLog(rec.body, rec.truncated),
	)
	if rec.statusCode >= http.StatusBadRequest {
		log.Warn("mcp_request_failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"response", formatBodyForLog(rec.body, rec.truncated),
		)
	}
}
