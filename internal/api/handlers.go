package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/kuitang/notesmith/internal/ai"
	"github.com/kuitang/notesmith/internal/auth"
	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/export"
	"github.com/kuitang/notesmith/internal/notes"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/kuitang/notesmith/internal/urlutil"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

// Deps are the services behind the API. Exports and Ping may be nil.
type Deps struct {
	Notes     *notes.Service
	Assistant *ai.Assistant
	Exports   *export.Service
	Ping      func(ctx context.Context) error
}

// Handler serves the notes, AI and export endpoints.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the API on mux at the root and again under /api.
// protect guards every note route; aiLimit is applied to POST /ai in
// addition to protect. Either may be nil.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, protect, aiLimit Middleware) {
	if protect == nil {
		protect = identity
	}
	if aiLimit == nil {
		aiLimit = identity
	}

	for _, prefix := range []string{"", "/api"} {
		route := func(pattern string, fn http.HandlerFunc) {
			method, path, _ := strings.Cut(pattern, " ")
			mux.Handle(method+" "+prefix+path, protect(fn))
		}
		route("GET /notes", h.ListNotes)
		route("GET /notes/search", h.SearchNotes)
		route("GET /notes/{id}", h.GetNote)
		route("POST /notes", h.CreateNote)
		route("PUT /notes/{id}", h.UpdateNote)
		route("DELETE /notes/{id}", h.DeleteNote)
		if h.deps.Exports != nil {
			route("POST /notes/export", h.ExportNotes)
			route("GET /notes/exports", h.ListExports)
		}
		if h.deps.Assistant != nil {
			mux.Handle("POST "+prefix+"/ai", protect(aiLimit(http.HandlerFunc(h.Assist))))
		}
	}
	mux.HandleFunc("GET /healthz", h.Health)
}

func identity(next http.Handler) http.Handler { return next }

// ListNotes handles GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Notes.List(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NotesResponse{Notes: list})
}

// SearchNotes handles GET /notes/search?q=. A blank query lists every note.
func (h *Handler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Notes.Search(r.Context(), auth.GetUserID(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NotesResponse{Notes: list})
}

// GetNote handles GET /notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.deps.Notes.Get(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NoteResponse{Note: note})
}

// CreateNote handles POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		writeError(w, r, errs.New(errs.Unauthenticated, "Unauthorized"))
		return
	}
	var params notes.CreateNoteParams
	if err := decodeBody(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := h.deps.Notes.Create(r.Context(), userID, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", urlutil.NoteLocation(r, note.ID))
	writeJSON(w, http.StatusCreated, NoteResponse{Note: note})
}

// UpdateNote handles PUT /notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		writeError(w, r, errs.New(errs.Unauthenticated, "Unauthorized"))
		return
	}
	if _, err := notes.ParseID(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	var params notes.UpdateNoteParams
	if err := decodeBody(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := h.deps.Notes.Update(r.Context(), userID, r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NoteResponse{Note: note})
}

// DeleteNote handles DELETE /notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Notes.Delete(r.Context(), auth.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AssistRequest is the body of POST /ai.
type AssistRequest struct {
	Content string `json:"content"`
	Action  string `json:"action"`
}

// Assist handles POST /ai. Nothing is persisted.
func (h *Handler) Assist(w http.ResponseWriter, r *http.Request) {
	if auth.GetUserID(r.Context()) == "" {
		writeError(w, r, errs.New(errs.Unauthenticated, "Unauthorized"))
		return
	}
	var req AssistRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	action, err := ai.ParseAction(req.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.deps.Assistant.Run(r.Context(), req.Content, action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if action == ai.GenerateTags {
		writeJSON(w, http.StatusOK, TagsResponse{Tags: res.Tags})
		return
	}
	writeJSON(w, http.StatusOK, AssistResponse{Result: res.Text})
}

// ExportNotes handles POST /notes/export.
func (h *Handler) ExportNotes(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Exports.Export(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListExports handles GET /notes/exports.
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Exports.List(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExportsResponse{Exports: entries})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ping != nil {
		if err := h.deps.Ping(r.Context()); err != nil {
			obs.From(r.Context()).Error("health_check_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Response bodies

type NotesResponse struct {
	Notes []notes.Note `json:"notes"`
}

type NoteResponse struct {
	Note *notes.Note `json:"note"`
}

type AssistResponse struct {
	Result string `json:"result"`
}

type TagsResponse struct {
	Tags []string `json:"tags"`
}

type ExportsResponse struct {
	Exports []export.Entry `json:"exports"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// decodeBody decodes a JSON body into v. Malformed JSON and wrong field
// types are reported as validation failures.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		// An empty body is an empty object.
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return errs.Newf(errs.InvalidArgument, "validation failed: %s: must be %s", typeErr.Field, jsonKind(typeErr.Type))
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return errs.New(errs.InvalidArgument, "validation failed: body: malformed JSON")
	case errors.As(err, &tooLarge):
		return errs.New(errs.InvalidArgument, "validation failed: body: too large")
	}
	return errs.New(errs.InvalidArgument, "validation failed: body: must be a JSON object")
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Slice:
		return "an array"
	case reflect.Struct, reflect.Map:
		return "an object"
	}
	return "a " + t.Kind().String()
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to its status and writes {"error": message}. Server
// faults are logged with their cause; the client only sees the coded message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		cause := err
		var coded *errs.Error
		if errors.As(err, &coded) && coded.Err != nil {
			cause = coded.Err
		}
		obs.From(r.Context()).Error("api_request_failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", cause,
		)
	}
	writeJSON(w, status, ErrorResponse{Error: errs.MessageOf(err)})
}
