package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/kuitang/notesmith/internal/ai"
	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/notes"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Services are what one tool call runs against: the caller and the
// services bound for their request.
type Services struct {
	UserID    string
	Notes     *notes.Service
	Assistant *ai.Assistant
}

type servicesContextKey struct{}

// ContextWithServices binds services for tool handlers.
func ContextWithServices(ctx context.Context, svc Services) context.Context {
	return context.WithValue(ctx, servicesContextKey{}, svc)
}

func servicesFrom(ctx context.Context) Services {
	svc, _ := ctx.Value(servicesContextKey{}).(Services)
	return svc
}

var errUnauthorized = errs.New(errs.Unauthenticated, "Unauthorized")

func requireNotes(ctx context.Context) (*notes.Service, string, error) {
	svc := servicesFrom(ctx)
	if svc.Notes == nil {
		return nil, "", errs.New(errs.Internal, "notes tools are unavailable on this MCP endpoint")
	}
	if svc.UserID == "" {
		return nil, "", errUnauthorized
	}
	return svc.Notes, svc.UserID, nil
}

func requireAssistant(ctx context.Context) (*ai.Assistant, error) {
	svc := servicesFrom(ctx)
	if svc.Assistant == nil {
		return nil, errs.New(errs.Internal, "assist tools are unavailable on this MCP endpoint")
	}
	if svc.UserID == "" {
		return nil, errUnauthorized
	}
	return svc.Assistant, nil
}

// Handler implements MCP tool call handling.
type Handler struct{}

// NewHandler creates a new MCP handler. Services come from the call context.
func NewHandler() *Handler {
	return &Handler{}
}

// createToolHandler returns a tool handler function for the given tool name.
// Failures become IsError results; the transport error is always nil.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result, err := h.HandleToolCall(ctx, name, args)
		if err != nil {
			if errs.HTTPStatus(errs.CodeOf(err)) >= 500 {
				obs.From(ctx).Error("mcp_tool_failed", "tool", name, "error", err)
			}
			return newToolResultError(err), nil, nil
		}
		return result, nil, nil
	}
}

// HandleToolCall routes tool calls to appropriate handlers.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	switch name {
	case toolNoteList:
		return h.handleNoteList(ctx, arguments)
	case toolNoteSearch:
		return h.handleNoteSearch(ctx, arguments)
	case toolNoteView:
		return h.handleNoteView(ctx, arguments)
	case toolNoteCreate:
		return h.handleNoteCreate(ctx, arguments)
	case toolNoteUpdate:
		return h.handleNoteUpdate(ctx, arguments)
	case toolNoteDelete:
		return h.handleNoteDelete(ctx, arguments)
	case toolNoteAssist:
		return h.handleNoteAssist(ctx, arguments)
	default:
		return nil, errs.Newf(errs.NotFound, "unknown tool: %s", name)
	}
}

// noteID accepts an id passed either as a JSON string or a JSON number.
// Anything else is kept verbatim so notes.ParseID rejects it.
type noteID string

func (n *noteID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = noteID(s)
		return nil
	}
	*n = noteID(bytes.TrimSpace(b))
	return nil
}

type searchArgs struct {
	Query string `json:"query"`
}

type idArgs struct {
	ID noteID `json:"id"`
}

type createArgs struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

type updateArgs struct {
	ID      noteID    `json:"id"`
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Tags    *[]string `json:"tags"`
}

type assistArgs struct {
	Content string `json:"content"`
	Action  string `json:"action"`
}

func (h *Handler) handleNoteList(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, userID, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var decoded struct{}
	if err := decodeToolArgs(args, &decoded); err != nil {
		return nil, err
	}
	list, err := svc.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(map[string]any{"notes": list}), nil
}

func (h *Handler) handleNoteSearch(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, userID, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var decoded searchArgs
	if err := decodeToolArgs(args, &decoded); err != nil {
		return nil, err
	}
	list, err := svc.Search(ctx, userID, decoded.Query)
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(map[string]any{"notes": list}), nil
}

func (h *Handler) handleNoteView(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, userID, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var decoded idArgs
	if err := decodeToolArgs(args, &decoded); err != nil {
		return nil, err
	}
	note, err := svc.Get(ctx, userID, string(decoded.ID))
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(map[string]any{"note": note}), nil
}

func (h *Handler) handleNoteCreate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, userID, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var decoded createArgs
	if err := decodeToolArgs(args, &decoded); err != nil {
		return nil, err
	}
	note, err := svc.Create(ctx, userID, notes.CreateNoteParams{
		Title:   decoded.Title,
		Content: decoded.Content,
		Tags:    decoded.Tags,
	})
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(map[string]any{"note": note}), nil
}

func (h *Handler) handleNoteUpdate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, userID, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var decoded updateArgs
	if err := decodeToolArgs(args, &decoded); err != nil {
		return nil, err
	}
	note, err := svc.Update(ctx, userID, string(decoded.ID), notes.UpdateNoteParams{
		Title:   decoded.Title,
		Content: decoded.Content,
		Tags:    decoded.Tags,
	})
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(map[string]any{"note": note}), nil
}

func (h *Handler) handleNoteDelete(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	svc, userID, err := requireNotes(ctx)
	if err != nil {
		return nil, err
	}
	var decoded idArgs
	if err := decodeToolArgs(args, &decoded); err != nil {
		return nil, err
	}
	res, err := svc.Delete(ctx, userID, string(decoded.ID))
	if err != nil {
		return nil, err
	}
	return newToolResultJSON(res), nil
}

func (h *Handler) handleNoteAssist(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	assistant, err := requireAssistant(ctx)
	if err != nil {
		return nil, err
	}
	var decoded assistArgs
	if err := decodeToolArgs(args, &decoded); err != nil {
		return nil, err
	}
	action, err := ai.ParseAction(decoded.Action)
	if err != nil {
		return nil, err
	}
	res, err := assistant.Run(ctx, decoded.Content, action)
	if err != nil {
		return nil, err
	}
	if action == ai.GenerateTags {
		return newToolResultJSON(map[string]any{"tags": res.Tags}), nil
	}
	return newToolResultJSON(map[string]any{"result": res.Text}), nil
}

// decodeToolArgs decodes tool arguments into v. Unknown arguments and wrong
// types are validation failures. A nil map is an empty object.
func decodeToolArgs(args map[string]any, v any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw := marshalAny(args)
	if raw == nil {
		return errs.New(errs.InvalidArgument, "validation failed: arguments: must be a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return errs.Newf(errs.InvalidArgument, "validation failed: %s: must be %s", typeErr.Field, jsonKind(typeErr.Type))
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return errs.Newf(errs.InvalidArgument, "validation failed: %s: unknown argument", strings.Trim(field, `"`))
	}
	return errs.New(errs.InvalidArgument, "validation failed: arguments: must be a JSON object")
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

// toolErrorPayload is the text body of every IsError result.
type toolErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// newToolResultError shapes err like the HTTP API does: its code and its
// client-facing message, never the cause.
func newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{
		Code:    string(errs.CodeOf(err)),
		Message: errs.MessageOf(err),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: marshalToolJSON(payload)},
		},
		IsError: true,
	}
}

func newToolResultJSON(value any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: marshalToolJSON(value)},
		},
	}
}

func marshalToolJSON(value any) string {
	data := marshalAny(value)
	if data == nil {
		return `{"code":"internal","message":"failed to marshal response"}`
	}
	return string(data)
}

// marshalAny returns the JSON encoding of value, or nil if it has none.
func marshalAny(value any) []byte {
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return data
}
