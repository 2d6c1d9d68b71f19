package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Toolset controls which tool families are mounted.
type Toolset string

const (
	ToolsetAll   Toolset = "all"
	ToolsetNotes Toolset = "notes"
)

// Tool names.
const (
	toolNoteList   = "note_list"
	toolNoteSearch = "note_search"
	toolNoteView   = "note_view"
	toolNoteCreate = "note_create"
	toolNoteUpdate = "note_update"
	toolNoteDelete = "note_delete"
	toolNoteAssist = "note_assist"
)

// ToolDefinitions returns tool definitions for the requested toolset.
// ToolsetNotes leaves out note_assist.
func ToolDefinitions(toolset Toolset) []*mcp.Tool {
	tools := NoteToolDefinitions()
	if toolset == ToolsetNotes {
		return tools
	}
	return append(tools, AssistToolDefinition())
}

var noteIDSchema = map[string]any{
	"type":        []string{"string", "integer"},
	"description": "The numeric id of the note",
}

var tagsSchema = map[string]any{
	"type":        "array",
	"description": "Short lowercase labels",
	"items":       map[string]any{"type": "string"},
}

// NoteToolDefinitions returns the note CRUD tool definitions.
func NoteToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        toolNoteList,
			Description: "List every note of the signed-in user, least recently updated first. Returns {notes:[{id,userId,title,content,tags,createdAt,updatedAt}]}.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        toolNoteSearch,
			Description: "Find notes whose title or content contains the query, ignoring case. A blank query lists every note. Returns {notes:[...]}.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Plain text to look for",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        toolNoteView,
			Description: "Read one note by id. Returns {note}.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": noteIDSchema,
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        toolNoteCreate,
			Description: "Create a note. Title (1 to 200 characters) and content are required; tags are optional. Returns {note} with the assigned id.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "The title of the note",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The body of the note",
					},
					"tags": tagsSchema,
				},
				"required": []string{"title", "content"},
			},
		},
		{
			Name:        toolNoteUpdate,
			Description: "Change a note. Only the fields passed are replaced; tags replace the whole list. Returns {note}.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": noteIDSchema,
					"title": map[string]any{
						"type":        "string",
						"description": "New title",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "New body",
					},
					"tags": tagsSchema,
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        toolNoteDelete,
			Description: "Permanently delete a note by id. Returns {success,message}.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": noteIDSchema,
				},
				"required": []string{"id"},
			},
		},
	}
}

// AssistToolDefinition returns the AI assist tool. Nothing it produces is saved.
func AssistToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        toolNoteAssist,
		Description: "Summarize or improve text, or suggest tags for it. Returns {result} for summarize and improve, {tags} for generate-tags. Nothing is saved; pass the output to note_update to keep it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The text to work on",
				},
				"action": map[string]any{
					"type":        "string",
					"description": "What to do with the text",
					"enum":        []string{"summarize", "improve", "generate-tags"},
				},
			},
			"required": []string{"content", "action"},
		},
	}
}
