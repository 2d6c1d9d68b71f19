package mcp

import (
	"context"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/notes"
)

const (
	promptWorkflow = "notes_workflow"
	promptTidy     = "note_tidy"
)

const workflowText = "Use note_search or note_list to find a note and note_view to read it by id. " +
	"Create with note_create; note_update replaces only the fields you pass, and tags always replace the whole list. " +
	"note_delete is permanent, so confirm with the user first."

const assistText = " note_assist summarizes, improves or tags text without saving anything; " +
	"call note_update with its output when the user wants to keep it."

type promptSpec struct {
	prompt  *mcp.Prompt
	handler mcp.PromptHandler
}

// prompts lists the prompts offered for toolset. note_tidy needs
// note_assist, so it only comes with ToolsetAll.
func prompts(toolset Toolset) []promptSpec {
	workflow := workflowText
	description := "How to find and change the user's notes."
	if toolset == ToolsetAll {
		workflow += assistText
		description = "How to find, change and enrich the user's notes."
	}

	specs := []promptSpec{{
		prompt:  &mcp.Prompt{Name: promptWorkflow, Title: "Notes workflow", Description: description},
		handler: staticPrompt(description, workflow),
	}}
	if toolset == ToolsetAll {
		specs = append(specs, promptSpec{
			prompt: &mcp.Prompt{
				Name:        promptTidy,
				Title:       "Tidy a note",
				Description: "Improve a note's wording and tags, then save it after the user agrees.",
				Arguments: []*mcp.PromptArgument{
					{Name: "id", Description: "Numeric id of the note to tidy.", Required: true},
				},
			},
			handler: tidyPrompt,
		})
	}
	return specs
}

func registerPrompts(mcpServer *mcp.Server, toolset Toolset) {
	for _, p := range prompts(toolset) {
		mcpServer.AddPrompt(p.prompt, p.handler)
	}
}

// PromptDefinitions returns the prompt metadata for toolset.
func PromptDefinitions(toolset Toolset) []*mcp.Prompt {
	specs := prompts(toolset)
	defs := make([]*mcp.Prompt, 0, len(specs))
	for _, p := range specs {
		defs = append(defs, p.prompt)
	}
	return defs
}

func userMessage(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{{
			Role:    mcp.Role("user"),
			Content: &mcp.TextContent{Text: text},
		}},
	}
}

func staticPrompt(description, text string) mcp.PromptHandler {
	return func(context.Context, *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return userMessage(description, text), nil
	}
}

func tidyPrompt(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var raw string
	if req != nil && req.Params != nil {
		raw = req.Params.Arguments["id"]
	}
	id, err := notes.ParseID(raw)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "note_tidy: id must be a note id")
	}
	ref := strconv.FormatInt(id, 10)
	text := "Call note_view with id " + ref + ". " +
		"Run note_assist with action improve on its content and with action tags on the improved text. " +
		"Show the user the proposed content and tags, and only after they agree call note_update with id " + ref + "."
	return userMessage("Tidy note "+ref, text), nil
}
