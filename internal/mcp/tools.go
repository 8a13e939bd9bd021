package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool describes an MCP tool definition.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ToolResult is returned from tool invocations.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolContent holds a single piece of tool output.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

func errorResult(format string, args ...any) ToolResult {
	r := textResult("Error: " + fmt.Sprintf(format, args...))
	r.IsError = true
	return r
}

type toolHandler func(ctx context.Context, s *Server, params json.RawMessage) ToolResult

type toolEntry struct {
	Tool    Tool
	Handler toolHandler
}

func allTools() []toolEntry {
	return []toolEntry{
		{
			Tool: Tool{
				Name:        "deck_extensions",
				Description: "List installed extensions with their commands and arguments.",
				InputSchema: json.RawMessage(`{"type": "object", "properties": {}, "required": []}`),
			},
			Handler: handleExtensions,
		},
		{
			Tool: Tool{
				Name:        "deck_run",
				Description: "Open an extension command, optionally search, filter or perform an action on it, and return the rendered view as JSON together with any toasts.",
				InputSchema: json.RawMessage(`{"type": "object", "properties": {
  "extension": {"type": "string", "description": "Extension name"},
  "command": {"type": "string", "description": "Command name"},
  "args": {"type": "object", "additionalProperties": {"type": "string"}, "description": "Command arguments"},
  "search": {"type": "string", "description": "Search bar text (optional)"},
  "filter": {"type": "string", "description": "Dropdown value (optional)"},
  "action": {"type": "string", "description": "Action id to perform after loading (optional)"},
  "input": {"type": "object", "additionalProperties": {"type": "string"}, "description": "Form values for the action (optional)"}
}, "required": ["extension", "command"]}`),
			},
			Handler: handleRun,
		},
	}
}

func handleExtensions(_ context.Context, s *Server, _ json.RawMessage) ToolResult {
	var out strings.Builder
	for _, e := range s.launcher.Registry.List() {
		fmt.Fprintf(&out, "%s  %s\n", e.Name, e.Title)
		for _, c := range e.Commands {
			var args []string
			for _, a := range c.Arguments {
				if a.Required {
					args = append(args, "<"+a.Name+">")
				} else {
					args = append(args, "["+a.Name+"]")
				}
			}
			fmt.Fprintf(&out, "  %-20s %s %s\n", c.Name, c.Title, strings.Join(args, " "))
		}
	}
	return textResult(out.String())
}

type runParams struct {
	Extension string            `json:"extension"`
	Command   string            `json:"command"`
	Args      map[string]string `json:"args"`
	Search    *string           `json:"search"`
	Filter    *string           `json:"filter"`
	Action    string            `json:"action"`
	Input     map[string]string `json:"input"`
}

func handleRun(ctx context.Context, s *Server, params json.RawMessage) ToolResult {
	var p runParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return errorResult("invalid arguments: %v", err)
		}
	}
	if p.Extension == "" || p.Command == "" {
		return errorResult("both 'extension' and 'command' arguments are required")
	}

	id := fmt.Sprintf("mcp_%06d", s.calls.Add(1))
	sess, err := s.launcher.Open(ctx, id, p.Extension, p.Command, p.Args)
	if err != nil {
		return errorResult("%v", err)
	}
	defer sess.Close()
	sess.Wait()

	var applyErr error
	if p.Search != nil {
		applyErr = sess.Search(*p.Search)
	}
	if applyErr == nil && p.Filter != nil {
		applyErr = sess.Filter(*p.Filter)
	}
	if applyErr == nil && p.Action != "" {
		sess.Wait()
		applyErr = sess.Perform(ctx, p.Action, p.Input)
	}
	sess.Wait()

	snap := sess.Snapshot()
	if applyErr != nil {
		snap.Error = applyErr.Error()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errorResult("encoding view: %v", err)
	}
	r := textResult(string(data))
	r.IsError = applyErr != nil
	return r
}
