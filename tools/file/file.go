// Package file provides the read/write/list/delete file tools bound to a
// dabgent.Sandbox.
package file

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dabgent/dabgent"
)

const maxReadChars = 8000

type pathArgs struct {
	Path string `json:"path"`
}

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Tools returns the file_read, file_write, file_list, and file_delete tool
// set. file_read and file_list are read-only and never need replay; the
// others mutate the sandbox and do.
func Tools() []dabgent.Tool {
	return []dabgent.Tool{
		{
			Name:        "file_read",
			Description: "Read a file from the workspace. Returns the file content (truncated to 8000 chars if large).",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
			NeedsReplay: false,
			Invoke:      readFile,
		},
		{
			Name:        "file_write",
			Description: "Write content to a file in the workspace. Creates parent directories if needed.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
			NeedsReplay: true,
			Invoke:      writeFile,
		},
		{
			Name:        "file_list",
			Description: "List files and directories in a workspace directory. Returns one entry per line with type prefix (file/dir) and name.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Directory path relative to workspace (empty or '.' for root)"}}}`),
			NeedsReplay: false,
			Invoke:      listDir,
		},
		{
			Name:        "file_delete",
			Description: "Delete a file from the workspace.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
			NeedsReplay: true,
			Invoke:      deleteFile,
		},
	}
}

func readFile(ctx context.Context, sb dabgent.Sandbox, args json.RawMessage) (json.RawMessage, error) {
	var p pathArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, &dabgent.ToolArgumentError{Tool: "file_read", Message: err.Error()}
	}
	if p.Path == "" {
		return nil, &dabgent.ToolArgumentError{Tool: "file_read", Message: "missing field path"}
	}
	data, err := sb.ReadFile(ctx, p.Path)
	if err != nil {
		return nil, &dabgent.ToolExecutionError{Tool: "file_read", Message: err.Error()}
	}
	content := string(data)
	if len(content) > maxReadChars {
		content = content[:maxReadChars] + "...(truncated)"
	}
	return json.Marshal(map[string]string{"content": content})
}

func writeFile(ctx context.Context, sb dabgent.Sandbox, args json.RawMessage) (json.RawMessage, error) {
	var p writeArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, &dabgent.ToolArgumentError{Tool: "file_write", Message: err.Error()}
	}
	if p.Path == "" {
		return nil, &dabgent.ToolArgumentError{Tool: "file_write", Message: "missing field path"}
	}
	if err := sb.WriteFile(ctx, p.Path, []byte(p.Content)); err != nil {
		return nil, &dabgent.ToolExecutionError{Tool: "file_write", Message: err.Error()}
	}
	return json.Marshal(map[string]string{"status": fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path)})
}

func listDir(ctx context.Context, sb dabgent.Sandbox, args json.RawMessage) (json.RawMessage, error) {
	var p pathArgs
	_ = json.Unmarshal(args, &p) // empty path -> root, same as an empty/absent field
	entries, err := sb.ListDirectory(ctx, p.Path)
	if err != nil {
		return nil, &dabgent.ToolExecutionError{Tool: "file_list", Message: err.Error()}
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		lines = append(lines, fmt.Sprintf("%s\t%s", kind, e.Name))
	}
	return json.Marshal(map[string][]string{"entries": lines})
}

func deleteFile(ctx context.Context, sb dabgent.Sandbox, args json.RawMessage) (json.RawMessage, error) {
	var p pathArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, &dabgent.ToolArgumentError{Tool: "file_delete", Message: err.Error()}
	}
	if p.Path == "" {
		return nil, &dabgent.ToolArgumentError{Tool: "file_delete", Message: "missing field path"}
	}
	if err := sb.DeleteFile(ctx, p.Path); err != nil {
		return nil, &dabgent.ToolExecutionError{Tool: "file_delete", Message: err.Error()}
	}
	return json.Marshal(map[string]string{"status": "deleted " + p.Path})
}
