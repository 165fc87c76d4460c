package file

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dabgent/dabgent"
)

// memSandbox is a minimal in-memory dabgent.Sandbox for exercising the file
// tools without a real filesystem.
type memSandbox struct {
	files map[string][]byte
	dirs  map[string][]dabgent.DirEntry
}

func newMemSandbox() *memSandbox {
	return &memSandbox{files: make(map[string][]byte), dirs: make(map[string][]dabgent.DirEntry)}
}

func (s *memSandbox) Exec(context.Context, []string, string) (dabgent.ExecResult, error) {
	return dabgent.ExecResult{}, nil
}

func (s *memSandbox) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, &dabgent.ToolExecutionError{Tool: "file_read", Message: "not found"}
	}
	return data, nil
}

func (s *memSandbox) WriteFile(_ context.Context, path string, data []byte) error {
	s.files[path] = data
	return nil
}

func (s *memSandbox) DeleteFile(_ context.Context, path string) error {
	delete(s.files, path)
	return nil
}

func (s *memSandbox) ListDirectory(_ context.Context, path string) ([]dabgent.DirEntry, error) {
	return s.dirs[path], nil
}

func (s *memSandbox) Fork(context.Context) (dabgent.Sandbox, error) {
	return nil, &dabgent.ErrForkUnsupported{Backend: "mem"}
}

func (s *memSandbox) Close(context.Context) error { return nil }

func findTool(t *testing.T, name string) dabgent.Tool {
	t.Helper()
	for _, tool := range Tools() {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("no tool named %s", name)
	return dabgent.Tool{}
}

func TestFileWrite(t *testing.T) {
	sb := newMemSandbox()
	tool := findTool(t, "file_write")
	args, _ := json.Marshal(map[string]string{"path": "test.txt", "content": "hello"})
	if _, err := tool.Invoke(context.Background(), sb, args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(sb.files["test.txt"]) != "hello" {
		t.Errorf("wrong content: %s", sb.files["test.txt"])
	}
}

func TestFileRead(t *testing.T) {
	sb := newMemSandbox()
	sb.files["test.txt"] = []byte("content here")
	tool := findTool(t, "file_read")
	args, _ := json.Marshal(map[string]string{"path": "test.txt"})
	out, err := tool.Invoke(context.Background(), sb, args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]string
	json.Unmarshal(out, &result)
	if result["content"] != "content here" {
		t.Errorf("wrong content: %q", result["content"])
	}
}

func TestFileReadTruncation(t *testing.T) {
	sb := newMemSandbox()
	big := strings.Repeat("A", 10000)
	sb.files["big.txt"] = []byte(big)
	tool := findTool(t, "file_read")
	args, _ := json.Marshal(map[string]string{"path": "big.txt"})
	out, err := tool.Invoke(context.Background(), sb, args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result map[string]string
	json.Unmarshal(out, &result)
	if len(result["content"]) > maxReadChars+20 {
		t.Errorf("content not truncated: %d chars", len(result["content"]))
	}
}

func TestFileReadNonexistent(t *testing.T) {
	sb := newMemSandbox()
	tool := findTool(t, "file_read")
	args, _ := json.Marshal(map[string]string{"path": "does_not_exist.txt"})
	if _, err := tool.Invoke(context.Background(), sb, args); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestFileReadMissingPath(t *testing.T) {
	sb := newMemSandbox()
	tool := findTool(t, "file_read")
	args, _ := json.Marshal(map[string]string{})
	_, err := tool.Invoke(context.Background(), sb, args)
	var argErr *dabgent.ToolArgumentError
	if err == nil {
		t.Fatal("expected an error for a missing path field")
	}
	if !jsonIsArgError(err, &argErr) {
		t.Fatalf("expected *dabgent.ToolArgumentError, got %T", err)
	}
}

func TestFileWriteOverwrite(t *testing.T) {
	sb := newMemSandbox()
	tool := findTool(t, "file_write")

	args, _ := json.Marshal(map[string]string{"path": "ow.txt", "content": "first"})
	tool.Invoke(context.Background(), sb, args)

	args, _ = json.Marshal(map[string]string{"path": "ow.txt", "content": "second"})
	if _, err := tool.Invoke(context.Background(), sb, args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(sb.files["ow.txt"]) != "second" {
		t.Errorf("expected 'second', got %q", sb.files["ow.txt"])
	}
}

func TestFileWriteEmptyContent(t *testing.T) {
	sb := newMemSandbox()
	tool := findTool(t, "file_write")
	args, _ := json.Marshal(map[string]string{"path": "empty.txt", "content": ""})
	if _, err := tool.Invoke(context.Background(), sb, args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data, ok := sb.files["empty.txt"]; !ok || len(data) != 0 {
		t.Errorf("expected an empty file to be created, got %q, ok=%v", data, ok)
	}
}

func TestFileWriteMissingPath(t *testing.T) {
	sb := newMemSandbox()
	tool := findTool(t, "file_write")
	// path typo'd: valid JSON, but the path field never arrives, so Path
	// unmarshals to its zero value instead of failing json.Unmarshal.
	args, _ := json.Marshal(map[string]string{"pat": "x"})
	_, err := tool.Invoke(context.Background(), sb, args)
	var argErr *dabgent.ToolArgumentError
	if !jsonIsArgError(err, &argErr) {
		t.Fatalf("expected *dabgent.ToolArgumentError for missing path, got %v", err)
	}
	if argErr.Message != "missing field path" {
		t.Errorf("message = %q, want %q", argErr.Message, "missing field path")
	}
}

func TestFileList(t *testing.T) {
	sb := newMemSandbox()
	sb.dirs["."] = []dabgent.DirEntry{
		{Name: "a.txt"}, {Name: "b.txt"}, {Name: "subdir", IsDir: true},
	}
	tool := findTool(t, "file_list")
	args, _ := json.Marshal(map[string]string{"path": "."})
	out, err := tool.Invoke(context.Background(), sb, args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "file\ta.txt") {
		t.Errorf("expected a.txt in listing, got: %s", out)
	}
	if !strings.Contains(string(out), "dir\tsubdir") {
		t.Errorf("expected subdir in listing, got: %s", out)
	}
}

func TestFileListDefaultPath(t *testing.T) {
	sb := newMemSandbox()
	sb.dirs[""] = []dabgent.DirEntry{{Name: "root.txt"}}
	tool := findTool(t, "file_list")
	args, _ := json.Marshal(map[string]string{})
	out, err := tool.Invoke(context.Background(), sb, args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "root.txt") {
		t.Errorf("expected root.txt in listing, got: %s", out)
	}
}

func TestFileDelete(t *testing.T) {
	sb := newMemSandbox()
	sb.files["del.txt"] = []byte("bye")
	tool := findTool(t, "file_delete")
	args, _ := json.Marshal(map[string]string{"path": "del.txt"})
	if _, err := tool.Invoke(context.Background(), sb, args); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sb.files["del.txt"]; ok {
		t.Error("file should have been deleted")
	}
}

func TestFileDeleteMissingPath(t *testing.T) {
	sb := newMemSandbox()
	tool := findTool(t, "file_delete")
	args, _ := json.Marshal(map[string]string{})
	_, err := tool.Invoke(context.Background(), sb, args)
	var argErr *dabgent.ToolArgumentError
	if !jsonIsArgError(err, &argErr) {
		t.Fatalf("expected *dabgent.ToolArgumentError, got %v", err)
	}
}

func TestFileDefinitions(t *testing.T) {
	defs := Tools()
	if len(defs) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(defs))
	}
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"file_read", "file_write", "file_list", "file_delete"} {
		if !names[want] {
			t.Errorf("missing %s tool", want)
		}
	}
}

func jsonIsArgError(err error, target **dabgent.ToolArgumentError) bool {
	e, ok := err.(*dabgent.ToolArgumentError)
	if !ok {
		return false
	}
	*target = e
	return true
}
