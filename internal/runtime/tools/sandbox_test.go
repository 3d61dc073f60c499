package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/marmot/internal/runtime"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	s, err := NewSandbox(filepath.Join(t.TempDir(), "sandbox"))
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	return s
}

func callWith(t *testing.T, args map[string]any) runtime.Call {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	return runtime.Call{Args: raw}
}

func TestWriteThenReadFile(t *testing.T) {
	sandbox := newTestSandbox(t)
	write := NewWriteFile(sandbox)
	read := NewReadFile(sandbox)

	result, err := write.Execute(context.Background(), callWith(t, map[string]any{
		"path":    "notes/todo.txt",
		"content": "buy milk",
	}))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !strings.Contains(result, "File written successfully") {
		t.Errorf("unexpected write result: %q", result)
	}

	content, err := read.Execute(context.Background(), callWith(t, map[string]any{"path": "notes/todo.txt"}))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if content != "buy milk" {
		t.Errorf("read back %q", content)
	}
}

func TestReadFile_EscapeRejected(t *testing.T) {
	sandbox := newTestSandbox(t)
	outside := filepath.Join(filepath.Dir(sandbox.Dir()), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}
	read := NewReadFile(sandbox)

	for _, path := range []string{"../secret.txt", outside, "a/../../secret.txt"} {
		_, err := read.Execute(context.Background(), callWith(t, map[string]any{"path": path}))
		if err == nil {
			t.Errorf("path %q should be rejected", path)
		}
	}
}

func TestWriteFile_SymlinkEscapeRejected(t *testing.T) {
	sandbox := newTestSandbox(t)
	outside := t.TempDir()
	link := filepath.Join(sandbox.Dir(), "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	write := NewWriteFile(sandbox)

	_, err := write.Execute(context.Background(), callWith(t, map[string]any{
		"path":    "link/escape.txt",
		"content": "nope",
	}))
	if err == nil {
		t.Error("write through an escaping symlink should be rejected")
	}
}

func TestWriteFile_MissingArguments(t *testing.T) {
	sandbox := newTestSandbox(t)
	write := NewWriteFile(sandbox)

	_, err := write.Execute(context.Background(), callWith(t, map[string]any{"content": "x"}))
	if err == nil || !strings.Contains(err.Error(), "Missing 'path'") {
		t.Errorf("expected missing path error, got %v", err)
	}
	_, err = write.Execute(context.Background(), callWith(t, map[string]any{"path": "a.txt"}))
	if err == nil || !strings.Contains(err.Error(), "Missing 'content'") {
		t.Errorf("expected missing content error, got %v", err)
	}
}

func TestListFiles(t *testing.T) {
	sandbox := newTestSandbox(t)
	if err := os.MkdirAll(filepath.Join(sandbox.Dir(), "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sandbox.Dir(), "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	list := NewListFiles(sandbox)

	result, err := list.Execute(context.Background(), callWith(t, map[string]any{}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(result, "[FILE] a.txt") || !strings.Contains(result, "[DIR] sub") {
		t.Errorf("unexpected listing: %q", result)
	}

	empty, err := list.Execute(context.Background(), callWith(t, map[string]any{"path": "sub"}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if empty != "Directory is empty" {
		t.Errorf("empty listing = %q", empty)
	}
}

func TestExecuteCommand(t *testing.T) {
	sandbox := newTestSandbox(t)
	execTool := NewExecuteCommand(sandbox)

	result, err := execTool.Execute(context.Background(), callWith(t, map[string]any{"command": "echo hello"}))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(result, "STDOUT:\nhello") || !strings.Contains(result, "Exit code: 0") {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestExecuteCommand_NonZeroExitIsResult(t *testing.T) {
	sandbox := newTestSandbox(t)
	execTool := NewExecuteCommand(sandbox)

	result, err := execTool.Execute(context.Background(), callWith(t, map[string]any{"command": "echo oops >&2; exit 3"}))
	if err != nil {
		t.Fatalf("non-zero exit should not be a Go error: %v", err)
	}
	if !strings.Contains(result, "STDERR:\noops") || !strings.Contains(result, "Exit code: 3") {
		t.Errorf("unexpected result: %q", result)
	}
}

func TestExecuteCommand_RunsInSandboxDir(t *testing.T) {
	sandbox := newTestSandbox(t)
	execTool := NewExecuteCommand(sandbox)

	result, err := execTool.Execute(context.Background(), callWith(t, map[string]any{"command": "pwd"}))
	if err != nil {
		t.Fatal(err)
	}
	resolved, _ := filepath.EvalSymlinks(sandbox.Dir())
	if !strings.Contains(result, resolved) && !strings.Contains(result, sandbox.Dir()) {
		t.Errorf("pwd = %q, want sandbox dir", result)
	}
}
