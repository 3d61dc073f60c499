// internal/runtime/tools/sandbox.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/user/marmot/internal/runtime"
)

// Sandbox confines the file and command tools to one directory tree.
type Sandbox struct {
	dir string
}

// NewSandbox creates the sandbox directory if needed.
func NewSandbox(dir string) (*Sandbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox directory: %w", err)
	}
	return &Sandbox{dir: dir}, nil
}

// Dir returns the sandbox root.
func (s *Sandbox) Dir() string { return s.dir }

// resolve validates that requested stays inside the sandbox after symlink
// resolution. Paths that do not exist yet are judged by their nearest
// existing ancestor.
func (s *Sandbox) resolve(requested string) (string, error) {
	root, err := filepath.EvalSymlinks(s.dir)
	if err != nil {
		return "", fmt.Errorf("sandbox directory not found: %w", err)
	}

	target := requested
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	check := target
	remainder := ""
	for {
		resolved, err := filepath.EvalSymlinks(check)
		if err == nil {
			check = filepath.Join(resolved, remainder)
			break
		}
		remainder = filepath.Join(filepath.Base(check), remainder)
		parent := filepath.Dir(check)
		if parent == check {
			return "", fmt.Errorf("resolve path %q: %w", requested, err)
		}
		check = parent
	}

	if check != root && !strings.HasPrefix(check, root+string(filepath.Separator)) {
		return "", fmt.Errorf("access denied: path %q is outside the sandbox directory", requested)
	}
	return check, nil
}

// ReadFile reads a file inside the sandbox.
type ReadFile struct {
	sandbox *Sandbox
}

func NewReadFile(sandbox *Sandbox) *ReadFile { return &ReadFile{sandbox: sandbox} }

func (t *ReadFile) Name() string        { return "read_file" }
func (t *ReadFile) Description() string { return "Read the contents of a file within the sandbox directory" }
func (t *ReadFile) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "The file path (relative to sandbox or absolute within sandbox)"}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFile) Execute(_ context.Context, call runtime.Call) (string, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("Missing 'path' argument")
	}
	fullPath, err := t.sandbox.resolve(params.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// WriteFile writes a file inside the sandbox, creating parent directories.
type WriteFile struct {
	sandbox *Sandbox
}

func NewWriteFile(sandbox *Sandbox) *WriteFile { return &WriteFile{sandbox: sandbox} }

func (t *WriteFile) Name() string { return "write_file" }
func (t *WriteFile) Description() string {
	return "Write content to a file within the sandbox directory. Creates parent directories if needed."
}
func (t *WriteFile) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "The file path (relative to sandbox or absolute within sandbox)"},
			"content": {"type": "string", "description": "The content to write"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFile) Execute(_ context.Context, call runtime.Call) (string, error) {
	var params struct {
		Path    string  `json:"path"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Path == "" {
		return "", fmt.Errorf("Missing 'path' argument")
	}
	if params.Content == nil {
		return "", fmt.Errorf("Missing 'content' argument")
	}
	fullPath, err := t.sandbox.resolve(params.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(*params.Content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("File written successfully: %s", fullPath), nil
}

// ListFiles lists a directory inside the sandbox.
type ListFiles struct {
	sandbox *Sandbox
}

func NewListFiles(sandbox *Sandbox) *ListFiles { return &ListFiles{sandbox: sandbox} }

func (t *ListFiles) Name() string { return "list_files" }
func (t *ListFiles) Description() string {
	return "List files and directories within a path in the sandbox directory"
}
func (t *ListFiles) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "The directory path (relative to sandbox or absolute within sandbox). Defaults to sandbox root."}
		}
	}`)
}

func (t *ListFiles) Execute(_ context.Context, call runtime.Call) (string, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Path == "" {
		params.Path = "."
	}
	fullPath, err := t.sandbox.resolve(params.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return "", fmt.Errorf("read directory: %w", err)
	}
	if len(entries) == 0 {
		return "Directory is empty", nil
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		prefix := "[FILE]"
		if entry.IsDir() {
			prefix = "[DIR]"
		}
		lines = append(lines, prefix+" "+entry.Name())
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

// ExecuteCommand runs a shell command with the sandbox as working directory.
type ExecuteCommand struct {
	sandbox *Sandbox
}

func NewExecuteCommand(sandbox *Sandbox) *ExecuteCommand {
	return &ExecuteCommand{sandbox: sandbox}
}

func (t *ExecuteCommand) Name() string { return "execute_command" }
func (t *ExecuteCommand) Description() string {
	return "Execute a shell command within the sandbox directory. The working directory is set to the sandbox."
}
func (t *ExecuteCommand) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The command to execute"},
			"timeout_seconds": {"type": "integer", "description": "Timeout in seconds (default: 120)"}
		},
		"required": ["command"]
	}`)
}

func (t *ExecuteCommand) Execute(ctx context.Context, call runtime.Call) (string, error) {
	var params struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Command == "" {
		return "", fmt.Errorf("Missing 'command' argument")
	}

	timeout := 120 * time.Second
	if params.TimeoutSeconds > 0 {
		timeout = time.Duration(params.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("executing command in sandbox", "command", params.Command)

	cmd := exec.CommandContext(ctx, "sh", "-c", params.Command)
	cmd.Dir = t.sandbox.dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", fmt.Errorf("execute command: %w", runErr)
		}
	}

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString("STDOUT:\n" + stdout.String() + "\n")
	}
	if stderr.Len() > 0 {
		result.WriteString("STDERR:\n" + stderr.String() + "\n")
	}
	fmt.Fprintf(&result, "Exit code: %d", exitCode)
	return result.String(), nil
}
