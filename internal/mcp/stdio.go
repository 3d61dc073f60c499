package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// transport delivers JSON-RPC messages to an MCP server.
type transport interface {
	Send(ctx context.Context, req *request) (*response, error)
	Notify(ctx context.Context, notif *notification) error
	Close() error
}

// stdioTransport talks to an MCP server running as a child process.
// Messages are newline-delimited JSON on stdin/stdout. The process is
// spawned lazily on the first call and respawned after a failure.
type stdioTransport struct {
	command string
	args    []string
	env     []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

func newStdioTransport(command string, args, env []string) *stdioTransport {
	return &stdioTransport{command: command, args: args, env: env}
}

// start spawns the child process if it is not running. Caller holds t.mu.
func (t *stdioTransport) start() error {
	if t.cmd != nil && t.cmd.ProcessState == nil {
		return nil
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start %s: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, 1<<20)

	// stderr is diagnostics, not protocol.
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for scanner.Scan() {
			slog.Debug("mcp server stderr", "command", t.command, "line", scanner.Text())
		}
	}()

	slog.Info("mcp server started", "command", t.command, "pid", cmd.Process.Pid)
	return nil
}

type readResult struct {
	line []byte
	err  error
}

// Send writes a request and reads lines until it sees the matching
// response id. The read runs in a goroutine so context cancellation can
// interrupt a blocked read.
func (t *stdioTransport) Send(ctx context.Context, req *request) (*response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.start(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		t.teardown()
		return nil, fmt.Errorf("write to mcp server: %w", err)
	}

	for {
		ch := make(chan readResult, 1)
		reader := t.reader
		go func() {
			line, readErr := reader.ReadBytes('\n')
			ch <- readResult{line: line, err: readErr}
		}()

		select {
		case <-ctx.Done():
			t.teardown()
			return nil, ctx.Err()
		case res := <-ch:
			if res.err != nil {
				t.teardown()
				return nil, fmt.Errorf("read from mcp server: %w", res.err)
			}
			var resp response
			if err := json.Unmarshal(res.line, &resp); err != nil {
				continue
			}
			if resp.ID == req.ID {
				return &resp, nil
			}
			// Server-initiated notifications are ignored.
		}
	}
}

func (t *stdioTransport) Notify(ctx context.Context, notif *notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.start(); err != nil {
		return err
	}
	data, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		t.teardown()
		return fmt.Errorf("write to mcp server: %w", err)
	}
	return nil
}

// Close shuts the child process down, forcefully after a grace period.
func (t *stdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	if t.stdin != nil {
		t.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()
	select {
	case err := <-done:
		t.cmd = nil
		return err
	case <-time.After(5 * time.Second):
		slog.Warn("mcp server did not exit, killing", "command", t.command)
		_ = t.cmd.Process.Kill()
		<-done
		t.cmd = nil
		return nil
	}
}

// teardown kills the process after an I/O failure so the next call
// respawns it. Caller holds t.mu.
func (t *stdioTransport) teardown() {
	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.cmd = nil
	t.stdin = nil
	t.reader = nil
}
