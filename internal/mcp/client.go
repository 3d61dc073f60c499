package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "marmot"
	clientVersion   = "0.1.0"
)

// ToolDefinition is an MCP tool as reported by tools/list.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type toolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// Client speaks the MCP protocol to one server over a transport.
type Client struct {
	name      string
	transport transport
	nextID    atomic.Int64
}

func newClient(name string, tr transport) *Client {
	return &Client{name: name, transport: tr}
}

func (c *Client) Name() string { return c.name }

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": clientName, "version": clientVersion},
	}
	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}
	slog.Info("mcp server initialized",
		"server", c.name,
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version)

	if err := c.transport.Notify(ctx, newNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}
	return nil
}

// ListTools returns the server's tool definitions.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	resp, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes an MCP tool and flattens the content blocks into a
// single string. A transport failure gets one reconnect-and-retry; an
// error the server itself reports does not.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	result, err := c.callOnce(ctx, name, args)
	if err == nil {
		return result, nil
	}
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		return "", err
	}

	slog.Warn("mcp call failed, reconnecting", "server", c.name, "tool", name, "error", err)
	_ = c.transport.Close()
	if err := c.Initialize(ctx); err != nil {
		return "", fmt.Errorf("reconnect to %s: %w", c.name, err)
	}
	return c.callOnce(ctx, name, args)
}

func (c *Client) callOnce(ctx context.Context, name string, args json.RawMessage) (string, error) {
	params := map[string]any{"name": name, "arguments": args}
	if len(args) == 0 {
		params["arguments"] = map[string]any{}
	}
	resp, err := c.send(ctx, "tools/call", params)
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}
	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("unmarshal tools/call result: %w", err)
	}
	text := extractText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s: %s", name, text)
	}
	return text, nil
}

// Close shuts down the transport and its child process.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) send(ctx context.Context, method string, params any) (*response, error) {
	req := newRequest(c.nextID.Add(1), method, params)
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

func extractText(blocks []contentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		} else {
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}
