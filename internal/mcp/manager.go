package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/user/marmot/internal/runtime"
)

// ServerConfig describes one MCP server to launch over stdio.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// Manager owns the lifecycle of all configured MCP servers and bridges
// their tools into the tool registry under the external category.
type Manager struct {
	clients []*Client
}

func NewManager() *Manager {
	return &Manager{}
}

// ConnectAll starts each configured server, performs the handshake, and
// registers its tools. A server that fails to come up is logged and
// skipped; the agent runs without it.
func (m *Manager) ConnectAll(ctx context.Context, configs []ServerConfig, registry *runtime.Registry) {
	for _, cfg := range configs {
		client := newClient(cfg.Name, newStdioTransport(cfg.Command, cfg.Args, cfg.Env))
		count, err := m.bridge(ctx, client, registry)
		if err != nil {
			slog.Error("mcp server unavailable, continuing without it",
				"server", cfg.Name, "command", cfg.Command, "error", err)
			_ = client.Close()
			continue
		}
		m.clients = append(m.clients, client)
		slog.Info("mcp tools registered", "server", cfg.Name, "count", count)
	}
}

func (m *Manager) bridge(ctx context.Context, client *Client, registry *runtime.Registry) (int, error) {
	if err := client.Initialize(ctx); err != nil {
		return 0, err
	}
	defs, err := client.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		registry.Register(runtime.CategoryExternal, newBridgedTool(client, def))
	}
	return len(defs), nil
}

// Close shuts down all connected servers.
func (m *Manager) Close() {
	for _, client := range m.clients {
		if err := client.Close(); err != nil {
			slog.Warn("closing mcp server", "server", client.Name(), "error", err)
		}
	}
	m.clients = nil
}

var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// BridgedName builds the namespaced registry name for an MCP tool,
// mcp_<server>_<tool>, with both parts reduced to lowercase
// alphanumerics and underscores.
func BridgedName(server, tool string) string {
	return fmt.Sprintf("mcp_%s_%s", sanitize(server), sanitize(tool))
}

func sanitize(name string) string {
	s := strings.ToLower(name)
	s = sanitizeRe.ReplaceAllString(s, "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// bridgedTool proxies one MCP tool through the registry.
type bridgedTool struct {
	client *Client
	name   string
	def    ToolDefinition
}

func newBridgedTool(client *Client, def ToolDefinition) *bridgedTool {
	return &bridgedTool{
		client: client,
		name:   BridgedName(client.Name(), def.Name),
		def:    def,
	}
}

func (t *bridgedTool) Name() string        { return t.name }
func (t *bridgedTool) Description() string { return t.def.Description }

func (t *bridgedTool) Parameters() json.RawMessage {
	if len(t.def.InputSchema) == 0 {
		return json.RawMessage(`{"type": "object", "properties": {}}`)
	}
	return t.def.InputSchema
}

func (t *bridgedTool) Execute(ctx context.Context, call runtime.Call) (string, error) {
	return t.client.CallTool(ctx, t.def.Name, call.Args)
}
