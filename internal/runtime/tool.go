package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/marmot/pkg/llm"
)

// Call carries a single tool invocation's arguments plus the identity of
// the user the turn belongs to.
type Call struct {
	Args     json.RawMessage
	UserID   string
	ChatID   string
	Platform string
}

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, call Call) (string, error)
}

// Category partitions tools for dispatch. When names collide, the lowest
// category wins.
type Category int

const (
	CategoryScheduling Category = iota
	CategoryMemory
	CategoryExternal
	CategoryLocal
)

var categoryOrder = []Category{CategoryScheduling, CategoryMemory, CategoryExternal, CategoryLocal}

// Registry holds registered tools grouped by category and provides lookup
// in fixed precedence order.
type Registry struct {
	tools map[Category]map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Category]map[string]Tool)}
}

// Register adds a tool under the given category.
func (r *Registry) Register(cat Category, t Tool) {
	if r.tools[cat] == nil {
		r.tools[cat] = make(map[string]Tool)
	}
	r.tools[cat][t.Name()] = t
}

// Get returns a tool by name, checking categories in precedence order.
func (r *Registry) Get(name string) (Tool, bool) {
	for _, cat := range categoryOrder {
		if t, ok := r.tools[cat][name]; ok {
			return t, true
		}
	}
	return nil, false
}

// All returns all registered tools in precedence order.
func (r *Registry) All() []Tool {
	var out []Tool
	for _, cat := range categoryOrder {
		for _, t := range r.tools[cat] {
			out = append(out, t)
		}
	}
	return out
}

// Definitions converts registered tools to the LLM provider format.
func (r *Registry) Definitions() []llm.Tool {
	all := r.All()
	out := make([]llm.Tool, 0, len(all))
	for _, t := range all {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Execute runs the named tool and always returns a result string. Failures
// of any kind come back as readable text so the model can self-correct.
func (r *Registry) Execute(ctx context.Context, name string, call Call) string {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf("Tool error: unknown tool %q", name)
	}
	result, err := t.Execute(ctx, call)
	if err != nil {
		return fmt.Sprintf("Tool error: %v", err)
	}
	return result
}
