// internal/memtools/memtools.go
// Package memtools exposes the agent's long-term memory as model tools.
package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/marmot/internal/runtime"
	"github.com/user/marmot/internal/types"
)

// Remember stores a fact under (category, key).
type Remember struct {
	knowledge types.KnowledgeStore
}

func NewRemember(knowledge types.KnowledgeStore) *Remember {
	return &Remember{knowledge: knowledge}
}

func (t *Remember) Name() string { return "remember" }
func (t *Remember) Description() string {
	return "Store a piece of knowledge for long-term memory. Use this to remember user preferences, facts, or anything useful."
}
func (t *Remember) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string", "description": "Category (e.g., 'user_preference', 'fact', 'project')"},
			"key": {"type": "string", "description": "Short identifier for this knowledge"},
			"value": {"type": "string", "description": "The knowledge to remember"}
		},
		"required": ["category", "key", "value"]
	}`)
}

func (t *Remember) Execute(ctx context.Context, call runtime.Call) (string, error) {
	var params struct {
		Category string `json:"category"`
		Key      string `json:"key"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Category == "" {
		params.Category = "general"
	}
	if params.Key == "" {
		return "", fmt.Errorf("Missing 'key' argument")
	}
	if params.Value == "" {
		return "", fmt.Errorf("Missing 'value' argument")
	}
	if err := t.knowledge.Remember(ctx, params.Category, params.Key, params.Value, "chat"); err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}
	return fmt.Sprintf("Remembered: [%s] %s = %s", params.Category, params.Key, params.Value), nil
}

// Recall looks up one stored fact.
type Recall struct {
	knowledge types.KnowledgeStore
}

func NewRecall(knowledge types.KnowledgeStore) *Recall {
	return &Recall{knowledge: knowledge}
}

func (t *Recall) Name() string        { return "recall" }
func (t *Recall) Description() string { return "Retrieve a specific piece of remembered knowledge." }
func (t *Recall) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {"type": "string", "description": "Category to search in"},
			"key": {"type": "string", "description": "The key to look up"}
		},
		"required": ["category", "key"]
	}`)
}

func (t *Recall) Execute(ctx context.Context, call runtime.Call) (string, error) {
	var params struct {
		Category string `json:"category"`
		Key      string `json:"key"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Category == "" {
		params.Category = "general"
	}
	value, found, err := t.knowledge.Recall(ctx, params.Category, params.Key)
	if err != nil {
		return "", fmt.Errorf("recall: %w", err)
	}
	if !found {
		return fmt.Sprintf("No knowledge found for [%s] %s", params.Category, params.Key), nil
	}
	return value, nil
}

// SearchMemory runs a full-text search over both past conversation
// messages and stored knowledge.
type SearchMemory struct {
	conversations types.ConversationStore
	knowledge     types.KnowledgeStore
}

func NewSearchMemory(conversations types.ConversationStore, knowledge types.KnowledgeStore) *SearchMemory {
	return &SearchMemory{conversations: conversations, knowledge: knowledge}
}

func (t *SearchMemory) Name() string { return "search_memory" }
func (t *SearchMemory) Description() string {
	return "Search through past conversations and knowledge using full-text search."
}
func (t *SearchMemory) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query (natural language)"},
			"limit": {"type": "integer", "description": "Max results (default 5)"}
		},
		"required": ["query"]
	}`)
}

func (t *SearchMemory) Execute(ctx context.Context, call runtime.Call) (string, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("Missing 'query' argument")
	}
	if params.Limit <= 0 {
		params.Limit = 5
	}

	var results []string

	msgs, err := t.conversations.SearchMessages(ctx, params.Query, params.Limit)
	if err == nil {
		for _, msg := range msgs {
			if msg.Content != "" {
				results = append(results, fmt.Sprintf("[%s]: %s", msg.Role, msg.Content))
			}
		}
	}

	entries, err := t.knowledge.SearchKnowledge(ctx, params.Query, params.Limit)
	if err == nil {
		for _, entry := range entries {
			results = append(results, fmt.Sprintf("[knowledge:%s] %s = %s", entry.Category, entry.Key, entry.Value))
		}
	}

	if len(results) == 0 {
		return "No results found.", nil
	}
	return strings.Join(results, "\n\n"), nil
}
