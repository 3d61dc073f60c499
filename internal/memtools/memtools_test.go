package memtools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/marmot/internal/runtime"
	"github.com/user/marmot/internal/state"
	"github.com/user/marmot/pkg/llm"
)

func openStores(t *testing.T) (*state.Conversations, *state.Knowledge) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "marmot.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return state.NewConversations(db), state.NewKnowledge(db)
}

func args(t *testing.T, m map[string]any) runtime.Call {
	t.Helper()
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return runtime.Call{Args: raw}
}

func TestRememberThenRecall(t *testing.T) {
	_, knowledge := openStores(t)
	remember := NewRemember(knowledge)
	recall := NewRecall(knowledge)
	ctx := context.Background()

	result, err := remember.Execute(ctx, args(t, map[string]any{
		"category": "user_preference",
		"key":      "coffee",
		"value":    "oat milk latte",
	}))
	if err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if !strings.Contains(result, "Remembered: [user_preference] coffee") {
		t.Errorf("unexpected result: %q", result)
	}

	value, err := recall.Execute(ctx, args(t, map[string]any{
		"category": "user_preference",
		"key":      "coffee",
	}))
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if value != "oat milk latte" {
		t.Errorf("recall = %q", value)
	}
}

func TestRecall_NotFound(t *testing.T) {
	_, knowledge := openStores(t)
	recall := NewRecall(knowledge)

	result, err := recall.Execute(context.Background(), args(t, map[string]any{
		"category": "facts",
		"key":      "unknown",
	}))
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	if result != "No knowledge found for [facts] unknown" {
		t.Errorf("result = %q", result)
	}
}

func TestRemember_DefaultsCategory(t *testing.T) {
	_, knowledge := openStores(t)
	remember := NewRemember(knowledge)

	result, err := remember.Execute(context.Background(), args(t, map[string]any{
		"key":   "birthday",
		"value": "March 5",
	}))
	if err != nil {
		t.Fatalf("remember failed: %v", err)
	}
	if !strings.Contains(result, "[general]") {
		t.Errorf("missing category should default to general: %q", result)
	}
}

func TestSearchMemory_CoversMessagesAndKnowledge(t *testing.T) {
	conversations, knowledge := openStores(t)
	ctx := context.Background()

	convID, _ := conversations.GetOrCreate(ctx, "telegram", "42")
	conversations.AppendMessage(ctx, convID, llm.Message{Role: llm.RoleUser, Content: "my dentist appointment is on Friday"})
	knowledge.Remember(ctx, "health", "dentist", "Dr. Chen on Elm Street", "chat")

	search := NewSearchMemory(conversations, knowledge)
	result, err := search.Execute(ctx, args(t, map[string]any{"query": "dentist"}))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(result, "[user]: my dentist appointment") {
		t.Errorf("missing message hit: %q", result)
	}
	if !strings.Contains(result, "[knowledge:health] dentist = Dr. Chen on Elm Street") {
		t.Errorf("missing knowledge hit: %q", result)
	}
}

func TestSearchMemory_NoResults(t *testing.T) {
	conversations, knowledge := openStores(t)
	search := NewSearchMemory(conversations, knowledge)

	result, err := search.Execute(context.Background(), args(t, map[string]any{"query": "zebra"}))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if result != "No results found." {
		t.Errorf("result = %q", result)
	}
}
