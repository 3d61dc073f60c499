// internal/types/models.go
package types

import (
	"time"
)

// Task trigger kinds.
const (
	TriggerOneShot   = "one_shot"
	TriggerRecurring = "recurring"
)

// Task lifecycle states. A task holds a timer job id exactly while it is
// active and a live timer is armed for it.
const (
	TaskActive    = "active"
	TaskCompleted = "completed"
	TaskCancelled = "cancelled"
	TaskFailed    = "failed"
)

// Conversation is one persistent message log for a (platform, user) pair.
// The most recently updated conversation for a pair is the active one.
type Conversation struct {
	ID        ConversationID `json:"id"`
	Platform  string         `json:"platform"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ScheduledTask is a future invocation of the agent loop. The prompt is
// re-injected as a user turn when the trigger fires.
type ScheduledTask struct {
	ID           TaskID     `json:"id"`
	TimerJobID   JobID      `json:"timer_job_id,omitempty"`
	UserID       string     `json:"user_id"`
	ChatID       string     `json:"chat_id"`
	Platform     string     `json:"platform"`
	TriggerType  string     `json:"trigger_type"`
	TriggerValue string     `json:"trigger_value"`
	Prompt       string     `json:"prompt"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
}

// IncomingMessage is a platform-agnostic inbound turn.
type IncomingMessage struct {
	Platform string `json:"platform"`
	UserID   string `json:"user_id"`
	ChatID   string `json:"chat_id"`
	UserName string `json:"user_name,omitempty"`
	Text     string `json:"text"`
}

// Key returns the conversation key for this message's sender.
func (m *IncomingMessage) Key() ConversationKey {
	return NewConversationKey(m.Platform, m.UserID)
}

// KnowledgeEntry is a fact the agent has chosen to remember.
type KnowledgeEntry struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	Source   string `json:"source,omitempty"`
}
