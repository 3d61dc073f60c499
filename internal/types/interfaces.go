// internal/types/interfaces.go
package types

import (
	"context"
	"time"

	"github.com/user/marmot/pkg/llm"
)

type ConversationStore interface {
	// GetOrCreate resolves the active conversation for a platform user,
	// creating one lazily on first contact.
	GetOrCreate(ctx context.Context, platform, userID string) (ConversationID, error)
	AppendMessage(ctx context.Context, id ConversationID, msg llm.Message) (MessageID, error)
	LoadMessages(ctx context.Context, id ConversationID) ([]llm.Message, error)
	// Clear deletes the pair's conversations and all their messages.
	Clear(ctx context.Context, platform, userID string) error
	SearchMessages(ctx context.Context, query string, limit int) ([]llm.Message, error)
	List(ctx context.Context) ([]*Conversation, error)
}

type TaskStore interface {
	Create(ctx context.Context, task *ScheduledTask) error
	GetByID(ctx context.Context, id TaskID) (*ScheduledTask, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*ScheduledTask, error)
	ListAllActive(ctx context.Context) ([]*ScheduledTask, error)
	SetStatus(ctx context.Context, id TaskID, status string) error
	SetTimerJobID(ctx context.Context, id TaskID, jobID JobID) error
	SetNextRunAt(ctx context.Context, id TaskID, at time.Time) error
}

type KnowledgeStore interface {
	Remember(ctx context.Context, category, key, value, source string) error
	Recall(ctx context.Context, category, key string) (string, bool, error)
	SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error)
	ListKnowledge(ctx context.Context, category string) ([]KnowledgeEntry, error)
	Forget(ctx context.Context, category, key string) (bool, error)
}
