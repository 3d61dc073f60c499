// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ConversationKey string
type ConversationID string
type MessageID string
type TaskID string
type JobID string
type RunID string

func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// NewConversationKey joins platform and user id into the canonical
// conversation key, e.g. "telegram:12345".
func NewConversationKey(parts ...string) ConversationKey {
	return ConversationKey(strings.Join(parts, ":"))
}
