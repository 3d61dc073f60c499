package gateway

import (
	"context"
	"time"

	"github.com/user/marmot/internal/types"
)

// Run is one inbound message waiting for, or undergoing, a turn.
type Run struct {
	ID         types.RunID
	Key        types.ConversationKey
	Message    *types.IncomingMessage
	Sink       types.EventSink
	OnComplete func(response string)
	CreatedAt  time.Time
	Ctx        context.Context
}

// NewRun wraps an inbound message for queueing. The lane key is derived
// from the message's platform and user.
func NewRun(msg *types.IncomingMessage) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Key:       msg.Key(),
		Message:   msg,
		CreatedAt: time.Now(),
	}
}
