package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/marmot/internal/types"
	"github.com/user/marmot/pkg/llm"
)

// Conversations persists conversation message logs.
type Conversations struct {
	db *sql.DB
}

func NewConversations(db *sql.DB) *Conversations {
	return &Conversations{db: db}
}

// GetOrCreate resolves the most recently updated conversation for the
// (platform, user) pair, creating a fresh one on first contact.
func (s *Conversations) GetOrCreate(ctx context.Context, platform, userID string) (types.ConversationID, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE platform = ? AND user_id = ? ORDER BY updated_at DESC LIMIT 1`,
		platform, userID).Scan(&id)
	if err == nil {
		return types.ConversationID(id), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup conversation: %w", err)
	}

	newID := types.NewConversationID()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, platform, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		string(newID), platform, userID, now, now)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return newID, nil
}

func (s *Conversations) AppendMessage(ctx context.Context, id types.ConversationID, msg llm.Message) (types.MessageID, error) {
	var toolCallsJSON any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return "", fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCallsJSON = string(data)
	}

	msgID := types.NewMessageID()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_call_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(msgID), string(id), msg.Role, msg.Content, toolCallsJSON, nullString(msg.ToolCallID), now)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, string(id))
	if err != nil {
		return "", fmt.Errorf("touch conversation: %w", err)
	}
	return msgID, nil
}

// LoadMessages returns the conversation's messages in insertion order.
func (s *Conversations) LoadMessages(ctx context.Context, id types.ConversationID) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id FROM messages WHERE conversation_id = ? ORDER BY rowid`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var msg llm.Message
		var content, toolCalls, toolCallID sql.NullString
		if err := rows.Scan(&msg.Role, &content, &toolCalls, &toolCallID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Content = content.String
		msg.ToolCallID = toolCallID.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Clear deletes the pair's conversations and all their messages. Messages
// go first so the full-text delete triggers fire.
func (s *Conversations) Clear(ctx context.Context, platform, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE platform = ? AND user_id = ?)`,
		platform, userID)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE platform = ? AND user_id = ?`, platform, userID)
	if err != nil {
		return fmt.Errorf("delete conversations: %w", err)
	}
	return nil
}

// SearchMessages runs a full-text query over all stored messages.
func (s *Conversations) SearchMessages(ctx context.Context, query string, limit int) ([]llm.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.role, m.content FROM messages_fts f JOIN messages m ON m.rowid = f.rowid WHERE messages_fts MATCH ? ORDER BY rank LIMIT ?`,
		ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var msg llm.Message
		var content sql.NullString
		if err := rows.Scan(&msg.Role, &content); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		msg.Content = content.String
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return out, nil
}

func (s *Conversations) List(ctx context.Context) ([]*types.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, user_id, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*types.Conversation
	for rows.Next() {
		var conv types.Conversation
		var id, createdAt, updatedAt string
		if err := rows.Scan(&id, &conv.Platform, &conv.UserID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.ID = types.ConversationID(id)
		conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// ftsQuery quotes the user's text as a single phrase so fts5 operators in
// it are taken literally.
func ftsQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
