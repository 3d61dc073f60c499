package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/user/marmot/internal/types"
)

// Knowledge persists long-term facts the agent chooses to remember, keyed
// by (category, key).
type Knowledge struct {
	db *sql.DB
}

func NewKnowledge(db *sql.DB) *Knowledge {
	return &Knowledge{db: db}
}

// Remember stores or replaces a fact. An existing (category, key) pair is
// overwritten with the new value.
func (s *Knowledge) Remember(ctx context.Context, category, key, value, source string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (id, category, key, value, source, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(category, key) DO UPDATE SET value = excluded.value, source = excluded.source, updated_at = excluded.updated_at`,
		uuid.New().String(), category, key, value, nullString(source), now, now)
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}
	return nil
}

// Recall returns the value for (category, key). The second return is false
// when nothing is stored under that pair.
func (s *Knowledge) Recall(ctx context.Context, category, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM knowledge WHERE category = ? AND key = ?`, category, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("recall: %w", err)
	}
	return value, true, nil
}

// SearchKnowledge runs a full-text query over stored keys and values.
func (s *Knowledge) SearchKnowledge(ctx context.Context, query string, limit int) ([]types.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT k.id, k.category, k.key, k.value, k.source FROM knowledge_fts f JOIN knowledge k ON k.rowid = f.rowid WHERE knowledge_fts MATCH ? ORDER BY rank LIMIT ?`,
		ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// ListKnowledge returns entries in a category, or all entries when the
// category is empty.
func (s *Knowledge) ListKnowledge(ctx context.Context, category string) ([]types.KnowledgeEntry, error) {
	var rows *sql.Rows
	var err error
	if category == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, category, key, value, source FROM knowledge ORDER BY category, key`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, category, key, value, source FROM knowledge WHERE category = ? ORDER BY key`, category)
	}
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// Forget removes a fact. It reports whether anything was actually deleted.
func (s *Knowledge) Forget(ctx context.Context, category, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge WHERE category = ? AND key = ?`, category, key)
	if err != nil {
		return false, fmt.Errorf("forget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanKnowledgeRows(rows *sql.Rows) ([]types.KnowledgeEntry, error) {
	var out []types.KnowledgeEntry
	for rows.Next() {
		var entry types.KnowledgeEntry
		var source sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Category, &entry.Key, &entry.Value, &source); err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		entry.Source = source.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge: %w", err)
	}
	return out, nil
}
