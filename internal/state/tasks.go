package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/marmot/internal/types"
)

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("task not found")

// Tasks persists scheduled task records.
type Tasks struct {
	db *sql.DB
}

func NewTasks(db *sql.DB) *Tasks {
	return &Tasks{db: db}
}

func (s *Tasks) Create(ctx context.Context, task *types.ScheduledTask) error {
	if task.ID == "" {
		task.ID = types.NewTaskID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	var nextRun any
	if task.NextRunAt != nil {
		nextRun = task.NextRunAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks (id, timer_job_id, user_id, chat_id, platform, trigger_type, trigger_value, prompt, description, status, created_at, next_run_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(task.ID), nullString(string(task.TimerJobID)), task.UserID, task.ChatID, task.Platform,
		task.TriggerType, task.TriggerValue, task.Prompt, task.Description, task.Status,
		task.CreatedAt.Format(time.RFC3339Nano), nextRun)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Tasks) GetByID(ctx context.Context, id types.TaskID) (*types.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timer_job_id, user_id, chat_id, platform, trigger_type, trigger_value, prompt, description, status, created_at, next_run_at
		 FROM scheduled_tasks WHERE id = ?`, string(id))
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *Tasks) ListActiveForUser(ctx context.Context, userID string) ([]*types.ScheduledTask, error) {
	return s.list(ctx,
		`SELECT id, timer_job_id, user_id, chat_id, platform, trigger_type, trigger_value, prompt, description, status, created_at, next_run_at
		 FROM scheduled_tasks WHERE user_id = ? AND status = ? ORDER BY created_at`, userID, types.TaskActive)
}

func (s *Tasks) ListAllActive(ctx context.Context) ([]*types.ScheduledTask, error) {
	return s.list(ctx,
		`SELECT id, timer_job_id, user_id, chat_id, platform, trigger_type, trigger_value, prompt, description, status, created_at, next_run_at
		 FROM scheduled_tasks WHERE status = ? ORDER BY created_at`, types.TaskActive)
}

func (s *Tasks) SetStatus(ctx context.Context, id types.TaskID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET status = ? WHERE id = ?`, status, string(id))
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireRow(res)
}

func (s *Tasks) SetTimerJobID(ctx context.Context, id types.TaskID, jobID types.JobID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET timer_job_id = ? WHERE id = ?`, nullString(string(jobID)), string(id))
	if err != nil {
		return fmt.Errorf("update task job id: %w", err)
	}
	return requireRow(res)
}

func (s *Tasks) SetNextRunAt(ctx context.Context, id types.TaskID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET next_run_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), string(id))
	if err != nil {
		return fmt.Errorf("update task next run: %w", err)
	}
	return requireRow(res)
}

func (s *Tasks) list(ctx context.Context, query string, args ...any) ([]*types.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*types.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*types.ScheduledTask, error) {
	var task types.ScheduledTask
	var id string
	var timerJobID, description, nextRunAt sql.NullString
	var createdAt string
	err := row.Scan(&id, &timerJobID, &task.UserID, &task.ChatID, &task.Platform,
		&task.TriggerType, &task.TriggerValue, &task.Prompt, &description, &task.Status,
		&createdAt, &nextRunAt)
	if err != nil {
		return nil, err
	}
	task.ID = types.TaskID(id)
	task.TimerJobID = types.JobID(timerJobID.String)
	task.Description = description.String
	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if nextRunAt.Valid && nextRunAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, nextRunAt.String)
		if err == nil {
			task.NextRunAt = &t
		}
	}
	return &task, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}
