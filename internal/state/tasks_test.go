package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/marmot/internal/types"
)

func openTaskStore(t *testing.T) *Tasks {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "marmot.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTasks(db)
}

func newTestTask(userID string) *types.ScheduledTask {
	return &types.ScheduledTask{
		UserID:       userID,
		ChatID:       "chat-1",
		Platform:     "telegram",
		TriggerType:  types.TriggerOneShot,
		TriggerValue: "2027-01-02T15:04:05",
		Prompt:       "check the mail",
		Description:  "mail check",
		Status:       types.TaskActive,
	}
}

func TestTasks_CreateGetRoundTrip(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()

	task := newTestTask("42")
	next := time.Date(2027, 1, 2, 15, 4, 5, 0, time.UTC)
	task.NextRunAt = &next
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.ID == "" {
		t.Fatal("Create should assign an id")
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Prompt != "check the mail" || got.TriggerType != types.TriggerOneShot {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt mismatch: %v", got.NextRunAt)
	}
}

func TestTasks_GetByID_NotFound(t *testing.T) {
	store := openTaskStore(t)

	_, err := store.GetByID(context.Background(), types.TaskID("missing"))
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestTasks_ListActiveForUser_FiltersByStatusAndUser(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()

	mine := newTestTask("42")
	done := newTestTask("42")
	theirs := newTestTask("99")
	for _, task := range []*types.ScheduledTask{mine, done, theirs} {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := store.SetStatus(ctx, done.ID, types.TaskCompleted); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	active, err := store.ListActiveForUser(ctx, "42")
	if err != nil {
		t.Fatalf("ListActiveForUser failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != mine.ID {
		t.Errorf("expected only my active task, got %d tasks", len(active))
	}

	all, err := store.ListAllActive(ctx)
	if err != nil {
		t.Fatalf("ListAllActive failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 active tasks total, got %d", len(all))
	}
}

func TestTasks_SetTimerJobID(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()

	task := newTestTask("42")
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.SetTimerJobID(ctx, task.ID, types.JobID("job-7")); err != nil {
		t.Fatalf("SetTimerJobID failed: %v", err)
	}
	got, _ := store.GetByID(ctx, task.ID)
	if got.TimerJobID != "job-7" {
		t.Errorf("TimerJobID = %q, want job-7", got.TimerJobID)
	}

	if err := store.SetTimerJobID(ctx, types.TaskID("missing"), "job-8"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound for missing task, got %v", err)
	}
}

func TestTasks_SetNextRunAt(t *testing.T) {
	store := openTaskStore(t)
	ctx := context.Background()

	task := newTestTask("42")
	task.TriggerType = types.TriggerRecurring
	task.TriggerValue = "0 0 9 * * *"
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	at := time.Date(2027, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := store.SetNextRunAt(ctx, task.ID, at); err != nil {
		t.Fatalf("SetNextRunAt failed: %v", err)
	}
	got, _ := store.GetByID(ctx, task.ID)
	if got.NextRunAt == nil || !got.NextRunAt.Equal(at) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, at)
	}
}
