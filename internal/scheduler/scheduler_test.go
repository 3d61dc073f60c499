package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/user/marmot/internal/state"
	"github.com/user/marmot/internal/types"
)

type fakeRunner struct {
	mu    sync.Mutex
	turns []*types.IncomingMessage
	reply string
}

func (r *fakeRunner) ProcessTurn(ctx context.Context, incoming *types.IncomingMessage, sink types.EventSink) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, incoming)
	return r.reply, nil
}

func (r *fakeRunner) turnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []string
}

func (d *fakeDeliverer) Deliver(platform, chatID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, platform+":"+chatID+": "+text)
	return nil
}

func (d *fakeDeliverer) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newTestScheduler(t *testing.T) (*Scheduler, *state.Tasks, *fakeRunner, *fakeDeliverer) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tasks := state.NewTasks(db)
	engine := NewEngine()
	engine.Start()
	t.Cleanup(engine.Stop)

	runner := &fakeRunner{reply: "done"}
	deliver := &fakeDeliverer{}
	s := New(tasks, engine, deliver, time.Hour)
	s.SetRunner(runner)
	return s, tasks, runner, deliver
}

func oneShotTask(fireAt time.Time) *types.ScheduledTask {
	return &types.ScheduledTask{
		UserID:       "u1",
		ChatID:       "c1",
		Platform:     "telegram",
		TriggerType:  types.TriggerOneShot,
		TriggerValue: fireAt.Format("2006-01-02T15:04:05"),
		Prompt:       "check the weather",
		Description:  "weather check",
	}
}

func TestScheduleRejectsPastOneShot(t *testing.T) {
	s, tasks, _, _ := newTestScheduler(t)
	ctx := context.Background()

	err := s.Schedule(ctx, oneShotTask(time.Now().Add(-time.Minute)))
	if err == nil {
		t.Fatal("expected error for past datetime")
	}

	active, err := tasks.ListAllActive(ctx)
	if err != nil {
		t.Fatalf("ListAllActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("rejected task was persisted: %d active tasks", len(active))
	}
}

func TestScheduleRejectsFiveFieldCron(t *testing.T) {
	s, tasks, _, _ := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now())
	task.TriggerType = types.TriggerRecurring
	task.TriggerValue = "0 9 * * MON"

	if err := s.Schedule(ctx, task); err == nil {
		t.Fatal("expected error for 5-field cron expression")
	}
	active, err := tasks.ListAllActive(ctx)
	if err != nil {
		t.Fatalf("ListAllActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("rejected task was persisted: %d active tasks", len(active))
	}
}

func TestScheduleRecurringCron(t *testing.T) {
	s, tasks, _, _ := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now())
	task.TriggerType = types.TriggerRecurring
	task.TriggerValue = "0 0 9 * * MON"

	if err := s.Schedule(ctx, task); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if task.TimerJobID == "" {
		t.Error("expected timer job id to be assigned")
	}

	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskActive {
		t.Errorf("status = %q, want active", stored.Status)
	}
	if stored.NextRunAt == nil {
		t.Error("expected next run time to be recorded")
	}
}

func TestOneShotFiresExactlyOnce(t *testing.T) {
	s, tasks, runner, deliver := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now().Add(time.Hour))
	if err := s.Schedule(ctx, task); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// A duplicate callback must see the task already completed and
	// do nothing.
	s.fire(task.ID)
	s.fire(task.ID)

	if got := runner.turnCount(); got != 1 {
		t.Errorf("runner invoked %d times, want 1", got)
	}
	if got := deliver.sentCount(); got != 1 {
		t.Errorf("delivered %d times, want 1", got)
	}

	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
}

func TestFireWithoutRunnerIsSilent(t *testing.T) {
	s, tasks, _, deliver := newTestScheduler(t)
	ctx := context.Background()
	s.SetRunner(nil)

	task := oneShotTask(time.Now().Add(time.Hour))
	if err := s.Schedule(ctx, task); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.fire(task.ID)

	if got := deliver.sentCount(); got != 0 {
		t.Errorf("delivered %d times, want 0", got)
	}
	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
}

func TestCancelledTaskDoesNotFire(t *testing.T) {
	s, tasks, runner, deliver := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now().Add(time.Hour))
	if err := s.Schedule(ctx, task); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	cancelled, err := s.Cancel(ctx, task.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.ID != task.ID {
		t.Errorf("cancelled id = %q, want %q", cancelled.ID, task.ID)
	}

	// Even a stray callback after cancellation must be a no-op.
	s.fire(task.ID)

	if got := runner.turnCount(); got != 0 {
		t.Errorf("runner invoked %d times, want 0", got)
	}
	if got := deliver.sentCount(); got != 0 {
		t.Errorf("delivered %d times, want 0", got)
	}

	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskCancelled {
		t.Errorf("status = %q, want cancelled", stored.Status)
	}
}

func TestCancelUnknownTask(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	if _, err := s.Cancel(context.Background(), types.TaskID("nope")); err == nil {
		t.Fatal("expected error for unknown task id")
	}
}

func TestRestoreFutureOneShot(t *testing.T) {
	s, tasks, _, _ := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now().Add(time.Hour))
	task.Status = types.TaskActive
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.RestoreAll(ctx); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}

	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskActive {
		t.Errorf("status = %q, want active", stored.Status)
	}
	if stored.TimerJobID == "" {
		t.Error("expected a timer job to be re-armed")
	}
}

func TestRestoreRecentlyMissedOneShotFires(t *testing.T) {
	s, tasks, runner, deliver := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now().Add(-30 * time.Minute))
	task.Status = types.TaskActive
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.RestoreAll(ctx); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for deliver.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("missed task never fired after restore")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if got := runner.turnCount(); got != 1 {
		t.Errorf("runner invoked %d times, want 1", got)
	}
	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
}

func TestRestoreStaleOneShotCompletesWithoutFiring(t *testing.T) {
	s, tasks, runner, deliver := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now().Add(-2 * time.Hour))
	task.Status = types.TaskActive
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.RestoreAll(ctx); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}

	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskCompleted {
		t.Errorf("status = %q, want completed", stored.Status)
	}
	if got := runner.turnCount(); got != 0 {
		t.Errorf("runner invoked %d times, want 0", got)
	}
	if got := deliver.sentCount(); got != 0 {
		t.Errorf("delivered %d times, want 0", got)
	}
}

func TestRestoreSkipsMalformedTrigger(t *testing.T) {
	s, tasks, _, _ := newTestScheduler(t)
	ctx := context.Background()

	bad := oneShotTask(time.Now())
	bad.TriggerValue = "not-a-datetime"
	bad.Status = types.TaskActive
	if err := tasks.Create(ctx, bad); err != nil {
		t.Fatalf("Create: %v", err)
	}
	good := oneShotTask(time.Now().Add(time.Hour))
	good.Status = types.TaskActive
	if err := tasks.Create(ctx, good); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.RestoreAll(ctx); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}

	restored, err := tasks.GetByID(ctx, good.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if restored.TimerJobID == "" {
		t.Error("good task should have been re-armed despite the malformed one")
	}
}

func TestRestoreRecurring(t *testing.T) {
	s, tasks, _, _ := newTestScheduler(t)
	ctx := context.Background()

	task := oneShotTask(time.Now())
	task.TriggerType = types.TriggerRecurring
	task.TriggerValue = "0 30 7 * * *"
	task.Status = types.TaskActive
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.RestoreAll(ctx); err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}

	stored, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != types.TaskActive {
		t.Errorf("status = %q, want active", stored.Status)
	}
	if stored.TimerJobID == "" {
		t.Error("expected recurring task to be re-armed")
	}
	if stored.NextRunAt == nil {
		t.Error("expected next run time after restore")
	}
}
