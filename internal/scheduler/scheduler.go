// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/marmot/internal/types"
)

// Runner re-enters the agent loop with a stored prompt as a synthetic
// user turn. Scheduled turns pass no event sink.
type Runner interface {
	ProcessTurn(ctx context.Context, incoming *types.IncomingMessage, sink types.EventSink) (string, error)
}

// Deliverer sends a scheduled task's answer back to the user's chat on
// the task's platform.
type Deliverer interface {
	Deliver(platform, chatID, text string) error
}

// missedFireDelay is the near-zero delay used for recently missed
// one-shot tasks found during startup recovery.
const missedFireDelay = 2 * time.Second

// Scheduler bridges the task store and the timer engine. It exclusively
// owns the task-id to timer-job mapping.
type Scheduler struct {
	store      types.TaskStore
	engine     *Engine
	deliver    Deliverer
	staleAfter time.Duration

	// The runner is attached after construction and nil-checked at
	// fire time, so a firing callback never keeps a torn-down runtime
	// alive and quietly no-ops if nothing is attached.
	mu     sync.Mutex
	runner Runner
}

// New creates a Scheduler. staleAfter bounds how far in the past a
// one-shot task may be on restart and still fire.
func New(store types.TaskStore, engine *Engine, deliver Deliverer, staleAfter time.Duration) *Scheduler {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &Scheduler{
		store:      store,
		engine:     engine,
		deliver:    deliver,
		staleAfter: staleAfter,
	}
}

// SetRunner attaches the agent loop used when tasks fire.
func (s *Scheduler) SetRunner(r Runner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

func (s *Scheduler) runnerHandle() Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

// Schedule validates the task's trigger, persists it as active, and arms
// a timer job for it. The task's ID, TimerJobID and NextRunAt are filled
// in on success.
func (s *Scheduler) Schedule(ctx context.Context, task *types.ScheduledTask) error {
	now := time.Now()

	var delay time.Duration
	switch task.TriggerType {
	case types.TriggerOneShot:
		d, err := ParseOneShotDelay(task.TriggerValue, now)
		if err != nil {
			return fmt.Errorf("invalid trigger: %w", err)
		}
		delay = d
	case types.TriggerRecurring:
		if err := ValidateCronExpr(task.TriggerValue); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown trigger_type %q. Use 'one_shot' or 'recurring'", task.TriggerType)
	}

	task.Status = types.TaskActive
	if err := s.store.Create(ctx, task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}

	if err := s.arm(ctx, task, delay); err != nil {
		if statusErr := s.store.SetStatus(ctx, task.ID, types.TaskFailed); statusErr != nil {
			slog.Error("failed to mark task failed", "task_id", task.ID, "error", statusErr)
		}
		return err
	}
	return nil
}

// arm registers the timer job for an already-persisted active task and
// records the job id and next fire time. delay is ignored for recurring
// tasks.
func (s *Scheduler) arm(ctx context.Context, task *types.ScheduledTask, delay time.Duration) error {
	taskID := task.ID
	var jobID types.JobID
	var nextRun time.Time

	switch task.TriggerType {
	case types.TriggerOneShot:
		jobID = s.engine.AddOneShot(delay, func() { s.fire(taskID) })
		nextRun = time.Now().Add(delay)
	case types.TriggerRecurring:
		var err error
		jobID, err = s.engine.AddRecurring(task.TriggerValue, func() { s.fire(taskID) })
		if err != nil {
			return fmt.Errorf("register task with scheduler: %w", err)
		}
		if sched, err := cronParser.Parse(task.TriggerValue); err == nil {
			nextRun = sched.Next(time.Now())
		}
	default:
		return fmt.Errorf("unknown trigger_type %q", task.TriggerType)
	}

	task.TimerJobID = jobID
	if err := s.store.SetTimerJobID(ctx, taskID, jobID); err != nil {
		slog.Warn("failed to persist timer job id", "task_id", taskID, "error", err)
	}
	if !nextRun.IsZero() {
		utc := nextRun.UTC()
		task.NextRunAt = &utc
		if err := s.store.SetNextRunAt(ctx, taskID, nextRun); err != nil {
			slog.Warn("failed to persist next run time", "task_id", taskID, "error", err)
		}
	}
	return nil
}

// Cancel removes a task's timer registration and marks it cancelled.
func (s *Scheduler) Cancel(ctx context.Context, id types.TaskID) (*types.ScheduledTask, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.TimerJobID != "" {
		s.engine.Remove(task.TimerJobID)
	}
	if err := s.store.SetStatus(ctx, id, types.TaskCancelled); err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	return task, nil
}

// fire is the timer callback for one task. It re-reads the record so a
// cancelled or already-fired task is a no-op, marks one-shot tasks
// completed before any effect runs, replays the prompt through the agent
// loop, and delivers the answer.
func (s *Scheduler) fire(id types.TaskID) {
	ctx := context.Background()

	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		slog.Error("scheduled task lookup failed", "task_id", id, "error", err)
		return
	}
	if task.Status != types.TaskActive {
		slog.Debug("skipping fire for inactive task", "task_id", id, "status", task.Status)
		return
	}

	if task.TriggerType == types.TriggerOneShot {
		// Completed before the effect, so a crash mid-effect or a
		// duplicate re-arm cannot cause a second delivery.
		if err := s.store.SetStatus(ctx, id, types.TaskCompleted); err != nil {
			slog.Error("failed to complete one-shot task", "task_id", id, "error", err)
			return
		}
	} else if next, ok := s.engine.NextRun(task.TimerJobID); ok {
		if err := s.store.SetNextRunAt(ctx, id, next); err != nil {
			slog.Warn("failed to update next run time", "task_id", id, "error", err)
		}
	}

	runner := s.runnerHandle()
	if runner == nil {
		slog.Debug("no runner attached, dropping scheduled fire", "task_id", id)
		return
	}

	slog.Info("scheduled task firing", "task_id", id, "description", task.Description)

	incoming := &types.IncomingMessage{
		Platform: task.Platform,
		UserID:   task.UserID,
		ChatID:   task.ChatID,
		Text:     task.Prompt,
	}
	answer, err := runner.ProcessTurn(ctx, incoming, nil)
	if err != nil {
		slog.Error("scheduled turn failed", "task_id", id, "error", err)
		return
	}
	if answer == "" || s.deliver == nil {
		return
	}
	if err := s.deliver.Deliver(task.Platform, task.ChatID, answer); err != nil {
		slog.Error("failed to deliver scheduled answer", "task_id", id, "error", err)
	}
}

// RestoreAll reconstructs timer jobs for every active task after a
// restart. Recurring tasks are re-registered as-is. One-shot tasks whose
// fire time is still ahead re-arm with the remaining delay; ones missed
// by less than the staleness window fire almost immediately; older ones
// are completed without firing. Malformed trigger values are logged and
// skipped rather than aborting startup.
func (s *Scheduler) RestoreAll(ctx context.Context) error {
	tasks, err := s.store.ListAllActive(ctx)
	if err != nil {
		return fmt.Errorf("load tasks for restore: %w", err)
	}

	restored := 0
	for _, task := range tasks {
		switch task.TriggerType {
		case types.TriggerRecurring:
			if err := ValidateCronExpr(task.TriggerValue); err != nil {
				slog.Error("skipping task with malformed cron", "task_id", task.ID, "error", err)
				continue
			}
			if err := s.arm(ctx, task, 0); err != nil {
				slog.Error("failed to restore recurring task", "task_id", task.ID, "error", err)
				continue
			}
			restored++

		case types.TriggerOneShot:
			fireAt, err := ParseOneShotTime(task.TriggerValue)
			if err != nil {
				slog.Error("skipping task with malformed trigger", "task_id", task.ID, "error", err)
				continue
			}
			now := time.Now()
			switch {
			case fireAt.After(now):
				if err := s.arm(ctx, task, fireAt.Sub(now)); err != nil {
					slog.Error("failed to restore one-shot task", "task_id", task.ID, "error", err)
					continue
				}
				restored++
			case now.Sub(fireAt) <= s.staleAfter:
				slog.Info("firing recently missed one-shot task", "task_id", task.ID, "missed_by", now.Sub(fireAt))
				if err := s.arm(ctx, task, missedFireDelay); err != nil {
					slog.Error("failed to restore one-shot task", "task_id", task.ID, "error", err)
					continue
				}
				restored++
			default:
				slog.Info("completing stale one-shot task without firing", "task_id", task.ID, "missed_by", now.Sub(fireAt))
				if err := s.store.SetStatus(ctx, task.ID, types.TaskCompleted); err != nil {
					slog.Error("failed to complete stale task", "task_id", task.ID, "error", err)
				}
			}

		default:
			slog.Error("skipping task with unknown trigger type", "task_id", task.ID, "trigger_type", task.TriggerType)
		}
	}

	slog.Info("scheduled tasks restored", "restored", restored, "total_active", len(tasks))
	return nil
}
