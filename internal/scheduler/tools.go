package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/marmot/internal/runtime"
	"github.com/user/marmot/internal/types"
)

// ScheduleTask creates and arms a new scheduled task.
type ScheduleTask struct {
	scheduler *Scheduler
}

func NewScheduleTask(scheduler *Scheduler) *ScheduleTask {
	return &ScheduleTask{scheduler: scheduler}
}

func (t *ScheduleTask) Name() string { return "schedule_task" }
func (t *ScheduleTask) Description() string {
	return "Schedule a task to run at a future time. The prompt will be executed by the AI agent at the scheduled time (full agentic loop). " +
		"For one_shot: trigger_value is ISO 8601 datetime e.g. '2026-03-05T12:00:00'. " +
		"For recurring: trigger_value is a 6-field cron expression (sec min hour day month weekday) e.g. '0 0 9 * * MON' for every Monday at 9am.\n\n" +
		"TIME INFERENCE RULES — follow these strictly, do not ask unnecessary questions:\n" +
		"- The current date and time is in your system prompt. Always use it as the reference.\n" +
		"- Time only, no date (e.g. '5:20', '9:30am'): assume TODAY. If the time is in the past today, use tomorrow.\n" +
		"- The user's AM/PM intent is clear from context: if it's currently 5:15pm and they say '5:20', that is obviously 5:20pm today — schedule it immediately without asking.\n" +
		"- '12:00' or 'noon' = 12:00pm. 'midnight' = 00:00.\n" +
		"- ONLY ask for AM/PM clarification when it is genuinely ambiguous: e.g. user says 'Friday 12:00' with no other context (could be noon or midnight).\n" +
		"- Day of week only (e.g. 'Friday'): assume the NEXT occurrence of that day.\n" +
		"- Never ask for information you can infer. Prefer acting over asking."
}
func (t *ScheduleTask) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"trigger_type": {"type": "string", "enum": ["one_shot", "recurring"]},
			"trigger_value": {"type": "string", "description": "ISO 8601 datetime (one_shot) or 6-field cron expression (recurring)"},
			"prompt": {"type": "string", "description": "The message the agent will process at trigger time"},
			"description": {"type": "string", "description": "Human-readable label for this task"}
		},
		"required": ["trigger_type", "trigger_value", "prompt", "description"]
	}`)
}

func (t *ScheduleTask) Execute(ctx context.Context, call runtime.Call) (string, error) {
	var params struct {
		TriggerType  string `json:"trigger_type"`
		TriggerValue string `json:"trigger_value"`
		Prompt       string `json:"prompt"`
		Description  string `json:"description"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.TriggerType == "" {
		return "", fmt.Errorf("Missing 'trigger_type' argument")
	}
	if params.TriggerValue == "" {
		return "", fmt.Errorf("Missing 'trigger_value' argument")
	}
	if params.Prompt == "" {
		return "", fmt.Errorf("Missing 'prompt' argument")
	}
	if params.Description == "" {
		return "", fmt.Errorf("Missing 'description' argument")
	}

	task := &types.ScheduledTask{
		UserID:       call.UserID,
		ChatID:       call.ChatID,
		Platform:     call.Platform,
		TriggerType:  params.TriggerType,
		TriggerValue: params.TriggerValue,
		Prompt:       params.Prompt,
		Description:  params.Description,
	}
	if err := t.scheduler.Schedule(ctx, task); err != nil {
		// Validation and registration failures come back as the tool
		// result so the model can correct itself.
		return fmt.Sprintf("Failed to schedule task: %v", err), nil
	}
	return fmt.Sprintf("Task scheduled! ID: %s — %s (%s)", task.ID, task.Description, task.TriggerValue), nil
}

// ListScheduledTasks shows the calling user's active tasks.
type ListScheduledTasks struct {
	store types.TaskStore
}

func NewListScheduledTasks(store types.TaskStore) *ListScheduledTasks {
	return &ListScheduledTasks{store: store}
}

func (t *ListScheduledTasks) Name() string { return "list_scheduled_tasks" }
func (t *ListScheduledTasks) Description() string {
	return "List all active scheduled tasks for the current user."
}
func (t *ListScheduledTasks) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ListScheduledTasks) Execute(ctx context.Context, call runtime.Call) (string, error) {
	tasks, err := t.store.ListActiveForUser(ctx, call.UserID)
	if err != nil {
		return "", fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "No active scheduled tasks.", nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Active scheduled tasks (%d):\n\n", len(tasks))
	for _, task := range tasks {
		fmt.Fprintf(&sb, "ID: %s\nDescription: %s\nType: %s | Trigger: %s\nPrompt: %s\n\n",
			task.ID, task.Description, task.TriggerType, task.TriggerValue, task.Prompt)
	}
	return sb.String(), nil
}

// CancelScheduledTask cancels an active task by id.
type CancelScheduledTask struct {
	scheduler *Scheduler
}

func NewCancelScheduledTask(scheduler *Scheduler) *CancelScheduledTask {
	return &CancelScheduledTask{scheduler: scheduler}
}

func (t *CancelScheduledTask) Name() string        { return "cancel_scheduled_task" }
func (t *CancelScheduledTask) Description() string { return "Cancel an active scheduled task by its ID." }
func (t *CancelScheduledTask) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "description": "The task ID from list_scheduled_tasks"}
		},
		"required": ["task_id"]
	}`)
}

func (t *CancelScheduledTask) Execute(ctx context.Context, call runtime.Call) (string, error) {
	var params struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(call.Args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.TaskID == "" {
		return "", fmt.Errorf("Missing 'task_id' argument")
	}

	task, err := t.scheduler.Cancel(ctx, types.TaskID(params.TaskID))
	if err != nil {
		return fmt.Sprintf("Failed to cancel task: %v", err), nil
	}
	return fmt.Sprintf("Task '%s' (%s) cancelled.", task.ID, task.Description), nil
}
