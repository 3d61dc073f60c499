// internal/scheduler/engine.go
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/google/uuid"

	"github.com/user/marmot/internal/types"
)

// cronParser requires the full six fields (seconds first).
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Engine registers one-shot timers and cron jobs and fires callbacks. It
// knows nothing about what the callbacks mean.
type Engine struct {
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[types.JobID]*jobEntry
}

type jobEntry struct {
	timer   *time.Timer
	entryID cron.EntryID
	cronJob bool
}

// NewEngine creates a stopped engine; call Start before arming jobs whose
// fire times matter.
func NewEngine() *Engine {
	return &Engine{
		cron: cron.New(cron.WithParser(cronParser)),
		jobs: make(map[types.JobID]*jobEntry),
	}
}

// Start begins the cron ticker. One-shot timers run regardless.
func (e *Engine) Start() {
	e.cron.Start()
}

// Stop halts the cron ticker and cancels all pending one-shot timers.
func (e *Engine) Stop() {
	e.cron.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, entry := range e.jobs {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(e.jobs, id)
	}
}

// AddOneShot arms a timer that fires fn once after delay.
func (e *Engine) AddOneShot(delay time.Duration, fn func()) types.JobID {
	id := types.JobID(uuid.New().String())
	e.mu.Lock()
	defer e.mu.Unlock()
	entry := &jobEntry{}
	entry.timer = time.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.jobs, id)
		e.mu.Unlock()
		fn()
	})
	e.jobs[id] = entry
	return id
}

// AddRecurring registers fn on a six-field cron expression.
func (e *Engine) AddRecurring(expr string, fn func()) (types.JobID, error) {
	entryID, err := e.cron.AddFunc(expr, fn)
	if err != nil {
		return "", fmt.Errorf("register cron job: %w", err)
	}
	id := types.JobID(uuid.New().String())
	e.mu.Lock()
	e.jobs[id] = &jobEntry{entryID: entryID, cronJob: true}
	e.mu.Unlock()
	return id, nil
}

// Remove cancels a job. Removing an unknown or already-fired job is a no-op.
func (e *Engine) Remove(id types.JobID) {
	e.mu.Lock()
	entry, ok := e.jobs[id]
	if ok {
		delete(e.jobs, id)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	if entry.cronJob {
		e.cron.Remove(entry.entryID)
	} else if entry.timer != nil {
		entry.timer.Stop()
	}
}

// NextRun reports the next fire time of a recurring job. The second return
// is false for one-shot or unknown jobs.
func (e *Engine) NextRun(id types.JobID) (time.Time, bool) {
	e.mu.Lock()
	entry, ok := e.jobs[id]
	e.mu.Unlock()
	if !ok || !entry.cronJob {
		return time.Time{}, false
	}
	next := e.cron.Entry(entry.entryID).Next
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
