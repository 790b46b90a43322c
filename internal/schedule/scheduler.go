package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hivebot/hivebot/internal/sandbox"
	"github.com/hivebot/hivebot/internal/store"
)

// ErrNotOwner is returned when a mutation is requested by a tenant that
// neither owns the task nor is the main tenant. Callers refuse silently.
var ErrNotOwner = errors.New("schedule: requester does not own task")

// Config holds scheduler settings.
type Config struct {
	TickInterval  time.Duration `json:"tickInterval"`
	Timezone      string        `json:"timezone" envconfig:"SCHEDULER_TIMEZONE"`
	MaxConcurrent int           `json:"maxConcurrent"`
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:  30 * time.Second,
		Timezone:      "UTC",
		MaxConcurrent: 5,
	}
}

// Scheduler owns the durable task registry: it validates schedule specs at
// creation, computes next-fire times, and executes due tasks by starting
// sandbox sessions.
type Scheduler struct {
	cfg    Config
	loc    *time.Location
	store  *store.Store
	runner sandbox.Runner
	sem    *Semaphore
	now    func() time.Time // test hook
}

// New creates a Scheduler. The configured timezone applies to all cron and
// "once" evaluation.
func New(cfg Config, st *store.Store, runner sandbox.Runner) (*Scheduler, error) {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", cfg.Timezone, err)
	}
	return &Scheduler{
		cfg:    cfg,
		loc:    loc,
		store:  st,
		runner: runner,
		sem:    NewSemaphore(cfg.MaxConcurrent),
		now:    time.Now,
	}, nil
}

// CreateRequest describes a new scheduled task.
type CreateRequest struct {
	TenantFolder  string
	ChatID        string
	Prompt        string
	ScheduleType  string
	ScheduleValue string
	ContextMode   string
}

// Create validates the schedule spec and persists a new active task.
// Invalid specs never reach the store.
func (s *Scheduler) Create(req CreateRequest) (*store.ScheduledTask, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("schedule: prompt is required")
	}
	if req.ContextMode == "" {
		req.ContextMode = store.ContextIsolated
	}
	if req.ContextMode != store.ContextGroup && req.ContextMode != store.ContextIsolated {
		return nil, fmt.Errorf("schedule: unknown context mode %q", req.ContextMode)
	}

	next, err := firstRun(req.ScheduleType, req.ScheduleValue, s.now(), s.loc)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}

	task := &store.ScheduledTask{
		ID:            uuid.NewString(),
		TenantFolder:  req.TenantFolder,
		ChatID:        req.ChatID,
		Prompt:        req.Prompt,
		ScheduleType:  req.ScheduleType,
		ScheduleValue: req.ScheduleValue,
		ContextMode:   req.ContextMode,
		NextRun:       &next,
		Status:        store.StatusActive,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateTask(task); err != nil {
		return nil, err
	}
	slog.Info("Scheduled task created", "id", task.ID, "tenant", task.TenantFolder,
		"type", task.ScheduleType, "value", task.ScheduleValue, "nextRun", next)
	return task, nil
}

// Pause sets an active task to paused. NextRun is left untouched so a later
// resume fires at most once for an already-passed slot.
func (s *Scheduler) Pause(id, requester string, isMain bool) error {
	return s.setStatus(id, requester, isMain, store.StatusActive, store.StatusPaused)
}

// Resume sets a paused task back to active.
func (s *Scheduler) Resume(id, requester string, isMain bool) error {
	return s.setStatus(id, requester, isMain, store.StatusPaused, store.StatusActive)
}

func (s *Scheduler) setStatus(id, requester string, isMain bool, from, to string) error {
	task, err := s.store.GetTask(id)
	if err != nil {
		return err
	}
	if err := s.checkOwner(task, requester, isMain); err != nil {
		return err
	}
	if task.Status != from {
		return fmt.Errorf("schedule: task %s is %s, not %s", id, task.Status, from)
	}
	task.Status = to
	return s.store.UpdateTask(task)
}

// Cancel deletes a task unconditionally, subject to the ownership check.
func (s *Scheduler) Cancel(id, requester string, isMain bool) error {
	task, err := s.store.GetTask(id)
	if err != nil {
		return err
	}
	if err := s.checkOwner(task, requester, isMain); err != nil {
		return err
	}
	if err := s.store.DeleteTask(id); err != nil {
		return err
	}
	slog.Info("Scheduled task cancelled", "id", id, "requester", requester)
	return nil
}

// List returns the requester's tasks, or every tenant's tasks for main.
func (s *Scheduler) List(requester string, isMain bool) ([]*store.ScheduledTask, error) {
	if isMain {
		return s.store.ListTasks("")
	}
	return s.store.ListTasks(requester)
}

func (s *Scheduler) checkOwner(task *store.ScheduledTask, requester string, isMain bool) error {
	if isMain || task.TenantFolder == requester {
		return nil
	}
	slog.Warn("Scheduled task mutation refused", "id", task.ID,
		"owner", task.TenantFolder, "requester", requester)
	return ErrNotOwner
}

// Run starts the tick loop. Blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Scheduler started", "tick", s.cfg.TickInterval, "timezone", s.cfg.Timezone)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

// tick fires every due active task. Each fire runs in its own goroutine so
// one slow or failing tenant never delays the others.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	due, err := s.store.DueTasks(now)
	if err != nil {
		slog.Warn("Scheduler due query failed", "error", err)
		return
	}

	for _, task := range due {
		if !s.sem.TryAcquire() {
			slog.Warn("Scheduler task deferred: concurrency limit", "id", task.ID)
			return
		}
		s.fire(ctx, task, now)
	}
	if len(due) > 0 {
		slog.Debug("Scheduler tick complete", "fired", len(due), "freeSlots", s.sem.Available())
	}
}

// fire advances the task's schedule, persists it, then runs the session
// asynchronously. The schedule is advanced before execution so a task still
// running at the next tick is not fired twice.
func (s *Scheduler) fire(ctx context.Context, task *store.ScheduledTask, now time.Time) {
	next, err := nextAfterFire(task, now, s.loc)
	if err != nil {
		// Persisted value no longer parses; park the task instead of
		// retrying it every tick.
		slog.Error("Scheduler cannot advance task, pausing it", "id", task.ID, "error", err)
		task.Status = store.StatusPaused
		_ = s.store.UpdateTask(task)
		s.sem.Release()
		return
	}
	task.NextRun = next
	if next == nil {
		task.Status = store.StatusCompleted
	}
	if err := s.store.UpdateTask(task); err != nil {
		slog.Warn("Scheduler task update failed", "id", task.ID, "error", err)
		s.sem.Release()
		return
	}

	slog.Info("Scheduler firing task", "id", task.ID, "tenant", task.TenantFolder)

	go func() {
		defer s.sem.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Scheduler task panicked", "id", task.ID, "panic", r)
			}
		}()

		result := "ok"
		if _, err := s.runner.StartSession(ctx, task.TenantFolder, task.Prompt, task.ContextMode); err != nil {
			result = err.Error()
			slog.Warn("Scheduled task session failed", "id", task.ID, "error", err)
		}

		// Only last_run/last_result: status and next_run may have been
		// mutated (pause, a later fire) while the session ran, and a full
		// row write would revert that.
		if err := s.store.RecordTaskResult(task.ID, now, result); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Scheduler result update failed", "id", task.ID, "error", err)
		}
	}()
}
