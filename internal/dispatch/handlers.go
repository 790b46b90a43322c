package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hivebot/hivebot/internal/contentcache"
	"github.com/hivebot/hivebot/internal/ratelimit"
	"github.com/hivebot/hivebot/internal/schedule"
	"github.com/hivebot/hivebot/internal/store"
	"github.com/hivebot/hivebot/internal/tenant"
)

// ImageGenerator renders an image for a prompt and returns a local file
// path. The provider behind it is an external collaborator.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Handlers bundles the host-side services the command handlers act on.
type Handlers struct {
	Scheduler *schedule.Scheduler
	Cache     *contentcache.Cache
	Limiter   *ratelimit.Limiter
	Prefs     *store.Store
	Images    ImageGenerator
}

// RegisterAll binds every handler to the dispatcher with its required
// permission.
func (h *Handlers) RegisterAll(d *Dispatcher) {
	d.Register(KindScheduleCreate, PermOwnGroup, h.scheduleCreate)
	d.Register(KindSchedulePause, PermOwnGroup, h.schedulePause)
	d.Register(KindScheduleResume, PermOwnGroup, h.scheduleResume)
	d.Register(KindScheduleCancel, PermOwnGroup, h.scheduleCancel)
	d.Register(KindScheduleList, PermAny, h.scheduleList)
	d.Register(KindSendMessage, PermOwnGroup, h.sendMessage)
	d.Register(KindSendMedia, PermOwnGroup, h.sendMedia)
	d.Register(KindGenerateImage, PermOwnGroup, h.generateImage)
	d.Register(KindCacheInvalidate, PermOwnGroup, h.cacheInvalidate)
	d.Register(KindSetPreference, PermOwnGroup, h.setPreference)
	d.Register(KindRegisterTenant, PermMain, h.registerTenant)
}

// targetFolder resolves an optional tenant field: empty means the source
// tenant itself.
func targetFolder(requested string, ic *Context) string {
	if requested == "" {
		return ic.SourceTenant
	}
	return requested
}

// allowTarget implements the own_group rule for tenant-targeted commands.
func allowTarget(target string, ic *Context) bool {
	if ic.IsMain || target == ic.SourceTenant {
		return true
	}
	slog.Warn("Dispatch: cross-tenant command refused",
		"source", ic.SourceTenant, "target", target)
	return false
}

// allowChat implements the own_group rule for chat-targeted commands: the
// chat must belong to the source tenant unless the source is main.
func allowChat(chatID string, ic *Context) bool {
	if ic.IsMain {
		return true
	}
	if cfg, ok := ic.Tenants.Get(chatID); ok && cfg.Folder == ic.SourceTenant {
		return true
	}
	slog.Warn("Dispatch: command for foreign chat refused",
		"source", ic.SourceTenant, "chat", chatID)
	return false
}

func (h *Handlers) scheduleCreate(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*ScheduleCreate)
	target := targetFolder(c.TenantFolder, ic)
	if !allowTarget(target, ic) {
		return nil
	}
	chatID := c.ChatID
	if chatID == "" {
		if cfg, ok := ic.Tenants.ByFolder(target); ok {
			chatID = cfg.ChatID
		}
	}
	task, err := h.Scheduler.Create(schedule.CreateRequest{
		TenantFolder:  target,
		ChatID:        chatID,
		Prompt:        c.Prompt,
		ScheduleType:  c.ScheduleType,
		ScheduleValue: c.ScheduleValue,
		ContextMode:   c.ContextMode,
	})
	if err != nil {
		return err
	}
	slog.Info("Dispatch: task scheduled", "id", task.ID, "source", ic.SourceTenant)
	return nil
}

func (h *Handlers) schedulePause(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*SchedulePause)
	return h.mutateTask(h.Scheduler.Pause, c.TaskID, ic)
}

func (h *Handlers) scheduleResume(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*ScheduleResume)
	return h.mutateTask(h.Scheduler.Resume, c.TaskID, ic)
}

func (h *Handlers) scheduleCancel(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*ScheduleCancel)
	return h.mutateTask(h.Scheduler.Cancel, c.TaskID, ic)
}

// mutateTask applies a scheduler mutation. Ownership refusals are already
// logged by the scheduler and are not errors at this level.
func (h *Handlers) mutateTask(op func(id, requester string, isMain bool) error, taskID string, ic *Context) error {
	if taskID == "" {
		return fmt.Errorf("task_id is required")
	}
	err := op(taskID, ic.SourceTenant, ic.IsMain)
	if errors.Is(err, schedule.ErrNotOwner) {
		return nil
	}
	return err
}

func (h *Handlers) scheduleList(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*ScheduleList)
	if c.ChatID == "" {
		return fmt.Errorf("chat_id is required")
	}
	tasks, err := h.Scheduler.List(ic.SourceTenant, ic.IsMain)
	if err != nil {
		return err
	}

	var b strings.Builder
	if len(tasks) == 0 {
		b.WriteString("No scheduled tasks.")
	} else {
		fmt.Fprintf(&b, "%d scheduled task(s):\n", len(tasks))
		for _, t := range tasks {
			next := "-"
			if t.NextRun != nil {
				next = t.NextRun.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(&b, "• %s [%s %s] %s — next: %s\n",
				shortID(t.ID), t.ScheduleType, t.Status, truncate(t.Prompt, 60), next)
		}
	}
	return ic.Send(ctx, c.ChatID, b.String())
}

func (h *Handlers) sendMessage(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*SendMessage)
	if c.ChatID == "" || c.Text == "" {
		return fmt.Errorf("chat_id and text are required")
	}
	if !allowChat(c.ChatID, ic) {
		return nil
	}
	if c.Edit {
		if !h.Limiter.CanEdit(c.ChatID) {
			slog.Debug("Dispatch: edit skipped, rate limited", "chat", c.ChatID)
			return nil
		}
		if err := ic.Send(ctx, c.ChatID, c.Text); err != nil {
			return fmt.Errorf("send edit: %w", err)
		}
		h.Limiter.RecordEdit(c.ChatID)
		return nil
	}
	return ic.Send(ctx, c.ChatID, c.Text)
}

func (h *Handlers) sendMedia(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*SendMedia)
	if c.ChatID == "" || c.FilePath == "" {
		return fmt.Errorf("chat_id and file_path are required")
	}
	if !allowChat(c.ChatID, ic) {
		return nil
	}
	if ic.SendMedia == nil {
		return fmt.Errorf("media delivery not available")
	}
	return ic.SendMedia(ctx, c.ChatID, c.FilePath, c.Caption)
}

func (h *Handlers) generateImage(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*GenerateImage)
	if c.ChatID == "" || c.Prompt == "" {
		return fmt.Errorf("chat_id and prompt are required")
	}
	if !allowChat(c.ChatID, ic) {
		return nil
	}
	if h.Images == nil {
		return fmt.Errorf("image generation not available")
	}
	path, err := h.Images.Generate(ctx, c.Prompt)
	if err != nil {
		// Degrade to a notification rather than dropping the request
		// silently.
		if sendErr := ic.Send(ctx, c.ChatID, "Image generation failed."); sendErr != nil {
			slog.Warn("Dispatch: failure notice undeliverable", "chat", c.ChatID, "error", sendErr)
		}
		return fmt.Errorf("generate image: %w", err)
	}
	if ic.SendMedia == nil {
		return fmt.Errorf("media delivery not available")
	}
	return ic.SendMedia(ctx, c.ChatID, path, truncate(c.Prompt, 100))
}

func (h *Handlers) cacheInvalidate(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*CacheInvalidate)
	target := targetFolder(c.TenantFolder, ic)
	if !allowTarget(target, ic) {
		return nil
	}
	h.Cache.Invalidate(ctx, target)
	return nil
}

func (h *Handlers) setPreference(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*SetPreference)
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	target := targetFolder(c.TenantFolder, ic)
	if !allowTarget(target, ic) {
		return nil
	}
	if err := h.Prefs.SetPreference(target, c.Key, c.Value); err != nil {
		return err
	}
	// Preference changes can alter the static prompt, so the cached
	// context for the tenant is stale.
	h.Cache.Invalidate(ctx, target)
	return nil
}

func (h *Handlers) registerTenant(ctx context.Context, cmd Command, ic *Context) error {
	c := cmd.(*RegisterTenant)
	if c.ChatID == "" || c.Folder == "" {
		return fmt.Errorf("chat_id and folder are required")
	}
	if ic.RegisterTenant == nil {
		return fmt.Errorf("tenant registration not available")
	}
	return ic.RegisterTenant(c.ChatID, &tenant.Config{
		Folder:  c.Folder,
		Name:    c.Name,
		Channel: c.Channel,
		Model:   c.Model,
	})
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
