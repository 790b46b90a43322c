// Package app wires the coordination components into one explicitly
// constructed application object. There is no ambient global state: every
// component is owned here and torn down here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hivebot/hivebot/internal/bus"
	"github.com/hivebot/hivebot/internal/channels"
	"github.com/hivebot/hivebot/internal/config"
	"github.com/hivebot/hivebot/internal/consolidate"
	"github.com/hivebot/hivebot/internal/contentcache"
	"github.com/hivebot/hivebot/internal/dispatch"
	"github.com/hivebot/hivebot/internal/ratelimit"
	"github.com/hivebot/hivebot/internal/sandbox"
	"github.com/hivebot/hivebot/internal/schedule"
	"github.com/hivebot/hivebot/internal/store"
	"github.com/hivebot/hivebot/internal/tenant"
)

// App owns every component of the coordination layer.
type App struct {
	cfg          *config.Config
	Bus          *bus.MessageBus
	Store        *store.Store
	Tenants      *tenant.Registry
	Limiter      *ratelimit.Limiter
	Cache        *contentcache.Cache
	Consolidator *consolidate.Consolidator
	Scheduler    *schedule.Scheduler
	Dispatcher   *dispatch.Dispatcher
	Runner       sandbox.Runner
	channels     []channels.Channel
	ipc          *IPCServer
}

// Options overrides collaborators for tests and alternative deployments.
type Options struct {
	Runner       sandbox.Runner
	CacheBackend contentcache.Backend
	Images       dispatch.ImageGenerator
}

// New constructs the application from config. Nothing starts running until
// Run.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	st, err := store.New(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}
	tenants, err := tenant.Load(cfg.Paths.Tenants)
	if err != nil {
		st.Close()
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = sandbox.NewExecRunner(cfg.Sandbox.Binary, cfg.Sandbox.Timeout)
	}

	backend := opts.CacheBackend
	if backend == nil && cfg.Providers.Gemini.APIKey != "" {
		backend, err = contentcache.NewGeminiBackend(ctx, cfg.Providers.Gemini.APIKey)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	sched, err := schedule.New(cfg.Scheduler, st, runner)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		Bus:       bus.NewMessageBus(),
		Store:     st,
		Tenants:   tenants,
		Limiter:   ratelimit.New(cfg.RateLimit),
		Scheduler: sched,
		Runner:    runner,
	}
	if backend != nil {
		a.Cache = contentcache.New(cfg.Cache, backend)
	} else {
		a.Cache = contentcache.New(cfg.Cache, noopBackend{})
		slog.Info("Content caching disabled: no provider configured")
	}
	a.Consolidator = consolidate.New(cfg.Consolidate.Debounce, a.onConsolidated)

	a.Dispatcher = dispatch.NewDispatcher()
	handlers := &dispatch.Handlers{
		Scheduler: a.Scheduler,
		Cache:     a.Cache,
		Limiter:   a.Limiter,
		Prefs:     a.Store,
		Images:    opts.Images,
	}
	handlers.RegisterAll(a.Dispatcher)

	tg := channels.NewTelegramChannel(cfg.Channels.Telegram, a.Bus)
	a.channels = append(a.channels, tg)

	if _, ok := tenants.Main(); !ok {
		slog.Warn("No main tenant registered; privileged commands are unavailable")
	}

	a.ipc = NewIPCServer(filepath.Dir(cfg.Paths.Database), a)
	return a, nil
}

// Run starts channels, the scheduler, the IPC server, and the inbound loop.
// Blocks until the context is cancelled, then tears everything down.
func (a *App) Run(ctx context.Context) error {
	for _, ch := range a.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", ch.Name(), err)
		}
	}
	go a.Bus.DispatchOutbound(ctx)
	go a.Scheduler.Run(ctx)
	if err := a.ipc.Start(ctx); err != nil {
		return err
	}

	slog.Info("hivebot running", "tenants", a.Tenants.Len())

	for {
		evt, err := a.Bus.ConsumeInbound(ctx)
		if err != nil {
			a.shutdown()
			return err
		}
		a.handleInbound(ctx, evt)
	}
}

// handleInbound routes one chat event. Internal events (already
// consolidated) start a session directly; external ones are buffered behind
// the debounce unless media or streaming forces immediate processing.
func (a *App) handleInbound(ctx context.Context, evt *bus.InboundEvent) {
	cfg, ok := a.Tenants.Get(evt.ChatID)
	if !ok {
		slog.Debug("Inbound event for unregistered chat ignored", "chat", evt.ChatID)
		return
	}

	if evt.MessageType() == bus.MessageTypeInternal {
		go a.startSession(ctx, cfg, evt.Content)
		return
	}

	buffered := a.Consolidator.Add(evt.ChatID, evt.Content, consolidate.Options{
		MessageID: evt.MessageID,
		HasMedia:  evt.HasMedia,
	})
	if buffered {
		return
	}
	go a.startSession(ctx, cfg, evt.Content)
}

// onConsolidated fires when a chat's debounce window closes. The merged
// text re-enters the bus as an internal event so it flows through the same
// inbound loop as everything else, without being buffered again.
func (a *App) onConsolidated(c consolidate.Consolidated) {
	cfg, ok := a.Tenants.Get(c.ChatID)
	if !ok {
		return
	}
	a.Bus.PublishInbound(&bus.InboundEvent{
		Channel: cfg.Channel,
		ChatID:  c.ChatID,
		Content: c.CombinedText,
		Metadata: map[string]any{
			bus.MetaKeyMessageType:  bus.MessageTypeInternal,
			bus.MetaKeyConsolidated: true,
		},
	})
}

// startSession warms the tenant's content cache and runs one sandbox
// session, delivering the result back to the tenant's chat. Each session is
// independently scheduled; a failure affects only its own chat.
func (a *App) startSession(ctx context.Context, cfg *tenant.Config, prompt string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Session panicked", "tenant", cfg.Folder, "panic", r)
		}
	}()

	model := cfg.Model
	if model == "" {
		model = a.cfg.Model.Name
	}
	a.Cache.GetOrCreate(ctx, cfg.Folder, model, a.loadStaticBlocks(cfg.Folder))

	a.Consolidator.SetStreaming(cfg.ChatID, true)
	defer a.Consolidator.SetStreaming(cfg.ChatID, false)

	res, err := a.Runner.StartSession(ctx, cfg.Folder, prompt, store.ContextGroup)
	if err != nil {
		slog.Warn("Session failed", "tenant", cfg.Folder, "error", err)
		a.Bus.PublishOutbound(&bus.OutboundMessage{
			Channel: cfg.Channel,
			ChatID:  cfg.ChatID,
			Content: "Something went wrong handling that message.",
		})
		return
	}
	if res.Output != "" {
		a.Bus.PublishOutbound(&bus.OutboundMessage{
			Channel: cfg.Channel,
			ChatID:  cfg.ChatID,
			Content: res.Output,
		})
	}
}

// loadStaticBlocks reads the static prompt context from the tenant's
// workspace. Missing files mean empty blocks. Stored preferences are folded
// into the memory block, so a preference change changes the content hash.
func (a *App) loadStaticBlocks(folder string) contentcache.Blocks {
	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(a.cfg.Paths.Workspace, folder, name))
		if err != nil {
			return ""
		}
		return string(data)
	}

	memory := read("MEMORY.md")
	if prefs, err := a.Store.ListPreferences(folder); err != nil {
		slog.Warn("Preference load failed", "tenant", folder, "error", err)
	} else if len(prefs) > 0 {
		keys := make([]string, 0, len(prefs))
		for k := range prefs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(memory)
		b.WriteString("\n\nPreferences:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, prefs[k])
		}
		memory = b.String()
	}

	return contentcache.Blocks{
		SystemPrompt:  read("SYSTEM.md"),
		Knowledge:     read("KNOWLEDGE.md"),
		MemoryContext: memory,
	}
}

// DispatchCommand builds the per-command context and routes one decoded
// agent command. sourceFolder identifies the emitting sandbox's tenant.
func (a *App) DispatchCommand(ctx context.Context, cmd dispatch.Command, sourceFolder string) {
	src, _ := a.Tenants.ByFolder(sourceFolder)
	isMain := src != nil && src.Main

	ic := &dispatch.Context{
		SourceTenant: sourceFolder,
		IsMain:       isMain,
		Tenants:      a.Tenants,
		Send:         a.sendText,
		SendMedia:    a.sendMedia,
	}
	if isMain {
		ic.RegisterTenant = a.registerTenant
	}
	a.Dispatcher.Dispatch(ctx, cmd, ic)
}

// registerTenant adds a tenant and opens its command socket so its first
// sandbox session can reach the dispatcher.
func (a *App) registerTenant(chatID string, cfg *tenant.Config) error {
	if err := a.Tenants.Register(chatID, cfg); err != nil {
		return err
	}
	return a.ipc.EnsureSocket(cfg.Folder)
}

func (a *App) sendText(ctx context.Context, chatID, text string) error {
	a.Bus.PublishOutbound(&bus.OutboundMessage{
		Channel: a.chatChannel(chatID),
		ChatID:  chatID,
		Content: text,
	})
	return nil
}

func (a *App) sendMedia(ctx context.Context, chatID, filePath, caption string) error {
	a.Bus.PublishOutbound(&bus.OutboundMessage{
		Channel:   a.chatChannel(chatID),
		ChatID:    chatID,
		MediaPath: filePath,
		Caption:   caption,
	})
	return nil
}

func (a *App) chatChannel(chatID string) string {
	if cfg, ok := a.Tenants.Get(chatID); ok && cfg.Channel != "" {
		return cfg.Channel
	}
	return "telegram"
}

// shutdown tears down components in dependency order. Timers first so no
// callback fires into a closed store.
func (a *App) shutdown() {
	a.Consolidator.Destroy()
	a.Limiter.Destroy()
	a.ipc.Stop()
	for _, ch := range a.channels {
		if err := ch.Stop(); err != nil {
			slog.Warn("Channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
	if err := a.Store.Close(); err != nil {
		slog.Warn("Store close failed", "error", err)
	}
	slog.Info("hivebot stopped",
		"droppedInbound", a.Bus.InboundSize(),
		"droppedOutbound", a.Bus.OutboundSize())
}

// noopBackend stands in when no cache provider is configured; every create
// is an expected rejection so callers run uncached.
type noopBackend struct{}

func (noopBackend) CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error) {
	return "", contentcache.ErrRejected
}

func (noopBackend) DeleteCache(ctx context.Context, handle string) error { return nil }
