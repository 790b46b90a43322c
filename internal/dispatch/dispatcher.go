package dispatch

import (
	"context"
	"log/slog"
)

// HandlerFunc executes one command kind. Errors are logged by the
// dispatcher and never surfaced to the caller.
type HandlerFunc func(ctx context.Context, cmd Command, ic *Context) error

type registration struct {
	perm    Permission
	handler HandlerFunc
}

// Dispatcher maps command kinds to permission-checked handlers. New
// privileged actions are added by registering a handler, without touching
// the dispatch path.
type Dispatcher struct {
	handlers map[Kind]registration
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind]registration)}
}

// Register binds a handler and its required permission to a command kind.
// Registration happens at startup, before Dispatch is called.
func (d *Dispatcher) Register(kind Kind, perm Permission, handler HandlerFunc) {
	d.handlers[kind] = registration{perm: perm, handler: handler}
}

// Dispatch routes one command. Unknown kinds, permission refusals, handler
// errors, and handler panics are all logged and swallowed: a failed command
// must never take down the dispatch loop.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, ic *Context) {
	reg, ok := d.handlers[cmd.Kind()]
	if !ok {
		slog.Warn("Dispatch: no handler for command", "kind", cmd.Kind(), "source", ic.SourceTenant)
		return
	}

	if reg.perm == PermMain && !ic.IsMain {
		slog.Warn("Dispatch: command refused, main tenant required",
			"kind", cmd.Kind(), "source", ic.SourceTenant)
		return
	}
	// PermOwnGroup is enforced inside the handler: the dispatcher cannot
	// know which tenant a heterogeneous command targets.

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatch: handler panicked", "kind", cmd.Kind(),
				"source", ic.SourceTenant, "panic", r)
		}
	}()

	if err := reg.handler(ctx, cmd, ic); err != nil {
		slog.Warn("Dispatch: command failed", "kind", cmd.Kind(),
			"source", ic.SourceTenant, "error", err)
	}
}
