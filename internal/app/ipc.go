package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/hivebot/hivebot/internal/dispatch"
)

// IPCServer accepts command requests from sandboxed agent processes. Each
// tenant gets its own Unix socket, mounted into only that tenant's sandbox,
// so the command source is established by the transport and never by a
// field the sandbox writes itself. One JSON object per line; responses are
// not written back — results reach the user through the chat platform.
type IPCServer struct {
	dir string
	app *App
	ctx context.Context

	mu        sync.Mutex
	listeners map[string]net.Listener
}

// NewIPCServer creates a server placing its sockets under dir.
func NewIPCServer(dir string, a *App) *IPCServer {
	return &IPCServer{
		dir:       dir,
		app:       a,
		listeners: make(map[string]net.Listener),
	}
}

// SocketPath returns the socket for a tenant folder.
func (s *IPCServer) SocketPath(tenantFolder string) string {
	return filepath.Join(s.dir, "ipc-"+filepath.Base(tenantFolder)+".sock")
}

// Start opens one socket per registered tenant. Tenants registered later
// get theirs via EnsureSocket.
func (s *IPCServer) Start(ctx context.Context) error {
	s.ctx = ctx
	for _, cfg := range s.app.Tenants.All() {
		if err := s.EnsureSocket(cfg.Folder); err != nil {
			return err
		}
	}
	slog.Info("IPC server listening", "dir", s.dir, "sockets", len(s.app.Tenants.All()))
	return nil
}

// EnsureSocket opens the tenant's socket if it is not already listening. A
// stale socket file from a previous run is removed first.
func (s *IPCServer) EnsureSocket(tenantFolder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[tenantFolder]; ok {
		return nil
	}

	path := s.SocketPath(tenantFolder)
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("ipc listen %s: %w", path, err)
	}
	s.listeners[tenantFolder] = ln

	go s.accept(ln, tenantFolder)
	return nil
}

func (s *IPCServer) accept(ln net.Listener, tenantFolder string) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				slog.Warn("IPC accept failed", "tenant", tenantFolder, "error", err)
			}
			return
		}
		go s.serve(conn, tenantFolder)
	}
}

// serve handles one sandbox connection. The source tenant is the socket's
// owner. A malformed line is logged and skipped; it never ends the
// connection or the server.
func (s *IPCServer) serve(conn net.Conn, tenantFolder string) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		cmd, err := dispatch.Decode(line)
		if err != nil {
			slog.Warn("IPC command rejected", "tenant", tenantFolder, "error", err)
			continue
		}
		s.app.DispatchCommand(s.ctx, cmd, tenantFolder)
	}
}

// Stop closes every listener and removes the socket files.
func (s *IPCServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for folder, ln := range s.listeners {
		ln.Close()
		_ = os.Remove(s.SocketPath(folder))
		delete(s.listeners, folder)
	}
}
