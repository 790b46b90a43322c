// Package tenant holds the registry of chat → tenant configuration. The
// registry is an explicitly constructed state object with load/save, not an
// ambient global.
package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Config describes one tenant: an isolated chat/group with its own
// workspace folder and agent session.
type Config struct {
	Folder  string `json:"folder"`
	Name    string `json:"name"`
	ChatID  string `json:"chatId"`
	Channel string `json:"channel"`
	Model   string `json:"model,omitempty"`
	Main    bool   `json:"main,omitempty"`
}

// Registry maps chat IDs to tenant configs.
type Registry struct {
	mu     sync.RWMutex
	byChat map[string]*Config
	path   string
}

// Load reads the registry file at path, or returns an empty registry when
// the file does not exist yet.
func Load(path string) (*Registry, error) {
	r := &Registry{
		byChat: make(map[string]*Config),
		path:   path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tenant registry: %w", err)
	}
	var configs []*Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse tenant registry: %w", err)
	}
	for _, cfg := range configs {
		r.byChat[cfg.ChatID] = cfg
	}
	return r, nil
}

// Save writes the registry back to its file.
func (r *Registry) Save() error {
	r.mu.RLock()
	configs := make([]*Config, 0, len(r.byChat))
	for _, cfg := range r.byChat {
		configs = append(configs, cfg)
	}
	r.mu.RUnlock()

	sort.Slice(configs, func(i, j int) bool { return configs[i].ChatID < configs[j].ChatID })

	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tenant registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write tenant registry: %w", err)
	}
	return nil
}

// Register adds a tenant for the chat and persists the registry. Registering
// an already-known chat is an error.
func (r *Registry) Register(chatID string, cfg *Config) error {
	r.mu.Lock()
	if _, exists := r.byChat[chatID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("tenant for chat %s already registered", chatID)
	}
	cfg.ChatID = chatID
	r.byChat[chatID] = cfg
	r.mu.Unlock()

	return r.Save()
}

// Get returns the tenant config for a chat.
func (r *Registry) Get(chatID string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byChat[chatID]
	return cfg, ok
}

// ByFolder returns the tenant config with the given workspace folder.
func (r *Registry) ByFolder(folder string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.byChat {
		if cfg.Folder == folder {
			return cfg, true
		}
	}
	return nil, false
}

// Main returns the main tenant, if one is registered.
func (r *Registry) Main() (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.byChat {
		if cfg.Main {
			return cfg, true
		}
	}
	return nil, false
}

// All returns a snapshot of every registered tenant.
func (r *Registry) All() []*Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Config, 0, len(r.byChat))
	for _, cfg := range r.byChat {
		out = append(out, cfg)
	}
	return out
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChat)
}
