// Package contentcache keeps one provider-side context cache per tenant so
// static prompt content is not re-sent on every inference call.
package contentcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Defaults for cache sizing and lifetime.
const (
	DefaultMinChars = 4096
	DefaultTTL      = time.Hour
)

// ErrRejected marks a cache creation the provider refused for an expected
// reason (content below model minimum, model without cache support). Callers
// fall back to uncached inference either way; only logging differs.
var ErrRejected = errors.New("contentcache: creation rejected by provider")

// Backend is the narrow surface required from the inference provider.
type Backend interface {
	// CreateCache stores content provider-side and returns a resource handle.
	CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error)
	// DeleteCache removes a provider-side resource. Best-effort.
	DeleteCache(ctx context.Context, handle string) error
}

// Blocks is the static prompt content covered by one cache entry. Any change
// in any block changes the content hash.
type Blocks struct {
	SystemPrompt  string
	Knowledge     string
	MemoryContext string
}

// Concat returns the delimiter-wrapped concatenation the hash is taken over.
func (b Blocks) Concat() string {
	return "<<system>>\n" + b.SystemPrompt + "\n<</system>>\n" +
		"<<knowledge>>\n" + b.Knowledge + "\n<</knowledge>>\n" +
		"<<memory>>\n" + b.MemoryContext + "\n<</memory>>"
}

// Entry is one tenant's cache slot.
type Entry struct {
	Handle      string
	ContentHash string
	Model       string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Stats reports cache registry counts for observability.
type Stats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Config holds cache settings. Zero values fall back to defaults.
type Config struct {
	MinChars int           `json:"minChars" envconfig:"CACHE_MIN_CHARS"`
	TTL      time.Duration `json:"ttl" envconfig:"CACHE_TTL"`
}

// Cache maps tenant folder to its single cache slot.
type Cache struct {
	cfg     Config
	backend Backend
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time // test hook
}

// New creates a Cache backed by the given provider.
func New(cfg Config, backend Backend) *Cache {
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Cache{
		cfg:     cfg,
		backend: backend,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// GetOrCreate returns the tenant's cache entry for the given model and
// content, creating or replacing the provider resource as needed. Returns
// nil when the content is below the minimum size or the provider refused;
// the caller then runs uncached.
func (c *Cache) GetOrCreate(ctx context.Context, tenantFolder, model string, blocks Blocks) *Entry {
	content := blocks.Concat()
	if len(content) < c.cfg.MinChars {
		return nil
	}
	hash := hashContent(content)

	c.mu.Lock()
	if e, ok := c.entries[tenantFolder]; ok {
		if e.ContentHash == hash && e.Model == model && e.ExpiresAt.After(c.now()) {
			c.mu.Unlock()
			return e
		}
	}
	c.mu.Unlock()

	handle, err := c.backend.CreateCache(ctx, model, content, c.cfg.TTL)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			slog.Info("Content cache creation rejected, running uncached",
				"tenant", tenantFolder, "model", model, "reason", err)
		} else {
			slog.Warn("Content cache creation failed, running uncached",
				"tenant", tenantFolder, "model", model, "error", err)
		}
		return nil
	}

	entry := &Entry{
		Handle:      handle,
		ContentHash: hash,
		Model:       model,
		ExpiresAt:   c.now().Add(c.cfg.TTL),
		CreatedAt:   c.now(),
	}

	c.mu.Lock()
	prev := c.entries[tenantFolder]
	c.entries[tenantFolder] = entry
	c.mu.Unlock()

	// The replaced resource is deleted provider-side, best-effort.
	if prev != nil && prev.Handle != handle {
		if err := c.backend.DeleteCache(ctx, prev.Handle); err != nil {
			slog.Debug("Stale content cache delete failed", "tenant", tenantFolder, "error", err)
		}
	}

	slog.Info("Content cache created", "tenant", tenantFolder, "model", model,
		"chars", len(content), "handle", handle)
	return entry
}

// Invalidate removes the tenant's local entry immediately and attempts a
// best-effort provider-side delete.
func (c *Cache) Invalidate(ctx context.Context, tenantFolder string) {
	c.mu.Lock()
	entry := c.entries[tenantFolder]
	delete(c.entries, tenantFolder)
	c.mu.Unlock()

	if entry == nil {
		return
	}
	if err := c.backend.DeleteCache(ctx, entry.Handle); err != nil {
		slog.Debug("Content cache delete failed", "tenant", tenantFolder, "error", err)
	}
	slog.Info("Content cache invalidated", "tenant", tenantFolder)
}

// GetStats returns total and unexpired entry counts.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Total: len(c.entries)}
	now := c.now()
	for _, e := range c.entries {
		if e.ExpiresAt.After(now) {
			s.Active++
		}
	}
	return s
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
