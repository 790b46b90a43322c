package contentcache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeBackend records create/delete calls.
type fakeBackend struct {
	creates int
	deletes []string
	fail    error
}

func (f *fakeBackend) CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.creates++
	return fmt.Sprintf("caches/%d", f.creates), nil
}

func (f *fakeBackend) DeleteCache(ctx context.Context, handle string) error {
	f.deletes = append(f.deletes, handle)
	return nil
}

func bigBlocks() Blocks {
	return Blocks{
		SystemPrompt:  strings.Repeat("s", 2000),
		Knowledge:     strings.Repeat("k", 2000),
		MemoryContext: strings.Repeat("m", 2000),
	}
}

func TestReuseWithoutSecondCreate(t *testing.T) {
	backend := &fakeBackend{}
	c := New(Config{MinChars: 100}, backend)
	ctx := context.Background()

	first := c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())
	if first == nil {
		t.Fatal("expected a cache entry")
	}
	second := c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())
	if second == nil || second.Handle != first.Handle {
		t.Errorf("identical content must reuse the handle: %+v vs %+v", first, second)
	}
	if backend.creates != 1 {
		t.Errorf("backend creates = %d, want 1", backend.creates)
	}
}

func TestAnyBlockChangeChangesHandle(t *testing.T) {
	backend := &fakeBackend{}
	c := New(Config{MinChars: 100}, backend)
	ctx := context.Background()

	base := c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())

	variants := []Blocks{
		{SystemPrompt: strings.Repeat("s", 2001), Knowledge: strings.Repeat("k", 2000), MemoryContext: strings.Repeat("m", 2000)},
		{SystemPrompt: strings.Repeat("s", 2000), Knowledge: strings.Repeat("k", 2001), MemoryContext: strings.Repeat("m", 2000)},
		{SystemPrompt: strings.Repeat("s", 2000), Knowledge: strings.Repeat("k", 2000), MemoryContext: strings.Repeat("m", 2001)},
	}
	prev := base.Handle
	for i, blocks := range variants {
		e := c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", blocks)
		if e == nil || e.Handle == prev {
			t.Errorf("variant %d: changed block must produce a new handle", i)
		}
		prev = e.Handle
	}
}

func TestModelChangeForcesRecreate(t *testing.T) {
	backend := &fakeBackend{}
	c := New(Config{MinChars: 100}, backend)
	ctx := context.Background()

	c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())
	c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-pro", bigBlocks())

	if backend.creates != 2 {
		t.Errorf("backend creates = %d, want 2", backend.creates)
	}
}

func TestBelowThresholdSkipsBackend(t *testing.T) {
	backend := &fakeBackend{}
	c := New(Config{MinChars: 100000}, backend)

	e := c.GetOrCreate(context.Background(), "tenant-a", "gemini-2.5-flash", bigBlocks())
	if e != nil {
		t.Error("short content must return nil")
	}
	if backend.creates != 0 {
		t.Errorf("backend must not be called, creates = %d", backend.creates)
	}
}

func TestExpiredEntryIsReplaced(t *testing.T) {
	backend := &fakeBackend{}
	c := New(Config{MinChars: 100, TTL: time.Hour}, backend)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	first := c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())
	now = base.Add(2 * time.Hour)
	second := c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())

	if second == nil || second.Handle == first.Handle {
		t.Error("expired entry must be recreated")
	}
}

func TestCreateFailureFallsBack(t *testing.T) {
	backend := &fakeBackend{fail: fmt.Errorf("model limit: %w", ErrRejected)}
	c := New(Config{MinChars: 100}, backend)

	if e := c.GetOrCreate(context.Background(), "tenant-a", "gemini-2.5-flash", bigBlocks()); e != nil {
		t.Error("rejected creation must return nil")
	}
	if got := c.GetStats(); got.Total != 0 {
		t.Errorf("no entry may be stored on failure, total = %d", got.Total)
	}
}

func TestInvalidateDeletesUpstream(t *testing.T) {
	backend := &fakeBackend{}
	c := New(Config{MinChars: 100}, backend)
	ctx := context.Background()

	e := c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())
	c.Invalidate(ctx, "tenant-a")

	if got := c.GetStats(); got.Total != 0 {
		t.Errorf("local entry must be gone, total = %d", got.Total)
	}
	if len(backend.deletes) != 1 || backend.deletes[0] != e.Handle {
		t.Errorf("upstream delete missing, got %v", backend.deletes)
	}

	// Invalidating an absent tenant is a no-op.
	c.Invalidate(ctx, "tenant-b")
	if len(backend.deletes) != 1 {
		t.Error("no extra delete for unknown tenant")
	}
}

func TestStatsCountsActive(t *testing.T) {
	backend := &fakeBackend{}
	c := New(Config{MinChars: 100, TTL: time.Hour}, backend)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	c.GetOrCreate(ctx, "tenant-a", "gemini-2.5-flash", bigBlocks())
	c.GetOrCreate(ctx, "tenant-b", "gemini-2.5-flash", bigBlocks())

	now = base.Add(2 * time.Hour)
	got := c.GetStats()
	if got.Total != 2 || got.Active != 0 {
		t.Errorf("stats = %+v, want total 2 active 0", got)
	}
}
