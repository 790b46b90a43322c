package ratelimit

import (
	"testing"
	"time"
)

// newTestLimiter returns a limiter with a controllable clock.
func newTestLimiter(cfg Config) (*Limiter, *time.Time) {
	l := New(cfg)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestFirstEditAllowed(t *testing.T) {
	l, _ := newTestLimiter(Config{})
	defer l.Destroy()

	if !l.CanEdit("chat-1") {
		t.Error("a chat with no history must be allowed")
	}
}

func TestMinIntervalFloor(t *testing.T) {
	l, now := newTestLimiter(Config{MinInterval: 2 * time.Second})
	defer l.Destroy()

	l.RecordEdit("chat-1")

	*now = now.Add(1500 * time.Millisecond)
	if l.CanEdit("chat-1") {
		t.Error("edit 1.5s after the last one must be refused")
	}

	*now = now.Add(600 * time.Millisecond)
	if !l.CanEdit("chat-1") {
		t.Error("edit after the 2s floor must be allowed")
	}
}

func TestWindowCeiling(t *testing.T) {
	l, now := newTestLimiter(Config{
		MinInterval:  2 * time.Second,
		MaxPerWindow: 30,
		Window:       time.Minute,
	})
	defer l.Destroy()

	// 30 accepted edits spaced at the interval floor, inside one window.
	for i := 0; i < 30; i++ {
		if !l.CanEdit("chat-1") {
			t.Fatalf("edit %d should be allowed", i+1)
		}
		l.RecordEdit("chat-1")
		*now = now.Add(2 * time.Second)
	}

	// Interval floor is satisfied but the window count is exhausted.
	if l.CanEdit("chat-1") {
		t.Error("31st edit within the window must be refused")
	}

	// Once the window rolls over, edits are allowed again.
	*now = now.Add(time.Minute)
	if !l.CanEdit("chat-1") {
		t.Error("edit in a fresh window must be allowed")
	}
}

func TestWindowCountResets(t *testing.T) {
	l, now := newTestLimiter(Config{MaxPerWindow: 2, Window: 10 * time.Second})
	defer l.Destroy()

	l.RecordEdit("chat-1")
	l.RecordEdit("chat-1")

	*now = now.Add(11 * time.Second)
	l.RecordEdit("chat-1")

	*now = now.Add(3 * time.Second)
	if !l.CanEdit("chat-1") {
		t.Error("count must reset when the window start expires")
	}
}

func TestChatsIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{MinInterval: 2 * time.Second})
	defer l.Destroy()

	l.RecordEdit("chat-1")
	if l.CanEdit("chat-1") {
		t.Error("chat-1 should be inside the interval floor")
	}
	if !l.CanEdit("chat-2") {
		t.Error("chat-2 must not be affected by chat-1's edits")
	}
}

func TestSweepEvictsInactive(t *testing.T) {
	l, now := newTestLimiter(Config{InactivityTTL: 10 * time.Minute})
	defer l.Destroy()

	l.RecordEdit("idle-chat")
	l.RecordEdit("busy-chat")

	*now = now.Add(11 * time.Minute)
	l.RecordEdit("busy-chat")

	l.sweep()

	if got := l.ActiveChats(); got != 1 {
		t.Errorf("after sweep, active chats = %d, want 1", got)
	}
}

func TestDestroyClearsState(t *testing.T) {
	l, _ := newTestLimiter(Config{})
	l.RecordEdit("chat-1")
	l.Destroy()

	if got := l.ActiveChats(); got != 0 {
		t.Errorf("after Destroy, active chats = %d, want 0", got)
	}
	// Destroy is idempotent.
	l.Destroy()
}
