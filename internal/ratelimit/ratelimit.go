// Package ratelimit gates outbound edit/update calls per chat so the
// platform API's spacing and burst limits are both respected.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults tuned to typical chat-platform throttling.
const (
	DefaultMinInterval   = 2 * time.Second
	DefaultMaxPerWindow  = 30
	DefaultWindow        = time.Minute
	DefaultSweepInterval = time.Minute
	DefaultInactivityTTL = 10 * time.Minute
)

// chatState tracks edit activity for a single chat.
type chatState struct {
	lastEdit    time.Time
	editCount   int
	windowStart time.Time
}

// Config holds limiter settings. Zero values fall back to defaults.
type Config struct {
	MinInterval   time.Duration `json:"minInterval"`
	MaxPerWindow  int           `json:"maxPerWindow"`
	Window        time.Duration `json:"window"`
	SweepInterval time.Duration `json:"sweepInterval"`
	InactivityTTL time.Duration `json:"inactivityTTL"`
}

// Limiter enforces two independent ceilings per chat: a fixed minimum
// spacing between edits and a rolling per-window edit count. Entries for
// inactive chats are swept periodically to bound memory.
type Limiter struct {
	cfg   Config
	mu    sync.Mutex
	chats map[string]*chatState
	done  chan struct{}
	once  sync.Once
	now   func() time.Time // test hook
}

// New creates a Limiter and starts its sweep loop.
func New(cfg Config) *Limiter {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = DefaultMaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.InactivityTTL <= 0 {
		cfg.InactivityTTL = DefaultInactivityTTL
	}

	l := &Limiter{
		cfg:   cfg,
		chats: make(map[string]*chatState),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go l.sweepLoop()
	return l
}

// CanEdit reports whether an edit to the chat may proceed now. It does not
// consume a slot; callers that go on to edit must call RecordEdit.
func (l *Limiter) CanEdit(chatID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.chats[chatID]
	if !ok {
		return true
	}
	now := l.now()
	if now.Sub(st.lastEdit) < l.cfg.MinInterval {
		return false
	}
	if now.Sub(st.windowStart) <= l.cfg.Window && st.editCount >= l.cfg.MaxPerWindow {
		return false
	}
	return true
}

// RecordEdit registers an accepted edit. Must be called after every edit
// actually sent, and never for edits skipped after a CanEdit refusal.
func (l *Limiter) RecordEdit(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.chats[chatID]
	if !ok {
		st = &chatState{windowStart: now}
		l.chats[chatID] = st
	}
	if now.Sub(st.windowStart) > l.cfg.Window {
		st.windowStart = now
		st.editCount = 0
	}
	st.lastEdit = now
	st.editCount++
}

// ActiveChats returns the number of tracked chats.
func (l *Limiter) ActiveChats() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chats)
}

// Destroy stops the sweep loop and clears all state.
func (l *Limiter) Destroy() {
	l.once.Do(func() { close(l.done) })
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats = make(map[string]*chatState)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep drops chats with no edits for longer than the inactivity TTL.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.InactivityTTL)
	for id, st := range l.chats {
		if st.lastEdit.Before(cutoff) {
			delete(l.chats, id)
		}
	}
}
