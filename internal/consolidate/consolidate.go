// Package consolidate merges rapid-fire inbound messages per chat into a
// single unit of agent work after a quiet period.
package consolidate

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a buffer is flushed.
const DefaultDebounce = 5 * time.Second

// Message is a single buffered inbound message.
type Message struct {
	Text      string
	MessageID string
	Timestamp time.Time
}

// Consolidated is the merged result of one buffer flush. Messages keep
// arrival order; CombinedText is their newline join.
type Consolidated struct {
	ChatID       string
	Messages     []Message
	CombinedText string
}

// Options control how a single message is buffered.
type Options struct {
	MessageID string
	HasMedia  bool          // media messages bypass buffering
	Debounce  time.Duration // zero means the consolidator default
}

type chatBuffer struct {
	messages []Message
	timer    *time.Timer
}

// Consolidator owns one debounce buffer per chat. Buffers for different
// chats never block each other; operations on the same chat are serialized.
type Consolidator struct {
	mu        sync.Mutex
	buffers   map[string]*chatBuffer
	streaming map[string]bool
	debounce  time.Duration
	emit      func(Consolidated)
	destroyed bool
}

// New creates a Consolidator. emit is called exactly once per flush, from
// its own goroutine when the flush is timer-driven.
func New(debounce time.Duration, emit func(Consolidated)) *Consolidator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Consolidator{
		buffers:   make(map[string]*chatBuffer),
		streaming: make(map[string]bool),
		debounce:  debounce,
		emit:      emit,
	}
}

// Add buffers a message for the chat and returns true, or returns false when
// the message must be processed immediately (media present, chat streaming,
// or the consolidator already destroyed).
func (c *Consolidator) Add(chatID, text string, opts Options) bool {
	c.mu.Lock()

	if c.destroyed || opts.HasMedia || c.streaming[chatID] {
		c.mu.Unlock()
		return false
	}

	buf, ok := c.buffers[chatID]
	if !ok {
		buf = &chatBuffer{}
		c.buffers[chatID] = buf
	}
	buf.messages = append(buf.messages, Message{
		Text:      text,
		MessageID: opts.MessageID,
		Timestamp: time.Now(),
	})

	// Replace, never stack: each new message restarts the quiet period.
	if buf.timer != nil {
		buf.timer.Stop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = c.debounce
	}
	buf.timer = time.AfterFunc(debounce, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Consolidator flush panicked", "chat", chatID, "panic", r)
			}
		}()
		c.Flush(chatID)
	})

	c.mu.Unlock()
	return true
}

// Flush emits the chat's buffered messages now. No-op when nothing is
// pending. Safe to call concurrently with Add for the same chat.
func (c *Consolidator) Flush(chatID string) {
	c.mu.Lock()
	buf, ok := c.buffers[chatID]
	if !ok || len(buf.messages) == 0 {
		c.mu.Unlock()
		return
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	delete(c.buffers, chatID)
	messages := buf.messages
	c.mu.Unlock()

	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Text
	}
	c.emit(Consolidated{
		ChatID:       chatID,
		Messages:     messages,
		CombinedText: strings.Join(texts, "\n"),
	})
}

// SetStreaming toggles the streaming flag for a chat. While streaming,
// Add returns false so messages pass straight through and can interrupt an
// in-flight response. Enabling streaming flushes any pending buffer.
func (c *Consolidator) SetStreaming(chatID string, streaming bool) {
	c.mu.Lock()
	if streaming {
		c.streaming[chatID] = true
	} else {
		delete(c.streaming, chatID)
	}
	c.mu.Unlock()

	if streaming {
		c.Flush(chatID)
	}
}

// HasPending reports whether the chat has buffered messages.
func (c *Consolidator) HasPending(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.buffers[chatID]
	return ok && len(buf.messages) > 0
}

// PendingCount returns the number of buffered messages for the chat.
func (c *Consolidator) PendingCount(chatID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok := c.buffers[chatID]; ok {
		return len(buf.messages)
	}
	return 0
}

// Destroy cancels all outstanding timers and clears state. Buffered
// messages are dropped; no emit fires after Destroy returns.
func (c *Consolidator) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.destroyed = true
	for _, buf := range c.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
	}
	c.buffers = make(map[string]*chatBuffer)
	c.streaming = make(map[string]bool)
}
