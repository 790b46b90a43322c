// Package bus provides the async message bus between channels and the
// tenant coordination core.
package bus

import (
	"context"
	"sync"
	"time"
)

// Well-known metadata keys and message type constants.
const (
	MetaKeyMessageType  = "message_type"
	MetaKeyConsolidated = "consolidated"
	MessageTypeInternal = "internal"
	MessageTypeExternal = "external"
)

// InboundEvent represents a message from a channel to the core.
type InboundEvent struct {
	Channel   string         `json:"channel"`
	SenderID  string         `json:"sender_id"`
	ChatID    string         `json:"chat_id"`
	MessageID string         `json:"message_id,omitempty"`
	Content   string         `json:"content"`
	HasMedia  bool           `json:"has_media,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// MessageType returns the message type from metadata, defaulting to external.
func (e *InboundEvent) MessageType() string {
	if e.Metadata != nil {
		if v, ok := e.Metadata[MetaKeyMessageType].(string); ok && v != "" {
			return v
		}
	}
	return MessageTypeExternal
}

// OutboundMessage represents a message from the core to a channel.
type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	Content   string `json:"content"`
	MediaPath string `json:"media_path,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// MessageBus decouples channels from the coordination core.
type MessageBus struct {
	inbound  chan *InboundEvent
	outbound chan *OutboundMessage
	subs     map[string][]func(*OutboundMessage)
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundEvent, 100),
		outbound: make(chan *OutboundMessage, 100),
		subs:     make(map[string][]func(*OutboundMessage)),
	}
}

// PublishInbound sends an event from a channel to the core.
func (b *MessageBus) PublishInbound(evt *InboundEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.inbound <- evt
}

// ConsumeInbound blocks until an event is available or context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundEvent, error) {
	select {
	case evt := <-b.inbound:
		return evt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound sends a message from the core to channels.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// Subscribe registers a callback for outbound messages to a specific channel.
func (b *MessageBus) Subscribe(channel string, callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[channel] = append(b.subs[channel], callback)
}

// DispatchOutbound runs the outbound message dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := b.subs[msg.Channel]
			b.mu.RUnlock()

			for _, cb := range callbacks {
				cb(msg)
			}
		}
	}
}

// InboundSize returns the number of pending inbound events.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
