// Package channels contains the chat-platform adapters. The platform SDKs
// are external collaborators; adapters only translate between them and the
// message bus.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hivebot/hivebot/internal/bus"
)

const telegramMaxMsgLen = 4000

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token     string   `json:"token" envconfig:"TELEGRAM_TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// TelegramChannel bridges Telegram chats onto the message bus.
type TelegramChannel struct {
	BaseChannel
	cfg       TelegramConfig
	bot       *tgbotapi.BotAPI
	allowFrom []int64
	cancel    context.CancelFunc
}

// NewTelegramChannel creates a Telegram channel.
func NewTelegramChannel(cfg TelegramConfig, messageBus *bus.MessageBus) *TelegramChannel {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return &TelegramChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		cfg:         cfg,
		allowFrom:   allowed,
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

// Start connects to Telegram, subscribes for outbound messages, and begins
// polling for updates.
func (c *TelegramChannel) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(c.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	c.bot = bot
	slog.Info("Telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			slog.Error("Telegram send failed", "chat", msg.ChatID, "error", err)
		}
	})

	pollCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	go c.poll(pollCtx, updates)
	return nil
}

func (c *TelegramChannel) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			if !c.authorized(msg.From) {
				slog.Debug("Telegram message dropped: sender not allowed", "from", msg.From.ID)
				continue
			}
			c.Bus.PublishInbound(&bus.InboundEvent{
				Channel:   c.Name(),
				SenderID:  strconv.FormatInt(msg.From.ID, 10),
				ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
				MessageID: strconv.Itoa(msg.MessageID),
				Content:   msg.Text,
				HasMedia:  len(msg.Photo) > 0 || msg.Voice != nil || msg.Document != nil,
				Timestamp: msg.Time(),
			})
		}
	}
}

// Stop stops the update poller.
func (c *TelegramChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}
	return nil
}

// Send delivers an outbound message: media with caption when MediaPath is
// set, plain text otherwise. Long text is split at the platform limit.
func (c *TelegramChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q", msg.ChatID)
	}

	if msg.MediaPath != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(msg.MediaPath))
		photo.Caption = msg.Caption
		if _, err := c.bot.Send(photo); err != nil {
			return fmt.Errorf("telegram send media: %w", err)
		}
		return nil
	}

	for _, chunk := range splitMessage(msg.Content, telegramMaxMsgLen) {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (c *TelegramChannel) authorized(from *tgbotapi.User) bool {
	if from == nil {
		return false
	}
	if len(c.allowFrom) == 0 {
		return true
	}
	for _, id := range c.allowFrom {
		if id == from.ID {
			return true
		}
	}
	return false
}

// splitMessage cuts text into chunks no longer than max, preferring line
// boundaries.
func splitMessage(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var chunks []string
	for len(text) > max {
		cut := strings.LastIndex(text[:max], "\n")
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
