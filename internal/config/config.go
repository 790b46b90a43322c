// Package config provides configuration types and loading for hivebot.
package config

import (
	"time"

	"github.com/hivebot/hivebot/internal/channels"
	"github.com/hivebot/hivebot/internal/contentcache"
	"github.com/hivebot/hivebot/internal/ratelimit"
	"github.com/hivebot/hivebot/internal/schedule"
)

// Config is the root configuration struct.
type Config struct {
	Paths       PathsConfig         `json:"paths"`
	Model       ModelConfig         `json:"model"`
	Channels    ChannelsConfig      `json:"channels"`
	Providers   ProvidersConfig     `json:"providers"`
	Consolidate ConsolidateConfig   `json:"consolidate"`
	RateLimit   ratelimit.Config    `json:"rateLimit"`
	Cache       contentcache.Config `json:"cache"`
	Scheduler   schedule.Config     `json:"scheduler"`
	Sandbox     SandboxConfig       `json:"sandbox"`
}

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
	Database  string `json:"database" envconfig:"DATABASE"`
	Tenants   string `json:"tenants" envconfig:"TENANTS"`
}

// ModelConfig groups default LLM model settings.
type ModelConfig struct {
	Name string `json:"name" envconfig:"MODEL"`
}

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Telegram channels.TelegramConfig `json:"telegram"`
}

// ProvidersConfig contains inference provider settings.
type ProvidersConfig struct {
	Gemini GeminiConfig `json:"gemini"`
}

// GeminiConfig holds the Gemini API credentials used for context caching.
type GeminiConfig struct {
	APIKey string `json:"apiKey" envconfig:"GEMINI_API_KEY"`
}

// ConsolidateConfig groups message consolidation settings.
type ConsolidateConfig struct {
	Debounce time.Duration `json:"debounce" envconfig:"DEBOUNCE"`
}

// SandboxConfig configures the agent sandbox runtime.
type SandboxConfig struct {
	Binary  string        `json:"binary" envconfig:"SANDBOX_BINARY"`
	Timeout time.Duration `json:"timeout" envconfig:"SANDBOX_TIMEOUT"`
}
