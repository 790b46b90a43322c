package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".hivebot"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. HIVEBOT_CONFIG overrides
// the default ~/.hivebot/config.json.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("HIVEBOT_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Default returns a config with workable defaults rooted under home.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ConfigDir)
	return &Config{
		Paths: PathsConfig{
			Workspace: filepath.Join(base, "tenants"),
			Database:  filepath.Join(base, "hivebot.db"),
			Tenants:   filepath.Join(base, "tenants.json"),
		},
		Model: ModelConfig{Name: "gemini-2.5-flash"},
		Consolidate: ConsolidateConfig{
			Debounce: 5 * time.Second,
		},
		Sandbox: SandboxConfig{
			Binary:  "hivebot-sandbox",
			Timeout: 10 * time.Minute,
		},
	}
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies HIVEBOT_* environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	envconfig.Process("HIVEBOT_PATHS", &cfg.Paths)
	envconfig.Process("HIVEBOT_MODEL", &cfg.Model)
	envconfig.Process("HIVEBOT_CHANNELS_TELEGRAM", &cfg.Channels.Telegram)
	envconfig.Process("HIVEBOT_PROVIDERS_GEMINI", &cfg.Providers.Gemini)
	envconfig.Process("HIVEBOT_CONSOLIDATE", &cfg.Consolidate)
	envconfig.Process("HIVEBOT_CACHE", &cfg.Cache)
	envconfig.Process("HIVEBOT_SCHEDULER", &cfg.Scheduler)
	envconfig.Process("HIVEBOT", &cfg.Sandbox)

	return cfg, nil
}

// Save writes the config file, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
