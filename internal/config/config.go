package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 18791
	DefaultLabelMaxChars  = 12
	DefaultIdleTitle      = "Mirumi"
	DefaultTimerMinutes   = 5
	DefaultTickSchedule   = "@every 1s"
	DefaultBrowseLimit    = 100
	defaultDirName        = ".mirumi"
	defaultConfigFileName = "config.json"
)

type Config struct {
	Store    StoreConfig    `json:"store"`
	Timer    TimerConfig    `json:"timer"`
	Channels ChannelsConfig `json:"channels"`
}

type StoreConfig struct {
	// DBPath is empty until a datastore is initialised or loaded.
	DBPath string `json:"dbPath,omitempty"`
}

type TimerConfig struct {
	LabelMaxChars  int    `json:"labelMaxChars"`
	IdleTitle      string `json:"idleTitle"`
	DefaultMinutes int    `json:"defaultMinutes"`
	TickSchedule   string `json:"tickSchedule,omitempty"`
}

type ChannelsConfig struct {
	WebUI    WebUIConfig    `json:"webui"`
	Telegram TelegramConfig `json:"telegram"`
}

type WebUIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Addr is the host:port the websocket display listens on.
func (w WebUIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chatId"`
	Proxy   string `json:"proxy,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Timer: TimerConfig{
			LabelMaxChars:  DefaultLabelMaxChars,
			IdleTitle:      DefaultIdleTitle,
			DefaultMinutes: DefaultTimerMinutes,
			TickSchedule:   DefaultTickSchedule,
		},
		Channels: ChannelsConfig{
			WebUI: WebUIConfig{
				Enabled: true,
				Host:    DefaultHost,
				Port:    DefaultPort,
			},
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, defaultDirName)
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), defaultConfigFileName)
}

// DefaultDBPath is where InitDB creates a datastore when no path is given.
func DefaultDBPath() string {
	return filepath.Join(ConfigDir(), "storage", "mirumi.db")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if dbPath := os.Getenv("MIRUMI_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if port := os.Getenv("MIRUMI_WEBUI_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Channels.WebUI.Port = parsed
		}
	}
	if token := os.Getenv("MIRUMI_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if chatID := os.Getenv("MIRUMI_TELEGRAM_CHAT_ID"); chatID != "" {
		if parsed, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Channels.Telegram.ChatID = parsed
		}
	}
	if enabled := os.Getenv("MIRUMI_TELEGRAM_ENABLED"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			cfg.Channels.Telegram.Enabled = parsed
		}
	}

	if cfg.Timer.LabelMaxChars <= 0 {
		cfg.Timer.LabelMaxChars = DefaultLabelMaxChars
	}
	if strings.TrimSpace(cfg.Timer.IdleTitle) == "" {
		cfg.Timer.IdleTitle = DefaultIdleTitle
	}
	if cfg.Timer.DefaultMinutes <= 0 {
		cfg.Timer.DefaultMinutes = DefaultTimerMinutes
	}
	if cfg.Timer.TickSchedule == "" {
		cfg.Timer.TickSchedule = DefaultTickSchedule
	}
	if cfg.Channels.WebUI.Host == "" {
		cfg.Channels.WebUI.Host = DefaultHost
	}
	if cfg.Channels.WebUI.Port <= 0 {
		cfg.Channels.WebUI.Port = DefaultPort
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
