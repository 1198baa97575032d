package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MIRUMI_DB_PATH", "MIRUMI_WEBUI_PORT", "MIRUMI_TELEGRAM_TOKEN",
		"MIRUMI_TELEGRAM_CHAT_ID", "MIRUMI_TELEGRAM_ENABLED",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Timer.LabelMaxChars != DefaultLabelMaxChars {
		t.Errorf("labelMaxChars = %d, want %d", cfg.Timer.LabelMaxChars, DefaultLabelMaxChars)
	}
	if cfg.Timer.IdleTitle != DefaultIdleTitle {
		t.Errorf("idleTitle = %q, want %q", cfg.Timer.IdleTitle, DefaultIdleTitle)
	}
	if cfg.Timer.DefaultMinutes != DefaultTimerMinutes {
		t.Errorf("defaultMinutes = %d, want %d", cfg.Timer.DefaultMinutes, DefaultTimerMinutes)
	}
	if !cfg.Channels.WebUI.Enabled {
		t.Error("webui should be enabled by default")
	}
	if cfg.Channels.WebUI.Addr() != "127.0.0.1:18791" {
		t.Errorf("addr = %q", cfg.Channels.WebUI.Addr())
	}
	if cfg.Store.DBPath != "" {
		t.Errorf("dbPath = %q, want empty until configured", cfg.Store.DBPath)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("telegram should be disabled by default")
	}
}

func TestConfigPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	if got := ConfigDir(); got != filepath.Join(tmpDir, ".mirumi") {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := ConfigPath(); got != filepath.Join(tmpDir, ".mirumi", "config.json") {
		t.Errorf("ConfigPath() = %q", got)
	}
	if got := DefaultDBPath(); got != filepath.Join(tmpDir, ".mirumi", "storage", "mirumi.db") {
		t.Errorf("DefaultDBPath() = %q", got)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Timer.IdleTitle != DefaultIdleTitle {
		t.Errorf("expected default idle title, got %q", cfg.Timer.IdleTitle)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearEnv(t)

	dir := filepath.Join(tmpDir, ".mirumi")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := `{
		"store": {"dbPath": "/data/tasks.db"},
		"timer": {"labelMaxChars": 8, "idleTitle": ""},
		"channels": {"webui": {"enabled": false, "port": 0}, "telegram": {"enabled": true, "token": "t", "chatId": 42}}
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Store.DBPath != "/data/tasks.db" {
		t.Errorf("dbPath = %q", cfg.Store.DBPath)
	}
	if cfg.Timer.LabelMaxChars != 8 {
		t.Errorf("labelMaxChars = %d, want 8", cfg.Timer.LabelMaxChars)
	}
	if cfg.Timer.IdleTitle != DefaultIdleTitle {
		t.Errorf("blank idle title not defaulted: %q", cfg.Timer.IdleTitle)
	}
	if cfg.Channels.WebUI.Enabled {
		t.Error("webui should be disabled from file")
	}
	if cfg.Channels.WebUI.Port != DefaultPort {
		t.Errorf("port = %d, want default for 0", cfg.Channels.WebUI.Port)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.ChatID != 42 {
		t.Errorf("telegram = %+v", cfg.Channels.Telegram)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	dir := filepath.Join(tmpDir, ".mirumi")
	_ = os.MkdirAll(dir, 0755)
	_ = os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0644)

	if _, err := LoadConfig(); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MIRUMI_DB_PATH", "/env/mirumi.db")
	t.Setenv("MIRUMI_WEBUI_PORT", "19000")
	t.Setenv("MIRUMI_TELEGRAM_TOKEN", "tok")
	t.Setenv("MIRUMI_TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("MIRUMI_TELEGRAM_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Store.DBPath != "/env/mirumi.db" {
		t.Errorf("dbPath = %q", cfg.Store.DBPath)
	}
	if cfg.Channels.WebUI.Port != 19000 {
		t.Errorf("port = %d", cfg.Channels.WebUI.Port)
	}
	tg := cfg.Channels.Telegram
	if tg.Token != "tok" || tg.ChatID != -100123 || !tg.Enabled {
		t.Errorf("telegram = %+v", tg)
	}
}

func TestLoadConfig_BadEnvIgnored(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)
	t.Setenv("MIRUMI_WEBUI_PORT", "not-a-port")
	t.Setenv("MIRUMI_TELEGRAM_ENABLED", "maybe")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.WebUI.Port != DefaultPort {
		t.Errorf("port = %d, want default", cfg.Channels.WebUI.Port)
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("unparseable bool should leave telegram disabled")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	clearEnv(t)

	cfg := DefaultConfig()
	cfg.Store.DBPath = "/tmp/x.db"
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}
	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Store.DBPath != "/tmp/x.db" {
		t.Errorf("dbPath = %q after round trip", loaded.Store.DBPath)
	}
}
