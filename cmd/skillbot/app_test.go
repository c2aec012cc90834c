package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"skillbot/internal/config"
)

func useTestLogger(t *testing.T) {
	t.Helper()
	prev := logger
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { logger = prev })
}

func TestNewApp_RoutesAndRecords(t *testing.T) {
	useTestLogger(t)

	cfg := config.Defaults()
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "t.db")
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	res := a.loop.ProcessDirect(ctx, "/calc 2 * (3 + 4)", "cli", "route")
	if !res.Matched || res.SkillName != "calc" {
		t.Fatalf("expected calc match, got %+v", res)
	}
	if res.Text != "2 * (3 + 4) = 14" {
		t.Fatalf("expected %q, got %q", "2 * (3 + 4) = 14", res.Text)
	}

	usage, err := a.store.SkillUsage(ctx)
	if err != nil {
		t.Fatalf("skill usage: %v", err)
	}
	if usage["calc"] != 1 {
		t.Fatalf("expected one recorded calc reply, got %v", usage)
	}
}

func TestNewApp_MemoryDisabled(t *testing.T) {
	useTestLogger(t)

	cfg := config.Defaults()
	cfg.Memory.Enabled = false
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if a.store != nil {
		t.Fatal("expected no store when memory is disabled")
	}
	if got := a.loop.ProcessDirect(context.Background(), "hello", "cli", "x"); got.Matched {
		t.Fatalf("expected fallback reply, got %+v", got)
	}
}

func TestNewApp_BadTriggersFile(t *testing.T) {
	useTestLogger(t)

	path := filepath.Join(t.TempDir(), "triggers.yaml")
	if err := os.WriteFile(path, []byte("weather: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Memory.Enabled = false
	cfg.Skills.TriggersFile = path
	if _, err := newApp(cfg); err == nil {
		t.Fatal("expected error for malformed triggers file")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	useTestLogger(t)
	t.Setenv(config.WeatherAPIKeyEnv, "from-env")

	prev := configPath
	configPath = filepath.Join(t.TempDir(), "absent.json")
	t.Cleanup(func() { configPath = prev })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Skills.Weather.APIKey != "from-env" {
		t.Fatalf("expected key from environment, got %q", cfg.Skills.Weather.APIKey)
	}
}

func TestNewLogger_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "skillbot.log")
	l, closer, err := newLogger(config.GeneralConfig{LogLevel: "debug", LogFile: path})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	l.Debug("hello from test")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log output in file")
	}
}
