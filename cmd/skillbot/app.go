package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skillbot/internal/agent"
	"skillbot/internal/bus"
	"skillbot/internal/config"
	"skillbot/internal/memory"
	"skillbot/internal/skill"
)

// loadConfig reads the config file. A missing file is not an error: the
// defaults (plus environment) are used so that route and chat work out of
// the box.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("config not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
		config.ApplyEnv(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from general.logLevel, teeing to
// general.logFile when set. The returned closer releases the log file.
func newLogger(cfg config.GeneralConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}

// app is the wired dispatch stack shared by chat, route, skills and gateway.
type app struct {
	cfg        *config.Config
	dispatcher *agent.Dispatcher
	store      *memory.SQLiteStore // nil when memory is disabled
	bus        *bus.InMemoryBus
	loop       *agent.Loop
}

func newApp(cfg *config.Config) (*app, error) {
	registry := skill.NewRegistry(logger)
	err := registry.RegisterBuiltins(skill.BuiltinsConfig{
		Weather: skill.WeatherConfig{
			APIKey:  cfg.Skills.Weather.APIKey,
			APIBase: cfg.Skills.Weather.APIBase,
			Timeout: time.Duration(cfg.Skills.Weather.TimeoutSeconds) * time.Second,
			Logger:  logger,
		},
		Dictionary: skill.DictionaryConfig{
			APIBase: cfg.Skills.Dictionary.APIBase,
			Timeout: time.Duration(cfg.Skills.Dictionary.TimeoutSeconds) * time.Second,
			Logger:  logger,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("register skills: %w", err)
	}

	if cfg.Skills.TriggersFile != "" {
		overlay, err := skill.LoadTriggerOverlay(cfg.Skills.TriggersFile, logger)
		if err != nil {
			return nil, err
		}
		registry.ApplyOverlay(overlay)
	}

	a := &app{
		cfg: cfg,
		dispatcher: agent.NewDispatcher(agent.DispatcherConfig{
			Skills: registry.List(),
			Logger: logger,
		}),
		bus: bus.New(100, logger),
	}

	var sessions *agent.SessionManager
	if cfg.Memory.Enabled {
		store, err := memory.NewSQLiteStore(cfg.Memory.DBPath, cfg.Memory.MaxHistory, logger)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		a.store = store
		sessions = agent.NewSessionManager(store, logger)
	}

	a.loop = agent.NewLoop(agent.LoopConfig{
		Dispatcher: a.dispatcher,
		Sessions:   sessions,
		Bus:        a.bus,
		Logger:     logger,
	})
	return a, nil
}

func (a *app) Close() {
	a.bus.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("closing transcript store", "err", err)
		}
	}
}
