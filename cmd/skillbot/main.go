package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"skillbot/internal/agent"
	"skillbot/internal/channel"
	"skillbot/internal/config"
	"skillbot/internal/domain"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	agent.SetVersion(version)

	root := &cobra.Command{
		Use:           "skillbot",
		Short:         "skillbot: a chat skill dispatcher",
		Long:          "skillbot routes chat messages to skills (weather, calculator, dictionary) over CLI, Telegram, WebSocket and HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.skillbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(routeCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(skillsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// setup loads the config, replaces the bootstrap logger with the configured
// one and wires the dispatch stack. The returned cleanup must be called.
func setup() (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	l, logCloser, err := newLogger(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	logger = l

	a, err := newApp(cfg)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		logCloser.Close()
	}, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", cfgPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s to use live weather data.\n", config.WeatherAPIKeyEnv)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.loop.Run(ctx)
	}()

	cli := channel.NewCLI(channel.CLIConfig{
		Logger:  logger,
		Out:     cmd.OutOrStdout(),
		Spinner: isTerminal(os.Stdout),
	})
	err = cli.Start(ctx, a.bus)

	// Let the loop answer whatever was typed before EOF.
	a.bus.Close()
	<-loopDone
	return err
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func routeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "route <text...>",
		Short: "Dispatch one message and print the reply",
		Example: `  skillbot route /calc 2 * (3 + 4)
  skillbot route --json "what's the weather in Paris"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := a.loop.ProcessDirect(ctx, strings.Join(args, " "), "cli", "route")
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), result.Text)
				return nil
			}
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full dispatch result as JSON")
	return cmd
}

func skillsCmd() *cobra.Command {
	var usage bool
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List registered skills and their triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			var counts map[string]int
			if usage && a.store != nil {
				counts, err = a.store.SkillUsage(context.Background())
				if err != nil {
					return fmt.Errorf("skill usage: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			for _, s := range a.dispatcher.Skills() {
				fmt.Fprintf(out, "%s - %s\n", s.Name(), s.Description())
				trig := s.Triggers()
				for _, p := range trig.Patterns {
					fmt.Fprintf(out, "  pattern: %s\n", p.String())
				}
				if len(trig.Phrases) > 0 {
					fmt.Fprintf(out, "  phrases: %s\n", strings.Join(trig.Phrases, ", "))
				}
				if usage {
					fmt.Fprintf(out, "  replies: %d\n", counts[s.Name()])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&usage, "usage", false, "show how many transcript replies each skill produced")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Get a config value or section (e.g. skills.weather.apiBase, channels.api)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.Get(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a config value (e.g. channels.api.enabled true)",
		Long:  "Set a config value. Values are checked against the key's type; lists such as channels.telegram.allowFrom are comma-separated.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.Set(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated in %s\n", args[0], cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			values := config.Values(config.Sanitize(cfg))
			for _, k := range config.Keys() {
				v, _ := json.Marshal(values[k])
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, v)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the enabled channels (Telegram, WebSocket, HTTP API) and the dispatch loop",
		Long:  "Starts every enabled network channel and the dispatch loop. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	channels := gatewayChannels(a)
	if len(channels) == 0 {
		return errors.New("no network channel enabled (channels.telegram, channels.websocket or channels.api)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.loop.Run(gctx)
		return nil
	})
	for _, ch := range channels {
		g.Go(func() error {
			if err := ch.Start(gctx, a.bus); err != nil {
				return fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
			return nil
		})
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("gateway started. Press Ctrl+C to stop.")
	<-gctx.Done()
	logger.Info("shutting down gateway...")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	const shutdownTimeout = 10 * time.Second
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case <-time.After(shutdownTimeout):
		for _, ch := range channels {
			ch.Stop()
		}
		return errors.New("shutdown timed out")
	}
}

func gatewayChannels(a *app) []domain.Channel {
	cfg := a.cfg
	var channels []domain.Channel
	if cfg.Channels.Telegram.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Logger:    logger,
		}))
	}
	if cfg.Channels.WebSocket.Enabled {
		channels = append(channels, channel.NewWebSocketChannel(channel.WSConfig{
			Host:   cfg.Channels.WebSocket.Host,
			Port:   cfg.Channels.WebSocket.Port,
			Path:   cfg.Channels.WebSocket.Path,
			Logger: logger,
		}))
	}
	if cfg.Channels.API.Enabled {
		metricsPath := ""
		if cfg.Metrics.Enabled {
			metricsPath = cfg.Metrics.Endpoint
		}
		channels = append(channels, channel.NewAPIServer(channel.APIConfig{
			Host:          cfg.Channels.API.Host,
			Port:          cfg.Channels.API.Port,
			APIKey:        cfg.Channels.API.APIKey,
			RatePerMinute: cfg.Channels.API.RatePerMinute,
			MetricsPath:   metricsPath,
			Router:        a.loop,
			Skills:        a.dispatcher.Skills(),
			Logger:        logger,
		}))
	}
	return channels
}
