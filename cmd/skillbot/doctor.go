package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"skillbot/internal/config"
	"skillbot/internal/memory"
	"skillbot/internal/skill"
)

type checkTally struct {
	passed, warned, failed int
}

func (t *checkTally) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	t.passed++
}

func (t *checkTally) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	t.failed++
}

func (t *checkTally) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	t.warned++
}

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your skillbot installation",
		Long: `Verifies that skillbot's configuration, transcript database, skill
backends and channel ports are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("skillbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var t checkTally

			// 1. Config file
			cfg := config.Defaults()
			if _, err := os.Stat(cfgPath); err != nil {
				t.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				config.ApplyEnv(cfg)
			} else if loaded, err := config.Load(cfgPath); err != nil {
				t.fail("Config validation", err.Error())
				return summarize(t)
			} else {
				t.pass("Config file", cfgPath)
				cfg = loaded
			}

			// 2. Transcript database
			if cfg.Memory.Enabled {
				if version, err := checkDatabase(cfg.Memory.DBPath, cfg.Memory.MaxHistory); err != nil {
					t.fail("Database", err.Error())
				} else {
					t.pass("Database", fmt.Sprintf("%s (schema v%d)", cfg.Memory.DBPath, version))
				}
			} else {
				t.warn("Database", "memory disabled, transcripts are not kept")
			}

			// 3. Skill backends
			if cfg.Skills.Weather.APIKey == "" {
				t.warn("Weather key", fmt.Sprintf("not set (%s), weather replies are simulated", config.WeatherAPIKeyEnv))
			} else {
				t.pass("Weather key", "configured")
			}
			if offline {
				t.warn("Skill backends", "skipped (--offline)")
			} else {
				checkBackend(&t, "Weather API", cfg.Skills.Weather.APIBase)
				checkBackend(&t, "Dictionary API", cfg.Skills.Dictionary.APIBase)
			}

			// 4. Trigger overlay
			if cfg.Skills.TriggersFile != "" {
				overlay, err := skill.LoadTriggerOverlay(cfg.Skills.TriggersFile, logger)
				if err != nil {
					t.fail("Triggers file", err.Error())
				} else {
					t.pass("Triggers file", fmt.Sprintf("%s (%d skills)", cfg.Skills.TriggersFile, len(overlay)))
				}
			}

			// 5. Channel ports
			if cfg.Channels.WebSocket.Enabled {
				checkPortFree(&t, "WebSocket port", cfg.Channels.WebSocket.Host, cfg.Channels.WebSocket.Port)
			}
			if cfg.Channels.API.Enabled {
				checkPortFree(&t, "API port", cfg.Channels.API.Host, cfg.Channels.API.Port)
			}
			if cfg.Channels.Telegram.Enabled && len(cfg.Channels.Telegram.AllowFrom) == 0 {
				t.warn("Telegram", "allowFrom is empty, every user can talk to the bot")
			}

			// 6. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					t.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					t.pass("Log file", cfg.General.LogFile)
				}
			}

			return summarize(t)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip network checks against the skill backends")
	return cmd
}

func summarize(t checkTally) error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", t.passed, t.warned, t.failed)
	if t.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running skillbot.\n")
		return fmt.Errorf("%d check(s) failed", t.failed)
	}
	if t.warned > 0 {
		fmt.Printf("\nskillbot should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! skillbot is ready to run.\n")
	}
	return nil
}

// checkDatabase opens the store (running migrations), pings it and reports
// the schema version.
func checkDatabase(dbPath string, maxHistory int) (int, error) {
	store, err := memory.NewSQLiteStore(dbPath, maxHistory, logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return 0, fmt.Errorf("cannot ping: %w", err)
	}
	return store.SchemaVersion()
}

// checkBackend only verifies the host answers HTTP; any status code counts.
func checkBackend(t *checkTally, name, base string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base, nil)
	if err != nil {
		t.fail(name, err.Error())
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.warn(name, fmt.Sprintf("unreachable: %v", err))
		return
	}
	resp.Body.Close()
	t.pass(name, fmt.Sprintf("%s (%d)", base, resp.StatusCode))
}

func checkPortFree(t *checkTally, name, host string, port int) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.warn(name, fmt.Sprintf("%s may be in use: %v", addr, err))
		return
	}
	ln.Close()
	t.pass(name, addr+" available")
}
