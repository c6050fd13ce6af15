package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"clarabot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your Clarabot installation",
		Long: `Verifies that Clarabot's configuration, provider credentials, database
and listen ports are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Clarabot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'clarabot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Database writable
			if err := checkDatabase(cfg.History.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.History.DBPath)
				passed++
			}

			// 4. Default provider has credentials
			name := cfg.General.Provider
			pc, ok := cfg.Providers[name]
			switch {
			case !ok:
				printFail("Provider: "+name, "selected as default but not configured")
				failed++
			case pc.APIKey == "" && pc.APIBase == "":
				printWarn("Provider: "+name, "no API key or base URL configured")
				warned++
			default:
				printPass("Provider: "+name, "configured")
				passed++
			}

			// 5. Persona file readable, when set
			if cfg.Persona.File != "" {
				if _, err := os.Stat(cfg.Persona.File); err != nil {
					printFail("Persona file", fmt.Sprintf("not readable: %s", cfg.Persona.File))
					failed++
				} else {
					printPass("Persona file", cfg.Persona.File)
					passed++
				}
			}

			// 6. Channel credentials
			if cfg.Channels.WhatsApp.Enabled {
				wa := cfg.Channels.WhatsApp
				if wa.AccessToken == "" || wa.PhoneNumberID == "" {
					printWarn("WhatsApp", "enabled but access token or phone number ID missing")
					warned++
				} else {
					printPass("WhatsApp", "configured")
					passed++
				}
				if wa.ListenAddr != "" {
					if err := checkAddr(wa.ListenAddr); err != nil {
						printWarn("WhatsApp listener", fmt.Sprintf("%s may be in use: %v", wa.ListenAddr, err))
						warned++
					} else {
						printPass("WhatsApp listener", wa.ListenAddr+" available")
						passed++
					}
				}
			}
			if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
				printWarn("Telegram", "enabled but no token configured")
				warned++
			}
			if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
				printWarn("Discord", "enabled but no token configured")
				warned++
			}
			if cfg.Channels.Slack.Enabled && (cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "") {
				printWarn("Slack", "enabled but bot or app token missing")
				warned++
			}

			// 7. Metrics port
			if cfg.Metrics.Enabled {
				addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
				if err := checkAddr(addr); err != nil {
					printWarn("Metrics port", fmt.Sprintf("%s may be in use: %v", addr, err))
					warned++
				} else {
					printPass("Metrics port", addr+" available")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running Clarabot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nClarabot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Clarabot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
