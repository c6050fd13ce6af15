package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clarabot/internal/agent"
	"clarabot/internal/bus"
	"clarabot/internal/channel"
	"clarabot/internal/config"
	"clarabot/internal/domain"
	"clarabot/internal/gateway"
	"clarabot/internal/metrics"
	"clarabot/internal/persona"
	"clarabot/internal/provider"
	"clarabot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "clarabot",
		Short: "Clarabot: conversational relay for messaging channels",
		Long:  "Clarabot relays chat messages between messaging channels and a generative backend, keeping a durable per-conversation history.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.clarabot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Persona.File); os.IsNotExist(err) {
				p := &persona.Persona{Name: "Clara", Instruction: config.DefaultInstruction}
				if err := persona.Save(cfg.Persona.File, p); err != nil {
					return fmt.Errorf("write persona: %w", err)
				}
			}
			logger.Info("initialized", "config", cfgPath, "db", cfg.History.DBPath, "persona", cfg.Persona.File)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	log, err := store.NewSQLiteLog(cfg.History.DBPath, logger)
	if err != nil {
		return fmt.Errorf("conversation log: %w", err)
	}
	defer log.Close()

	gw, err := buildRelay(ctx, cfg, log, messageBus)
	if err != nil {
		return err
	}
	go gw.Run(ctx)

	cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cliCh.Start(ctx, messageBus)
}

// buildRelay wires the conversation log, context window, provider and
// turn processor into a dispatch gateway ready to Run.
func buildRelay(ctx context.Context, cfg *config.Config, log domain.ConversationLog, messageBus domain.MessageBus) (*gateway.Gateway, error) {
	instruction, err := persona.Resolve(cfg.Persona.File, cfg.Persona.Instruction, config.DefaultInstruction)
	if err != nil {
		return nil, fmt.Errorf("persona: %w", err)
	}

	factory := provider.NewFactory(cfg, logger)
	prov, err := factory.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
	} else {
		logger.Info("provider healthy", "provider", prov.Name())
	}

	pc := cfg.Providers[cfg.General.Provider]

	events := bus.NewEventBus(logger)
	processor := agent.NewProcessor(agent.ProcessorConfig{
		Log:          log,
		Window:       agent.NewWindowBuilder(log, cfg.History.WindowSize),
		Provider:     prov,
		Bus:          messageBus,
		Events:       events,
		Logger:       logger,
		Instruction:  instruction,
		Model:        pc.Model,
		MaxTokens:    pc.MaxTokens,
		Temperature:  pc.Temperature,
		StoreTimeout: time.Duration(cfg.General.StoreTimeoutSeconds) * time.Second,
		ModelTimeout: time.Duration(cfg.General.ModelTimeoutSeconds) * time.Second,
		SendTimeout:  time.Duration(cfg.General.SendTimeoutSeconds) * time.Second,
	})

	return gateway.New(gateway.Config{
		Bus:             messageBus,
		Processor:       processor,
		Events:          events,
		Logger:          logger,
		Concurrency:     cfg.General.MaxConcurrentMessages,
		ReservedMarkers: cfg.General.ReservedMarkers,
	}), nil
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the relay (all enabled channels + turn processing)",
		Long:  "Starts all enabled channels and the dispatch gateway. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	log, err := store.NewSQLiteLog(cfg.History.DBPath, logger)
	if err != nil {
		return fmt.Errorf("conversation log: %w", err)
	}
	defer log.Close()

	gw, err := buildRelay(ctx, cfg, log, messageBus)
	if err != nil {
		return err
	}
	go gw.Run(ctx)

	channels := enabledChannels(cfg)
	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled; enable at least one in %s", cfgPath)
	}

	for _, ch := range channels {
		go func(ch domain.Channel) {
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	// The WhatsApp webhook and the metrics endpoint share one HTTP
	// server when both are enabled.
	if srv := buildHTTPServer(cfg, channels); srv != nil {
		go func() {
			logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("relay started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logger.Info("shutting down relay...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop", "channel", ch.Name(), "err", err)
			}
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

// enabledChannels builds the channel list from config. The CLI channel
// is excluded here: it owns the terminal and has its own command.
func enabledChannels(cfg *config.Config) []domain.Channel {
	var channels []domain.Channel

	if cfg.Channels.WhatsApp.Enabled {
		channels = append(channels, channel.NewWhatsApp(channel.WhatsAppChannelConfig{
			Config: cfg.Channels.WhatsApp,
			Logger: logger,
		}))
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		}))
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		channels = append(channels, channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		}))
	}
	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BotToken != "" {
		channels = append(channels, channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
			Logger:   logger,
		}))
	}

	return channels
}

// buildHTTPServer mounts the WhatsApp webhook and the metrics handler
// on one mux. Returns nil when neither needs an HTTP listener.
func buildHTTPServer(cfg *config.Config, channels []domain.Channel) *http.Server {
	mux := http.NewServeMux()
	mounted := false

	for _, ch := range channels {
		if wa, ok := ch.(*channel.WhatsApp); ok {
			mux.Handle("/", wa.Handler())
			mounted = true
		}
	}
	if cfg.Metrics.Enabled {
		mux.HandleFunc("/metrics", metrics.Collector.Handler())
		mounted = true
	}
	if !mounted {
		return nil
	}

	addr := cfg.Channels.WhatsApp.ListenAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
	}
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
