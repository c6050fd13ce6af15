package config

import "path/filepath"

// DefaultInstruction is the built-in persona used when no persona file
// or inline instruction is configured.
const DefaultInstruction = "You are Clara, the virtual assistant of the OdontoVida dental clinic. " +
	"Be friendly, professional and to the point. Answer questions about appointments " +
	"and basic treatments. Use emojis sparingly."

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			Provider:              "gemini",
			MaxConcurrentMessages: 5,
		},
		Providers: map[string]ProviderConfig{
			"gemini": {
				APIKey: "${GEMINI_API_KEY}",
				Model:  "gemini-2.5-flash",
			},
			"openai": {
				APIKey: "${OPENAI_API_KEY}",
				Model:  "gpt-4o-mini",
			},
			"ollama": {
				APIBase: "http://localhost:11434",
				Model:   "llama3.1:8b",
			},
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:     false,
				WebhookPath: "/webhook/whatsapp",
				ListenAddr:  "127.0.0.1:8080",
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			Discord: DiscordConfig{
				Enabled: false,
			},
			Slack: SlackConfig{
				Enabled: false,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		History: HistoryConfig{
			DBPath:     filepath.Join(DefaultConfigDir(), "history.db"),
			WindowSize: 10,
		},
		Persona: PersonaConfig{
			File: filepath.Join(DefaultConfigDir(), "persona.yaml"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9090,
		},
	}
}
