package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
		},
		Capabilities: CapabilitiesConfig{
			Dir:                "~/.switchboard/capabilities",
			Watch:              true,
			SelectionThreshold: 0.5,
			MinActConfidence:   0.6,
		},
		Store: StoreConfig{
			DBPath: "~/.switchboard/switchboard.db",
		},
		Executor: ExecutorConfig{
			TimeoutSeconds: 15,
		},
		Fallback: FallbackConfig{
			SearchEnabled: true,
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Enabled: true,
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			Slack: SlackConfig{
				Enabled: false,
			},
			Discord: DiscordConfig{
				Enabled: false,
			},
		},
	}
}
