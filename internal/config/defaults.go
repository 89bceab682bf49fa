package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			WhatsApp: WhatsAppConfig{
				Enabled:     false,
				WebhookPath: "/webhook/whatsapp",
			},
		},
		Services: ServicesConfig{
			Recommend: RecommendConfig{
				BaseURL:        "http://localhost:8080",
				TimeoutSeconds: 30,
			},
			Vision: VisionConfig{
				APIBase: "https://generativelanguage.googleapis.com",
				Model:   "gemini-1.5-flash",
			},
			Weather: WeatherConfig{
				APIBase: "http://api.openweathermap.org",
			},
		},
		Store: StoreConfig{
			DBPath: "~/.cropadvisor/advisor.db",
		},
		Alerts: AlertsConfig{
			Enabled:         true,
			IntervalMinutes: 2,
			Concurrency:     8,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}
