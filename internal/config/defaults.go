package config

const (
	// WeatherAPIKeyEnv supplies the weather key when the config leaves it empty.
	WeatherAPIKeyEnv = "OPENWEATHER_API_KEY"

	DefaultWeatherAPIBase    = "https://api.openweathermap.org"
	DefaultDictionaryAPIBase = "https://api.dictionaryapi.dev"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Skills: SkillsConfig{
			Weather: WeatherConfig{
				APIBase:        DefaultWeatherAPIBase,
				TimeoutSeconds: 10,
			},
			Dictionary: DictionaryConfig{
				APIBase:        DefaultDictionaryAPIBase,
				TimeoutSeconds: 10,
			},
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{
				Enabled: true,
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
			WebSocket: WebSocketConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    8081,
				Path:    "/ws",
			},
			API: APIConfig{
				Enabled:       false,
				Host:          "127.0.0.1",
				Port:          9090,
				RatePerMinute: 60,
			},
		},
		Memory: MemoryConfig{
			Enabled:    true,
			DBPath:     "~/.skillbot/transcripts.db",
			MaxHistory: 200,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
