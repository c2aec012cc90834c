package skill

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"skillbot/internal/domain"
	"skillbot/internal/metrics"
)

const defaultWeatherAPIBase = "https://api.openweathermap.org"

var weatherPattern = commandPattern("weather")

// WeatherConfig configures the weather skill. An empty APIKey selects the
// synthetic dataset without touching the network.
type WeatherConfig struct {
	APIKey  string
	APIBase string
	Timeout time.Duration
	Client  *http.Client     // optional: overrides the shared client
	Now     func() time.Time // optional: clock for synthetic readings
	Logger  *slog.Logger
}

// WeatherData is the structured result of the weather skill.
type WeatherData struct {
	Location    string `json:"location"`
	Temperature int    `json:"temperature"`
	FeelsLike   int    `json:"feelsLike"`
	Description string `json:"description"`
	Humidity    int    `json:"humidity"`
	WindSpeed   int    `json:"windSpeed"` // km/h
	Clouds      int    `json:"clouds"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
	Simulated   bool   `json:"simulated,omitempty"`
}

// Weather reports current conditions for a city from OpenWeatherMap, falling
// back to deterministic synthetic readings when the lookup is unavailable.
type Weather struct {
	apiKey  string
	apiBase string
	client  *http.Client
	now     func() time.Time
	logger  *slog.Logger
}

func NewWeather(cfg WeatherConfig) *Weather {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultWeatherAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Weather{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  cfg.Client,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
}

func (w *Weather) Name() string { return "weather" }

func (w *Weather) Description() string { return "Get current weather information for a city" }

func (w *Weather) Triggers() domain.Trigger {
	return domain.Trigger{
		Patterns: []*regexp.Regexp{weatherPattern},
		Phrases: []string{
			"what's the weather in",
			"what is the weather in",
			"how's the weather in",
			"weather in",
			"weather for",
			"temperature in",
		},
	}
}

func (w *Weather) Execute(ctx context.Context, city string) (*domain.SkillResult, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("%w: city name is required", ErrInvalidArgument)
	}

	var (
		report    owmResponse
		note      string
		simulated = w.apiKey == ""
	)
	if w.apiKey == "" {
		report = syntheticWeather(city, w.now())
		note = "(Note: Using simulated weather data as no API key is configured)"
		metrics.RecordSkillFallback(w.Name(), "no_api_key")
	} else if err := w.lookup(ctx, city, &report); err != nil {
		w.logger.Warn("weather lookup failed, using simulated data", "city", city, "err", err)
		report = syntheticWeather(city, w.now())
		note = "(Note: Using simulated weather data as the live lookup failed)"
		simulated = true
		metrics.RecordSkillFallback(w.Name(), "upstream_error")
	}

	data := WeatherData{
		Location:    report.Name + ", " + report.Sys.Country,
		Temperature: roundHalfUp(report.Main.Temp),
		FeelsLike:   roundHalfUp(report.Main.FeelsLike),
		Description: report.Weather[0].Description,
		Humidity:    report.Main.Humidity,
		WindSpeed:   roundHalfUp(report.Wind.Speed * 3.6),
		Clouds:      report.Clouds.All,
		Timestamp:   report.Dt * 1000,
		Simulated:   simulated,
	}

	text := fmt.Sprintf("Current weather in %s: %d°C, %s. Feels like %d°C with %d%% humidity.",
		data.Location, data.Temperature, data.Description, data.FeelsLike, data.Humidity)
	if note != "" {
		text += "\n" + note
	}

	return &domain.SkillResult{Text: text, Data: data}, nil
}

func (w *Weather) lookup(ctx context.Context, city string, out *owmResponse) error {
	endpoint := fmt.Sprintf("%s/data/2.5/weather?q=%s&units=metric&appid=%s",
		w.apiBase, url.QueryEscape(city), url.QueryEscape(w.apiKey))
	if err := getJSON(ctx, w.client, endpoint, out, w.logger); err != nil {
		return err
	}
	if out.Name == "" || len(out.Weather) == 0 {
		return fmt.Errorf("malformed weather payload")
	}
	return nil
}

// owmResponse is the subset of the OpenWeatherMap current-weather payload we use.
type owmResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []owmCondition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"` // m/s
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Dt int64 `json:"dt"`
}

type owmCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

var syntheticConditions = []owmCondition{
	{Main: "Clear", Description: "clear sky"},
	{Main: "Clouds", Description: "few clouds"},
	{Main: "Clouds", Description: "scattered clouds"},
	{Main: "Clouds", Description: "broken clouds"},
	{Main: "Rain", Description: "light rain"},
	{Main: "Rain", Description: "moderate rain"},
	{Main: "Thunderstorm", Description: "thunderstorm"},
	{Main: "Snow", Description: "light snow"},
	{Main: "Mist", Description: "mist"},
}

// syntheticWeather derives a stable reading from the city name so the same city
// always gets the same conditions.
func syntheticWeather(city string, now time.Time) owmResponse {
	hash := 0
	for _, r := range strings.ToLower(city) {
		hash += int(r)
	}
	base := 15 + hash%20

	var resp owmResponse
	resp.Name = city
	resp.Sys.Country = "XX"
	resp.Main.Temp = float64(base)
	resp.Main.FeelsLike = float64(base - 2 + hash%5)
	resp.Main.Humidity = 30 + hash%50
	resp.Main.Pressure = 1000 + hash%30
	resp.Weather = []owmCondition{syntheticConditions[hash%len(syntheticConditions)]}
	resp.Wind.Speed = float64(2 + hash%8)
	resp.Clouds.All = hash % 100
	resp.Dt = now.Unix()
	return resp
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
