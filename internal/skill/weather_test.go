package skill

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func init() {
	retryBaseDelay = time.Millisecond
}

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestWeather_SyntheticWithoutKey(t *testing.T) {
	w := NewWeather(WeatherConfig{Now: fixedNow, Logger: testLogger()})

	res, err := w.Execute(context.Background(), "Paris")
	require.NoError(t, err)

	// "paris" sums to 543.
	data, ok := res.Data.(WeatherData)
	require.True(t, ok)
	require.Equal(t, "Paris, XX", data.Location)
	require.Equal(t, 18, data.Temperature)
	require.Equal(t, 19, data.FeelsLike)
	require.Equal(t, 73, data.Humidity)
	require.Equal(t, 32, data.WindSpeed)
	require.Equal(t, 43, data.Clouds)
	require.Equal(t, "broken clouds", data.Description)
	require.Equal(t, fixedNow().UnixMilli(), data.Timestamp)
	require.True(t, data.Simulated)

	require.Equal(t, "Current weather in Paris, XX: 18°C, broken clouds. Feels like 19°C with 73% humidity.\n(Note: Using simulated weather data as no API key is configured)", res.Text)
}

func TestWeather_SyntheticIsDeterministic(t *testing.T) {
	w := NewWeather(WeatherConfig{Now: fixedNow, Logger: testLogger()})

	a, err := w.Execute(context.Background(), "Tokyo")
	require.NoError(t, err)
	b, err := w.Execute(context.Background(), "tokyo")
	require.NoError(t, err)

	da := a.Data.(WeatherData)
	db := b.Data.(WeatherData)
	require.Equal(t, da.Temperature, db.Temperature)
	require.Equal(t, da.Description, db.Description)
}

func TestWeather_LiveLookup(t *testing.T) {
	var gotURL atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL.Store(r.URL.String())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": "London",
			"sys": {"country": "GB"},
			"main": {"temp": 11.6, "feels_like": 10.4, "humidity": 81},
			"weather": [{"main": "Clouds", "description": "overcast clouds"}],
			"wind": {"speed": 4.1},
			"clouds": {"all": 90},
			"dt": 1714564800
		}`))
	}))
	defer srv.Close()

	w := NewWeather(WeatherConfig{APIKey: "secret", APIBase: srv.URL, Logger: testLogger()})
	res, err := w.Execute(context.Background(), "London")
	require.NoError(t, err)
	require.Equal(t, "/data/2.5/weather?q=London&units=metric&appid=secret", gotURL.Load())

	data := res.Data.(WeatherData)
	require.Equal(t, "London, GB", data.Location)
	require.Equal(t, 12, data.Temperature)
	require.Equal(t, 10, data.FeelsLike)
	require.Equal(t, 15, data.WindSpeed)
	require.Equal(t, int64(1714564800000), data.Timestamp)
	require.False(t, data.Simulated)
	require.NotContains(t, res.Text, "Note:")
}

func TestWeather_FallsBackOnUpstreamFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWeather(WeatherConfig{APIKey: "secret", APIBase: srv.URL, Now: fixedNow, Logger: testLogger()})
	res, err := w.Execute(context.Background(), "Paris")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(res.Text, "\n(Note: Using simulated weather data as the live lookup failed)"))
	require.True(t, res.Data.(WeatherData).Simulated)
	require.Equal(t, int32(maxLookupRetries+1), calls.Load())
}

func TestWeather_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"cod":"404","message":"city not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	w := NewWeather(WeatherConfig{APIKey: "secret", APIBase: srv.URL, Now: fixedNow, Logger: testLogger()})
	res, err := w.Execute(context.Background(), "Atlantis")
	require.NoError(t, err)
	require.Contains(t, res.Text, "Note: Using simulated weather data")
	require.Equal(t, int32(1), calls.Load())
}

func TestWeather_FallsBackOnMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "", "weather": []}`))
	}))
	defer srv.Close()

	w := NewWeather(WeatherConfig{APIKey: "secret", APIBase: srv.URL, Now: fixedNow, Logger: testLogger()})
	res, err := w.Execute(context.Background(), "Paris")
	require.NoError(t, err)
	require.Equal(t, "Paris, XX", res.Data.(WeatherData).Location)
}

func TestWeather_EmptyCity(t *testing.T) {
	w := NewWeather(WeatherConfig{Logger: testLogger()})
	_, err := w.Execute(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
