package openweathermap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/provider/resilience"
	"github.com/livebetter/livebetter/internal/weather"
	"github.com/livebetter/livebetter/internal/weather/openweathermap"
)

const currentPayload = `{
	"dt": 1714550400,
	"main": {"temp": 14.2, "feels_like": 13.1, "pressure": 1012, "humidity": 71},
	"wind": {"speed": 3.6, "deg": 240},
	"rain": {"1h": 0.4},
	"weather": [{"main": "Drizzle", "description": "light intensity drizzle", "icon": "09d"}]
}`

const hourlyPayload = `{
	"list": [
		{"dt": 1714550400, "main": {"temp": 14.0}, "wind": {"speed": 0.5}, "weather": [{"main": "Mist", "icon": "50d"}]},
		{"dt": 1714554000, "main": {"temp": 15.5}, "wind": {"speed": 2.1}, "weather": [{"main": "Clear", "icon": "01d"}]},
		{"dt": 1714557600, "main": {"temp": 16.0}, "wind": {"speed": 2.4}}
	]
}`

func newClient(url string) *openweathermap.Client {
	cfg := resilience.DefaultClientConfig("test")
	cfg.MaxRetries = 0
	return openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		HTTPClient: resilience.NewClient(cfg),
	})
}

func TestClient_FetchCurrent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Contains(t, r.URL.Query().Get("lat"), "51.507")
		_, _ = w.Write([]byte(currentPayload))
	}))
	defer server.Close()

	current, err := newClient(server.URL).FetchCurrent(context.Background(), 51.5074, -0.1278)
	require.NoError(t, err)

	assert.InDelta(t, 14.2, current.Temperature, 0.001)
	assert.InDelta(t, 71.0, current.Humidity, 0.001)
	assert.InDelta(t, 0.4, current.Rain, 0.001)
	assert.Equal(t, weather.ConditionDrizzle, current.Condition)
	assert.Equal(t, "09d", current.Icon)
	assert.Equal(t, time.Unix(1714550400, 0).UTC(), current.Time)
}

func TestClient_FetchHourly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast/hourly", r.URL.Path)
		_, _ = w.Write([]byte(hourlyPayload))
	}))
	defer server.Close()

	hours, err := newClient(server.URL).FetchHourly(context.Background(), 51.5074, -0.1278)
	require.NoError(t, err)

	require.Len(t, hours, 3)
	assert.Equal(t, weather.ConditionFog, hours[0].Condition)
	assert.True(t, hours[0].Stagnant())
	assert.Equal(t, weather.ConditionClear, hours[1].Condition)
	assert.Equal(t, weather.ConditionUnknown, hours[2].Condition, "missing condition block")
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newClient(server.URL).FetchCurrent(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 401")
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "openweathermap-weather", newClient("http://localhost").Name())
}
