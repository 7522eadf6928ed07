package openweathermap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/airquality/openweathermap"
	"github.com/livebetter/livebetter/internal/provider/resilience"
)

func pollutionPayload(aqi ...int) map[string]any {
	list := make([]map[string]any, 0, len(aqi))
	for i, a := range aqi {
		list = append(list, map[string]any{
			"main": map[string]int{"aqi": a},
			"components": map[string]float64{
				"co": 201.94, "no": 0.02, "no2": 0.77, "o3": 68.66,
				"so2": 0.64, "pm2_5": 0.5, "pm10": 0.54, "nh3": 0.12,
			},
			"dt": int64(1606147200 + i*3600),
		})
	}
	return map[string]any{
		"coord": map[string]float64{"lat": 51.5074, "lon": -0.1278},
		"list":  list,
	}
}

func newClient(url string) *openweathermap.Client {
	cfg := resilience.DefaultClientConfig("test")
	cfg.MaxRetries = 0
	return openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		HTTPClient: resilience.NewClient(cfg),
	})
}

func TestClient_FetchCurrentReading(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/air_pollution", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("lat"), "51.507")
		assert.Contains(t, r.URL.Query().Get("lon"), "-0.127")
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pollutionPayload(4))
	}))
	defer server.Close()

	reading, err := newClient(server.URL).FetchCurrentReading(context.Background(), 51.5074, -0.1278)
	require.NoError(t, err)

	assert.Equal(t, airquality.IndexPoor, reading.Index)
	assert.Equal(t, 51.5074, reading.Lat)
	assert.Equal(t, 68.66, reading.Pollutants[airquality.PollutantO3])
	assert.Equal(t, 0.5, reading.Pollutants[airquality.PollutantPM25])
	assert.Len(t, reading.Pollutants, 8)
	assert.Equal(t, time.Unix(1606147200, 0).UTC(), reading.MeasuredAt)
	assert.Equal(t, openweathermap.ProviderName, reading.Provider)
}

func TestClient_FetchCurrentReading_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pollutionPayload())
	}))
	defer server.Close()

	_, err := newClient(server.URL).FetchCurrentReading(context.Background(), 1, 2)
	assert.ErrorIs(t, err, openweathermap.ErrEmptyResponse)
}

func TestClient_FetchCurrentReading_InvalidIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pollutionPayload(0))
	}))
	defer server.Close()

	_, err := newClient(server.URL).FetchCurrentReading(context.Background(), 1, 2)
	assert.ErrorIs(t, err, openweathermap.ErrInvalidIndex)
}

func TestClient_FetchCurrentReading_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newClient(server.URL).FetchCurrentReading(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_FetchCurrentReading_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	_, err := newClient(server.URL).FetchCurrentReading(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestClient_FetchForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/air_pollution/forecast", r.URL.Path)
		_ = json.NewEncoder(w).Encode(pollutionPayload(1, 2, 3))
	}))
	defer server.Close()

	forecast, err := newClient(server.URL).FetchForecast(context.Background(), 51.5074, -0.1278)
	require.NoError(t, err)

	require.Len(t, forecast.Hourly, 3)
	assert.Equal(t, airquality.IndexGood, forecast.Hourly[0].Index)
	assert.Equal(t, airquality.IndexModerate, forecast.Hourly[2].Index)
	assert.True(t, forecast.Hourly[2].MeasuredAt.After(forecast.Hourly[0].MeasuredAt))
}

func TestClient_FetchHistory(t *testing.T) {
	start := time.Unix(1606147200, 0).UTC()
	end := start.Add(72 * time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/air_pollution/history", r.URL.Path)
		assert.Equal(t, "1606147200", r.URL.Query().Get("start"))
		assert.Equal(t, "1606406400", r.URL.Query().Get("end"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		_ = json.NewEncoder(w).Encode(pollutionPayload(2, 5, 3))
	}))
	defer server.Close()

	history, err := newClient(server.URL).FetchHistory(context.Background(), 51.5074, -0.1278, start, end)
	require.NoError(t, err)

	require.Len(t, history.Readings, 3)
	assert.Equal(t, start, history.Start)
	assert.Equal(t, end, history.End)
	assert.Equal(t, airquality.IndexVeryPoor, history.Peak())
	assert.Equal(t, "openweathermap", history.Provider)
}

func TestClient_FetchHistory_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	now := time.Now()
	_, err := newClient(server.URL).FetchHistory(context.Background(), 1, 2, now.Add(-time.Hour), now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "openweathermap", newClient("http://localhost").Name())
}
