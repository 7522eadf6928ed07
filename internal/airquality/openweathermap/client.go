// Package openweathermap implements the air quality provider backed by the
// OpenWeatherMap Air Pollution API.
package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/airquality"
	"github.com/livebetter/livebetter/internal/provider/resilience"
)

const (
	// ProviderName identifies this air quality provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap data API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

var (
	// ErrEmptyResponse is returned when the provider answers without any data point.
	ErrEmptyResponse = errors.New("openweathermap returned no data points")

	// ErrInvalidIndex is returned when the reported index is outside 1..5.
	ErrInvalidIndex = errors.New("openweathermap returned an out of range index")
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL overrides the API base URL.
	BaseURL string

	// HTTPClient executes requests. Defaults to a resilient client.
	HTTPClient resilience.Doer

	Logger zerolog.Logger
}

// Client is an OpenWeatherMap air pollution client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient resilience.Doer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchCurrentReading fetches the current air pollution reading for a coordinate.
func (c *Client) FetchCurrentReading(ctx context.Context, lat, lon float64) (*airquality.Reading, error) {
	var resp pollutionResponse
	if err := c.get(ctx, "/air_pollution", lat, lon, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.List) == 0 {
		return nil, ErrEmptyResponse
	}

	reading := c.toReading(resp.Coord.Lat, resp.Coord.Lon, &resp.List[0])
	if !reading.Index.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, reading.Index)
	}
	c.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Int("aqi", int(reading.Index)).
		Msg("fetched air pollution reading")

	return reading, nil
}

// FetchForecast fetches the hourly air pollution forecast for a coordinate.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64) (*airquality.Forecast, error) {
	var resp pollutionResponse
	if err := c.get(ctx, "/air_pollution/forecast", lat, lon, nil, &resp); err != nil {
		return nil, err
	}

	forecast := &airquality.Forecast{
		Lat:       resp.Coord.Lat,
		Lon:       resp.Coord.Lon,
		Hourly:    make([]airquality.Reading, 0, len(resp.List)),
		FetchedAt: c.now(),
		Provider:  ProviderName,
	}
	for i := range resp.List {
		forecast.Hourly = append(forecast.Hourly, *c.toReading(resp.Coord.Lat, resp.Coord.Lon, &resp.List[i]))
	}
	return forecast, nil
}

// FetchHistory fetches hourly readings between start and end.
func (c *Client) FetchHistory(ctx context.Context, lat, lon float64, start, end time.Time) (*airquality.History, error) {
	window := url.Values{}
	window.Set("start", strconv.FormatInt(start.Unix(), 10))
	window.Set("end", strconv.FormatInt(end.Unix(), 10))

	var resp pollutionResponse
	if err := c.get(ctx, "/air_pollution/history", lat, lon, window, &resp); err != nil {
		return nil, err
	}

	history := &airquality.History{
		Lat:       resp.Coord.Lat,
		Lon:       resp.Coord.Lon,
		Start:     start,
		End:       end,
		Readings:  make([]airquality.Reading, 0, len(resp.List)),
		FetchedAt: c.now(),
		Provider:  ProviderName,
	}
	for i := range resp.List {
		history.Readings = append(history.Readings, *c.toReading(resp.Coord.Lat, resp.Coord.Lon, &resp.List[i]))
	}
	c.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Int("points", len(history.Readings)).
		Msg("fetched air pollution history")

	return history, nil
}

func (c *Client) get(ctx context.Context, path string, lat, lon float64, extra url.Values, out any) error {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("appid", c.apiKey)
	for k, v := range extra {
		q[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// toReading converts one OpenWeatherMap data point to the domain model.
func (c *Client) toReading(lat, lon float64, item *pollutionItem) *airquality.Reading {
	comp := item.Components
	return &airquality.Reading{
		Lat:   lat,
		Lon:   lon,
		Index: airquality.Index(item.Main.AQI),
		Pollutants: map[airquality.Pollutant]float64{
			airquality.PollutantCO:   comp.CO,
			airquality.PollutantNO:   comp.NO,
			airquality.PollutantNO2:  comp.NO2,
			airquality.PollutantO3:   comp.O3,
			airquality.PollutantSO2:  comp.SO2,
			airquality.PollutantPM25: comp.PM25,
			airquality.PollutantPM10: comp.PM10,
			airquality.PollutantNH3:  comp.NH3,
		},
		MeasuredAt: time.Unix(item.Dt, 0).UTC(),
		FetchedAt:  c.now(),
		Provider:   ProviderName,
	}
}

// OpenWeatherMap API response structures.

type pollutionResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	List []pollutionItem `json:"list"`
}

type pollutionItem struct {
	Main struct {
		AQI int `json:"aqi"`
	} `json:"main"`
	Components struct {
		CO   float64 `json:"co"`
		NO   float64 `json:"no"`
		NO2  float64 `json:"no2"`
		O3   float64 `json:"o3"`
		SO2  float64 `json:"so2"`
		PM25 float64 `json:"pm2_5"`
		PM10 float64 `json:"pm10"`
		NH3  float64 `json:"nh3"`
	} `json:"components"`
	Dt int64 `json:"dt"`
}

var _ airquality.Provider = (*Client)(nil)
