// Package openweathermap implements the weather provider backed by the
// OpenWeatherMap current weather and hourly forecast APIs.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/provider/resilience"
	"github.com/livebetter/livebetter/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap-weather"

	// DefaultBaseURL is the OpenWeatherMap data API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

// ClientConfig holds configuration for the weather client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient resilience.Doer
	Logger     zerolog.Logger
}

// Client is an OpenWeatherMap weather client. Values are requested in
// metric units.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient resilience.Doer
	logger     zerolog.Logger
}

// NewClient creates a new weather client.
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
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchCurrent fetches the current conditions.
func (c *Client) FetchCurrent(ctx context.Context, lat, lon float64) (*weather.Conditions, error) {
	var resp conditionsItem
	if err := c.get(ctx, "/weather", lat, lon, &resp); err != nil {
		return nil, err
	}
	current := resp.toConditions()
	return &current, nil
}

// FetchHourly fetches the hourly forecast.
func (c *Client) FetchHourly(ctx context.Context, lat, lon float64) ([]weather.Conditions, error) {
	var resp hourlyResponse
	if err := c.get(ctx, "/forecast/hourly", lat, lon, &resp); err != nil {
		return nil, err
	}

	hours := make([]weather.Conditions, 0, len(resp.List))
	for i := range resp.List {
		hours = append(hours, resp.List[i].toConditions())
	}
	return hours, nil
}

func (c *Client) get(ctx context.Context, path string, lat, lon float64, out any) error {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("units", "metric")
	q.Set("appid", c.apiKey)

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

func conditionOf(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionClouds
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Thunderstorm":
		return weather.ConditionThunderstorm
	case "Snow":
		return weather.ConditionSnow
	case "Mist", "Fog":
		return weather.ConditionFog
	case "Haze", "Smoke", "Dust", "Sand", "Ash":
		return weather.ConditionHaze
	default:
		return weather.ConditionUnknown
	}
}

// OpenWeatherMap API response structures. The current weather endpoint and
// each hourly forecast entry share one shape.

type conditionsItem struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

type hourlyResponse struct {
	List []conditionsItem `json:"list"`
}

func (it *conditionsItem) toConditions() weather.Conditions {
	c := weather.Conditions{
		Time:          time.Unix(it.Dt, 0).UTC(),
		Temperature:   it.Main.Temp,
		FeelsLike:     it.Main.FeelsLike,
		Humidity:      it.Main.Humidity,
		Pressure:      it.Main.Pressure,
		WindSpeed:     it.Wind.Speed,
		WindDirection: it.Wind.Deg,
		Rain:          it.Rain.OneHour,
		Condition:     weather.ConditionUnknown,
	}
	if len(it.Weather) > 0 {
		c.Condition = conditionOf(it.Weather[0].Main)
		c.Description = it.Weather[0].Description
		c.Icon = it.Weather[0].Icon
	}
	return c
}

var _ weather.Provider = (*Client)(nil)
