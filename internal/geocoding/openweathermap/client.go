// Package openweathermap implements geocoding with the OpenWeatherMap Geocoding API.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/livebetter/livebetter/internal/geocoding"
	"github.com/livebetter/livebetter/internal/provider/resilience"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "openweathermap-geo"

	// DefaultBaseURL is the OpenWeatherMap geocoding API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/geo/1.0"

	maxResults = 5
)

// ClientConfig holds configuration for the geocoding client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient resilience.Doer
	Logger     zerolog.Logger
}

// Client is an OpenWeatherMap geocoding client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient resilience.Doer
	logger     zerolog.Logger
}

// NewClient creates a new geocoding client.
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

// Search looks up places by name.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error) {
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	u := fmt.Sprintf("%s/direct?q=%s&limit=%d&appid=%s", c.baseURL, url.QueryEscape(query), limit, c.apiKey)

	var results []placeResponse
	if err := c.get(ctx, u, &results); err != nil {
		return nil, err
	}

	places := make([]geocoding.Place, 0, len(results))
	for _, r := range results {
		places = append(places, r.toPlace())
	}
	return places, nil
}

// Reverse looks up the place name for a coordinate.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*geocoding.Place, error) {
	u := fmt.Sprintf("%s/reverse?lat=%.6f&lon=%.6f&limit=1&appid=%s", c.baseURL, lat, lon, c.apiKey)

	var results []placeResponse
	if err := c.get(ctx, u, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, geocoding.ErrPlaceNotFound
	}

	place := results[0].toPlace()
	return &place, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
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

type placeResponse struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

func (p placeResponse) toPlace() geocoding.Place {
	return geocoding.Place{
		Name:    p.Name,
		State:   p.State,
		Country: p.Country,
		Lat:     p.Lat,
		Lon:     p.Lon,
	}
}

var _ geocoding.Geocoder = (*Client)(nil)
