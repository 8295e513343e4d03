package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-blob-pipeline/internal/table"
	"github.com/i474232898/weather-blob-pipeline/internal/weather"
)

// DefaultOpenWeatherURL is the OpenWeather current weather endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// breakerThreshold is the number of consecutive failed locations after which
// the provider stops calling the API for a minute.
const breakerThreshold = 10

var errNoAPIKey = errors.New("openweather api key is not configured")

// OpenWeatherProvider implements weather.Fetcher for the OpenWeather
// current weather API. The response document is returned as is.
type OpenWeatherProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewOpenWeatherProvider returns a provider querying baseURL. An empty
// baseURL selects DefaultOpenWeatherURL.
func NewOpenWeatherProvider(client *http.Client, baseURL string) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherURL
	}

	return &OpenWeatherProvider{
		name:    "openweathermap",
		baseURL: baseURL,
		client:  client,
		circuit: newBreaker("openweather", breakerThreshold),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// Fetch issues GET <baseURL>?lat=..&lon=..&appid=.. and decodes the JSON body.
func (p *OpenWeatherProvider) Fetch(ctx context.Context, loc weather.Location, apiKey string) (table.Object, error) {
	if apiKey == "" {
		return nil, errNoAPIKey
	}

	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	values := u.Query()
	values.Set("lat", string(loc.Lat))
	values.Set("lon", string(loc.Lon))
	values.Set("appid", apiKey)
	u.RawQuery = values.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	// No per-call retries; a failed location is skipped by the caller.
	resp, err := doRequest(ctx, p.client, p.circuit, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := table.DecodeObject(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	return payload, nil
}
