package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-ingest/internal/ingest"
)

const userAgent = "weather-ingest/1.0"

// WeatherAPIFetcher implements ingest.Fetcher against the WeatherAPI.com history endpoint.
type WeatherAPIFetcher struct {
	name     string
	apiKey   string
	endpoint string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

// NewWeatherAPIFetcher creates a fetcher for endpoint. The client's Timeout
// bounds every call; limiter may be nil.
func NewWeatherAPIFetcher(client *http.Client, endpoint, apiKey string, limiter *rate.Limiter) *WeatherAPIFetcher {
	if endpoint == "" {
		endpoint = ingest.DefaultEndpoint
	}
	return &WeatherAPIFetcher{
		name:     "weatherapi",
		apiKey:   apiKey,
		endpoint: endpoint,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Limiter: limiter,
		},
		circuit: newBreaker("weatherapi"),
	}
}

func (p *WeatherAPIFetcher) Name() string {
	return p.name
}

// Fetch issues GET <endpoint>?key=<api_key>&q=<location>&dt=<date> and returns
// the decoded document together with the exact response bytes.
func (p *WeatherAPIFetcher) Fetch(ctx context.Context, location, date string) (ingest.Payload, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", location)
		values.Set("dt", date)

		u := fmt.Sprintf("%s?%s", p.endpoint, values.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}

	resp, err := doRequest(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return ingest.Payload{}, err
	}

	return decodePayload(resp.body)
}

// decodePayload parses a provider body into a structured document.
//
// A zero-length body, JSON null, an empty object, or a history document whose
// forecast.forecastday list is empty all mean the provider had no data.
// Raw is the body as received; surrounding whitespace is trimmed only for decoding.
func decodePayload(body []byte) (ingest.Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ingest.Payload{}, ingest.NewFetchError(ingest.KindFetchEmptyPayload, fmt.Errorf("empty response body"))
	}

	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return ingest.Payload{}, ingest.NewFetchError(ingest.KindFetchDecodeError, err)
	}

	switch v := doc.(type) {
	case nil:
		return ingest.Payload{}, ingest.NewFetchError(ingest.KindFetchEmptyPayload, fmt.Errorf("response is null"))
	case map[string]any:
		if len(v) == 0 {
			return ingest.Payload{}, ingest.NewFetchError(ingest.KindFetchEmptyPayload, fmt.Errorf("response is an empty object"))
		}
		if noForecastDays(v) {
			return ingest.Payload{}, ingest.NewFetchError(ingest.KindFetchEmptyPayload, fmt.Errorf("no forecast days for requested date"))
		}
		return ingest.Payload{Document: v, Raw: body}, nil
	default:
		return ingest.Payload{}, ingest.NewFetchError(ingest.KindFetchDecodeError, fmt.Errorf("expected a JSON object, got %T", doc))
	}
}

func noForecastDays(doc map[string]any) bool {
	forecast, ok := doc["forecast"].(map[string]any)
	if !ok {
		return false
	}
	days, ok := forecast["forecastday"]
	if !ok {
		return false
	}
	list, ok := days.([]any)
	return days == nil || (ok && len(list) == 0)
}
