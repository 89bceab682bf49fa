package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"cropadvisor/internal/domain"
)

// ErrLocationNotFound is returned when the weather provider cannot resolve
// the location string. Subscription handling treats it as a per-subscription
// failure, not a batch failure.
var ErrLocationNotFound = errors.New("weather: location not found")

// WeatherClient implements domain.WeatherProvider against the OpenWeatherMap
// current-weather endpoint.
type WeatherClient struct {
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type WeatherClientConfig struct {
	APIBase string
	APIKey  string
	Logger  *slog.Logger
}

func NewWeatherClient(cfg WeatherClientConfig) *WeatherClient {
	if cfg.APIBase == "" {
		cfg.APIBase = "http://api.openweathermap.org"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WeatherClient{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		client:  SharedHTTPClient(15 * time.Second),
		logger:  cfg.Logger,
	}
}

type weatherResponse struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

func (w *WeatherClient) Current(ctx context.Context, location string) (*domain.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")
	endpoint := w.apiBase + "/data/2.5/weather?" + q.Encode()

	buildReq := func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	}

	resp, err := doWithRetry(ctx, w.client, buildReq, w.logger)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather API %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("weather response: %w", err)
	}
	if len(parsed.Weather) == 0 {
		return nil, fmt.Errorf("weather response: empty conditions for %s", location)
	}

	return &domain.WeatherSnapshot{
		Condition: parsed.Weather[0].Main,
		TempC:     parsed.Main.Temp,
	}, nil
}
