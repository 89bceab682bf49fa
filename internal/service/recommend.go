package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cropadvisor/internal/domain"
)

// ErrServiceReported is returned when the recommendation engine answered the
// request but reported a domain error in its payload (unknown soil/season
// combination and the like).
var ErrServiceReported = fmt.Errorf("recommendation service reported an error")

// RecommendClient implements domain.Recommender against the recommendation
// engine's POST /recommend endpoint.
type RecommendClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type RecommendClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewRecommendClient(cfg RecommendClientConfig) *RecommendClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RecommendClient{
		baseURL: cfg.BaseURL,
		client:  SharedHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

type recommendRequest struct {
	SoilType string `json:"soil_type"`
	Season   string `json:"season"`
	Location string `json:"location"`
}

type recommendResponse struct {
	domain.Recommendation
	Error string `json:"error,omitempty"`
}

func (c *RecommendClient) Recommend(ctx context.Context, soil, season, location string) (*domain.Recommendation, error) {
	body, err := json.Marshal(recommendRequest{SoilType: soil, Season: season, Location: location})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/recommend", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := doWithRetry(ctx, c.client, buildReq, c.logger)
	if err != nil {
		return nil, fmt.Errorf("recommend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("recommend API %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("recommend response: %w", err)
	}
	if parsed.Error != "" {
		c.logger.Warn("recommendation engine error", "error", parsed.Error,
			"soil", soil, "season", season, "location", location)
		return nil, fmt.Errorf("%w: %s", ErrServiceReported, parsed.Error)
	}

	return &parsed.Recommendation, nil
}
