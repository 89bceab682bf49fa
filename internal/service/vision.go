package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cropadvisor/internal/domain"
)

const defaultVisionModel = "gemini-1.5-flash"

// VisionClient implements domain.VisionAnalyzer against a Gemini-style
// generateContent endpoint. The service is a black box returning natural
// language; its answer is relayed verbatim.
type VisionClient struct {
	apiBase string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type VisionClientConfig struct {
	APIBase string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

func NewVisionClient(cfg VisionClientConfig) *VisionClient {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = defaultVisionModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &VisionClient{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  SharedHTTPClient(60 * time.Second),
		logger:  cfg.Logger,
	}
}

type visionRequest struct {
	Contents []visionContent `json:"contents"`
}

type visionContent struct {
	Parts []visionPart `json:"parts"`
}

type visionPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *visionInlineData `json:"inline_data,omitempty"`
}

type visionInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type visionResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (v *VisionClient) Analyze(ctx context.Context, data []byte, mime string, lang domain.Language) (string, error) {
	instructionLang := "English"
	if lang == domain.LangHindi {
		instructionLang = "Hindi"
	}
	prompt := "Detect crop disease in this image and suggest remedies. Provide response in " + instructionLang + "."

	payload := visionRequest{
		Contents: []visionContent{{
			Parts: []visionPart{
				{Text: prompt},
				{InlineData: &visionInlineData{
					MimeType: mime,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", v.apiBase, v.model, v.apiKey)
	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := doWithRetry(ctx, v.client, buildReq, v.logger)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vision API %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("vision response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("vision response: no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
