package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cropadvisor/internal/domain"
)

func visionReply(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	}
}

func TestVisionAnalyze_SendsInlineImage(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1beta/models/gemini-1.5-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "api-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}

		var req struct {
			Contents []struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData *struct {
						MimeType string `json:"mime_type"`
						Data     string `json:"data"`
					} `json:"inline_data"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		parts := req.Contents[0].Parts
		if len(parts) != 2 {
			t.Fatalf("got %d parts, want prompt + image", len(parts))
		}
		if !strings.Contains(parts[0].Text, "Provide response in English.") {
			t.Errorf("prompt = %q", parts[0].Text)
		}
		if parts[1].InlineData.MimeType != "image/jpeg" {
			t.Errorf("mime = %q", parts[1].InlineData.MimeType)
		}
		if parts[1].InlineData.Data != base64.StdEncoding.EncodeToString(image) {
			t.Error("image bytes not base64-encoded verbatim")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(visionReply("Leaf rust detected."))
	}))
	defer srv.Close()

	c := NewVisionClient(VisionClientConfig{APIBase: srv.URL, APIKey: "api-key", Logger: testLogger()})
	answer, err := c.Analyze(context.Background(), image, "image/jpeg", domain.LangEnglish)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if answer != "Leaf rust detected." {
		t.Errorf("answer = %q", answer)
	}
}

func TestVisionAnalyze_HindiSessionGetsHindiPrompt(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req visionRequest
		json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Contents[0].Parts[0].Text
		json.NewEncoder(w).Encode(visionReply("पत्ती में रोग है।"))
	}))
	defer srv.Close()

	c := NewVisionClient(VisionClientConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	if _, err := c.Analyze(context.Background(), []byte{1}, "image/png", domain.LangHindi); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !strings.Contains(prompt, "Provide response in Hindi.") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestVisionAnalyze_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	c := NewVisionClient(VisionClientConfig{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	if _, err := c.Analyze(context.Background(), []byte{1}, "image/jpeg", domain.LangBoth); err == nil {
		t.Fatal("expected error when the model returns no candidates")
	}
}
